package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loadEncoding skips the test when the vocabulary cannot be fetched, e.g.
// in offline CI.
func loadEncoding(t *testing.T, name string) *TikToken {
	t.Helper()
	tok, err := NewTikToken(name)
	if err != nil {
		t.Skipf("encoding %s unavailable: %v", name, err)
	}
	return tok
}

func TestNewTikTokenRejectsUnknownEncoding(t *testing.T) {
	tok, err := NewTikToken("no_such_encoding")
	assert.Error(t, err)
	assert.Nil(t, tok)
}

func TestTikTokenRoundTrip(t *testing.T) {
	tok := loadEncoding(t, EncodingR50kBase)

	for _, text := range []string{
		"hello world",
		"The quick brown fox jumps over the lazy dog.",
		"",
	} {
		tokens, err := tok.Encode(text)
		require.NoError(t, err)

		decoded, err := tok.Decode(tokens)
		require.NoError(t, err)
		assert.Equal(t, text, decoded)
	}
}

func TestTikTokenVocabSizeBoundsTokens(t *testing.T) {
	tok := loadEncoding(t, EncodingR50kBase)

	tokens, err := tok.Encode("variational dropout sparsifies deep neural networks")
	require.NoError(t, err)
	require.NotEmpty(t, tokens)

	for _, id := range tokens {
		assert.GreaterOrEqual(t, id, int32(0))
		assert.Less(t, int(id), tok.VocabSize())
	}
	assert.Less(t, tok.EosToken(), int32(tok.VocabSize()))
}
