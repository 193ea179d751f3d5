package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Encoding names understood by NewTikToken.
const (
	EncodingCL100kBase = "cl100k_base"
	EncodingP50kBase   = "p50k_base"
	EncodingR50kBase   = "r50k_base"
)

// TikToken wraps pkoukk/tiktoken-go. The r50k/p50k vocabularies keep the
// embedding table of a small language model manageable; cl100k is available
// when a larger vocabulary is worth the parameters.
type TikToken struct {
	encoding *tiktoken.Tiktoken
	name     string
}

// NewTikToken loads the named encoding. The vocabulary file is fetched and
// cached by the tiktoken library on first use.
func NewTikToken(encodingName string) (*TikToken, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding %q: %w", encodingName, err)
	}
	return &TikToken{encoding: encoding, name: encodingName}, nil
}

// Name returns the encoding name.
func (t *TikToken) Name() string { return t.name }

func (t *TikToken) Encode(text string) ([]int32, error) {
	tokens := t.encoding.Encode(text, nil, nil)
	result := make([]int32, len(tokens))
	for i, tok := range tokens {
		result[i] = int32(tok) //nolint:gosec // G115: vocab sizes are far below 2^31
	}
	return result, nil
}

func (t *TikToken) Decode(tokens []int32) (string, error) {
	intTokens := make([]int, len(tokens))
	for i, tok := range tokens {
		intTokens[i] = int(tok)
	}
	return t.encoding.Decode(intTokens), nil
}

// VocabSize returns the vocabulary size including special tokens. The
// library does not expose it, so the known sizes are hardcoded.
func (t *TikToken) VocabSize() int {
	switch t.name {
	case EncodingCL100kBase:
		return 100277
	case EncodingP50kBase, EncodingR50kBase:
		return 50257
	default:
		return 100277
	}
}

// EosToken returns the <|endoftext|> token ID for the encoding.
func (t *TikToken) EosToken() int32 {
	switch t.name {
	case EncodingCL100kBase:
		return 100257
	case EncodingP50kBase, EncodingR50kBase:
		return 50256
	default:
		return -1
	}
}
