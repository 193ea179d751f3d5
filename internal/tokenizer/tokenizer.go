// Package tokenizer converts text to token IDs for language-model training.
package tokenizer

// Tokenizer is the interface all tokenizer implementations satisfy.
type Tokenizer interface {
	// Encode converts text to token IDs.
	Encode(text string) ([]int32, error)

	// Decode converts token IDs back to text.
	Decode(tokens []int32) (string, error)

	// VocabSize returns the total vocabulary size.
	VocabSize() int

	// EosToken returns the end-of-sequence token ID, or -1 if the
	// tokenizer has none.
	EosToken() int32
}
