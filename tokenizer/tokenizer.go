// Copyright 2025 Vard ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tokenizer provides text tokenization for language-model training.
//
// Example:
//
//	tok, err := tokenizer.NewTikToken(tokenizer.EncodingR50kBase)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	tokens, _ := tok.Encode("hello world")
//	text, _ := tok.Decode(tokens)
package tokenizer

import (
	"github.com/vard-ml/vard/internal/tokenizer"
)

// Tokenizer converts between text and token IDs.
type Tokenizer = tokenizer.Tokenizer

// Encoding names understood by NewTikToken.
const (
	EncodingCL100kBase = tokenizer.EncodingCL100kBase
	EncodingP50kBase   = tokenizer.EncodingP50kBase
	EncodingR50kBase   = tokenizer.EncodingR50kBase
)

// TikToken is a byte-pair-encoding tokenizer backed by tiktoken vocabularies.
type TikToken = tokenizer.TikToken

// NewTikToken creates a tokenizer for the named encoding. The vocabulary is
// downloaded and cached on first use.
func NewTikToken(encodingName string) (*TikToken, error) {
	return tokenizer.NewTikToken(encodingName)
}
