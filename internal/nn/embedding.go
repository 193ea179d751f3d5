package nn

import (
	"fmt"
	"math/rand"

	"github.com/vard-ml/vard/internal/tensor"
)

// Embedding maps integer token ids to dense vectors via a learned lookup
// table of shape [numEmbeddings, embeddingDim].
type Embedding[B tensor.Backend] struct {
	numEmbeddings int
	embeddingDim  int
	weight        *Parameter[B]
	backend       B
}

// NewEmbedding creates an embedding table initialized from N(0, 1) scaled by
// 1/sqrt(embeddingDim).
func NewEmbedding[B tensor.Backend](numEmbeddings, embeddingDim int, backend B) *Embedding[B] {
	raw, err := tensor.NewRaw(tensor.Shape{numEmbeddings, embeddingDim}, tensor.Float32, backend.Device())
	if err != nil {
		panic(err)
	}
	scale := 1.0 / float32(embeddingDim)
	data := raw.AsFloat32()
	for i := range data {
		//nolint:gosec // weight initialization is not security-critical
		data[i] = float32(rand.NormFloat64()) * scale
	}
	weight := NewParameter("weight", tensor.New[float32, B](raw, backend))
	return &Embedding[B]{
		numEmbeddings: numEmbeddings,
		embeddingDim:  embeddingDim,
		weight:        weight,
		backend:       backend,
	}
}

// Lookup embeds int32 indices of any shape, producing indices.Shape() +
// [embeddingDim].
func (e *Embedding[B]) Lookup(indices *tensor.Tensor[int32, B]) *tensor.Tensor[float32, B] {
	raw := e.backend.Embedding(e.weight.Tensor().Raw(), indices.Raw())
	return tensor.New[float32, B](raw, e.backend)
}

// Forward treats the float input as token ids, casting to int32 first. Most
// callers should prefer Lookup with integer indices directly.
func (e *Embedding[B]) Forward(_ Pass, input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return e.Lookup(input.Int32())
}

// Parameters returns the embedding table.
func (e *Embedding[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{e.weight}
}

// Weight returns the table parameter.
func (e *Embedding[B]) Weight() *Parameter[B] { return e.weight }

// NumEmbeddings returns the vocabulary size.
func (e *Embedding[B]) NumEmbeddings() int { return e.numEmbeddings }

// EmbeddingDim returns the vector width.
func (e *Embedding[B]) EmbeddingDim() int { return e.embeddingDim }

// StateDict returns the table keyed as "weight".
func (e *Embedding[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{"weight": e.weight.Tensor().Raw()}
}

// LoadStateDict restores the table.
func (e *Embedding[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := loadParam(stateDict, "weight", e.weight); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	return nil
}
