package nn

import (
	"fmt"

	"github.com/vard-ml/vard/internal/tensor"
)

// crossEntropyBackend is the backend capability the loss needs. The autodiff
// decorator and the CPU backend both provide it.
type crossEntropyBackend interface {
	CrossEntropy(logits, targets *tensor.RawTensor) *tensor.RawTensor
}

// CrossEntropyLoss computes the mean softmax cross-entropy between logits
// [batch, classes] and integer class targets [batch].
type CrossEntropyLoss[B tensor.Backend] struct{}

// NewCrossEntropyLoss creates a cross-entropy loss.
func NewCrossEntropyLoss[B tensor.Backend]() *CrossEntropyLoss[B] {
	return &CrossEntropyLoss[B]{}
}

// Loss returns the scalar mean loss over the batch.
func (c *CrossEntropyLoss[B]) Loss(logits *tensor.Tensor[float32, B], targets *tensor.Tensor[int32, B]) *tensor.Tensor[float32, B] {
	backend := logits.Backend()
	ce, ok := any(backend).(crossEntropyBackend)
	if !ok {
		panic(fmt.Sprintf("CrossEntropyLoss: backend %s does not implement CrossEntropy", backend.Name()))
	}
	raw := ce.CrossEntropy(logits.Raw(), targets.Raw())
	return tensor.New[float32, B](raw, backend)
}

// Accuracy returns the fraction of rows whose argmax matches the target.
func Accuracy[B tensor.Backend](logits *tensor.Tensor[float32, B], targets *tensor.Tensor[int32, B]) float32 {
	predictions := logits.Argmax(1).Raw().AsInt32()
	labels := targets.Raw().AsInt32()
	if len(predictions) != len(labels) {
		panic(fmt.Sprintf("Accuracy: %d predictions vs %d targets", len(predictions), len(labels)))
	}
	correct := 0
	for i := range predictions {
		if predictions[i] == labels[i] {
			correct++
		}
	}
	return float32(correct) / float32(len(labels))
}
