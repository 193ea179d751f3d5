package nn

import (
	"fmt"
	"strings"
	"time"

	"github.com/vard-ml/vard/internal/serialization"
	"github.com/vard-ml/vard/internal/tensor"
)

// OptimizerState is the slice of the optimizer surface checkpoints need.
// Declared here rather than importing optim to avoid an import cycle.
type OptimizerState interface {
	StateDict() map[string]*tensor.RawTensor
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
	LR() float32
}

// Checkpoint is a resumable training snapshot: model parameters, optimizer
// state and the position in the training run. KLCoef carries the divergence
// warm-up coefficient so a resumed run continues the schedule instead of
// restarting it.
type Checkpoint[B tensor.Backend] struct {
	Model     Module[B]
	Optimizer OptimizerState
	Epoch     int
	Step      int64
	Loss      float64
	KLCoef    float64
	CreatedAt time.Time
}

const optimizerPrefix = "optimizer."

// Save writes the checkpoint to a .vard file. Optimizer state is stored
// alongside the model parameters under the "optimizer." prefix.
func (c *Checkpoint[B]) Save(path string) error {
	combined := make(map[string]*tensor.RawTensor)
	for name, raw := range c.Model.StateDict() {
		combined[name] = raw
	}
	for name, raw := range c.Optimizer.StateDict() {
		combined[optimizerPrefix+name] = raw
	}

	header := serialization.Header{
		ModelType: "Checkpoint",
		CheckpointMeta: &serialization.CheckpointMeta{
			Epoch:         c.Epoch,
			Step:          c.Step,
			Loss:          c.Loss,
			KLCoef:        c.KLCoef,
			OptimizerType: fmt.Sprintf("%T", c.Optimizer),
			OptimizerConfig: map[string]any{
				"lr": c.Optimizer.LR(),
			},
		},
	}

	writer, err := serialization.NewVardWriter(path)
	if err != nil {
		return fmt.Errorf("failed to create writer: %w", err)
	}
	defer func() { _ = writer.Close() }()

	if err := writer.WriteStateDictWithHeader(combined, header); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint restores a checkpoint into a pre-constructed model and
// optimizer. Both must match the architecture and configuration that were
// saved.
func LoadCheckpoint[B tensor.Backend](path string, backend B, model Module[B], optimizer OptimizerState) (*Checkpoint[B], error) {
	reader, err := serialization.NewVardReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create reader: %w", err)
	}
	defer func() { _ = reader.Close() }()

	header := reader.Header()
	if header.CheckpointMeta == nil {
		return nil, fmt.Errorf("file is not a checkpoint")
	}

	stateDict, err := reader.ReadStateDict(backend)
	if err != nil {
		return nil, fmt.Errorf("failed to read state dict: %w", err)
	}

	modelState := make(map[string]*tensor.RawTensor)
	optimizerState := make(map[string]*tensor.RawTensor)
	for name, raw := range stateDict {
		if strings.HasPrefix(name, optimizerPrefix) {
			optimizerState[strings.TrimPrefix(name, optimizerPrefix)] = raw
		} else {
			modelState[name] = raw
		}
	}

	if err := model.LoadStateDict(modelState); err != nil {
		return nil, fmt.Errorf("failed to load model state: %w", err)
	}
	if err := optimizer.LoadStateDict(optimizerState); err != nil {
		return nil, fmt.Errorf("failed to load optimizer state: %w", err)
	}

	return &Checkpoint[B]{
		Model:     model,
		Optimizer: optimizer,
		Epoch:     header.CheckpointMeta.Epoch,
		Step:      header.CheckpointMeta.Step,
		Loss:      header.CheckpointMeta.Loss,
		KLCoef:    header.CheckpointMeta.KLCoef,
		CreatedAt: header.CreatedAt,
	}, nil
}
