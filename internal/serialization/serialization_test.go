package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vard-ml/vard/internal/backend/cpu"
	"github.com/vard-ml/vard/internal/tensor"
)

func rawFloat32(t *testing.T, values []float32, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(raw.AsFloat32(), values)
	return raw
}

func rawInt32(t *testing.T, values []int32, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.NewRaw(shape, tensor.Int32, tensor.CPU)
	require.NoError(t, err)
	copy(raw.AsInt32(), values)
	return raw
}

func sampleStateDict(t *testing.T) map[string]*tensor.RawTensor {
	t.Helper()
	return map[string]*tensor.RawTensor{
		"0.weight":     rawFloat32(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}),
		"0.log_sigma2": rawFloat32(t, []float32{-10, -10, -10, -10, -10, -10}, tensor.Shape{2, 3}),
		"0.bias":       rawFloat32(t, []float32{0.5, -0.5}, tensor.Shape{2}),
		"steps":        rawInt32(t, []int32{42}, tensor.Shape{1}),
	}
}

func writeSample(t *testing.T, path string, stateDict map[string]*tensor.RawTensor) {
	t.Helper()
	w, err := NewVardWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.WriteStateDict(stateDict, "Sequential", map[string]string{"dataset": "mnist"}))
	require.NoError(t, w.Close())
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.vard")
	stateDict := sampleStateDict(t)
	writeSample(t, path, stateDict)

	r, err := NewVardReader(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, "Sequential", r.Header().ModelType)
	assert.Equal(t, "mnist", r.Metadata()["dataset"])
	assert.Len(t, r.TensorNames(), 4)

	loaded, err := r.ReadStateDict(cpu.NewSequential())
	require.NoError(t, err)

	assert.Equal(t, stateDict["0.weight"].AsFloat32(), loaded["0.weight"].AsFloat32())
	assert.Equal(t, tensor.Shape{2, 3}, loaded["0.weight"].Shape())
	assert.Equal(t, stateDict["0.bias"].AsFloat32(), loaded["0.bias"].AsFloat32())
	assert.Equal(t, []int32{42}, loaded["steps"].AsInt32())
}

func TestWriteIsDeterministic(t *testing.T) {
	stateDict := sampleStateDict(t)

	var bufA, bufB bytes.Buffer
	require.NoError(t, WriteTo(&bufA, stateDict, "Sequential", nil))
	require.NoError(t, WriteTo(&bufB, stateDict, "Sequential", nil))

	// CreatedAt differs between writes, so compare the data section
	// checksums instead of whole files.
	sumA := bufA.Bytes()[ChecksumOffset : ChecksumOffset+ChecksumSize]
	sumB := bufB.Bytes()[ChecksumOffset : ChecksumOffset+ChecksumSize]
	assert.Equal(t, sumA, sumB)
}

func TestChecksumDetectsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.vard")
	writeSample(t, path, sampleStateDict(t))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o600))

	_, err = NewVardReader(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestSkipChecksumValidationReadsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.vard")
	writeSample(t, path, sampleStateDict(t))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o600))

	r, err := NewVardReaderWithOptions(path, ReaderOptions{
		SkipChecksumValidation: true,
		ValidationLevel:        ValidationStrict,
	})
	require.NoError(t, err)
	r.Close()
}

func TestRejectsInvalidMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.vard")
	writeSample(t, path, sampleStateDict(t))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	copy(data[0:4], "NOPE")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	_, err = NewVardReader(path)
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestBufferRoundTrip(t *testing.T) {
	stateDict := sampleStateDict(t)

	var buf bytes.Buffer
	require.NoError(t, WriteTo(&buf, stateDict, "LeNet300", nil))

	loaded, header, err := ReadFrom(&buf, cpu.NewSequential())
	require.NoError(t, err)
	assert.Equal(t, "LeNet300", header.ModelType)
	assert.Equal(t, stateDict["0.weight"].AsFloat32(), loaded["0.weight"].AsFloat32())
}

func TestCheckpointMetaRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ckpt.vard")

	w, err := NewVardWriter(path)
	require.NoError(t, err)
	header := Header{
		ModelType: "LeNet300",
		CheckpointMeta: &CheckpointMeta{
			Epoch:         3,
			Step:          1500,
			Loss:          0.42,
			KLCoef:        0.6,
			OptimizerType: "Adam",
			OptimizerConfig: map[string]any{
				"lr": 0.001,
			},
		},
	}
	require.NoError(t, w.WriteStateDictWithHeader(sampleStateDict(t), header))
	require.NoError(t, w.Close())

	r, err := NewVardReader(path)
	require.NoError(t, err)
	defer r.Close()

	meta := r.Header().CheckpointMeta
	require.NotNil(t, meta)
	assert.Equal(t, 3, meta.Epoch)
	assert.Equal(t, int64(1500), meta.Step)
	assert.InDelta(t, 0.42, meta.Loss, 1e-9)
	assert.InDelta(t, 0.6, meta.KLCoef, 1e-9)
	assert.Equal(t, "Adam", meta.OptimizerType)
}

func TestMmapReaderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.vard")
	stateDict := sampleStateDict(t)
	writeSample(t, path, stateDict)

	r, err := NewMmapReader(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Len(t, r.TensorNames(), 4)

	data, err := r.TensorData("0.bias")
	require.NoError(t, err)
	assert.Len(t, data, 8)

	loaded, err := r.ReadStateDict(cpu.NewSequential())
	require.NoError(t, err)
	assert.Equal(t, stateDict["0.weight"].AsFloat32(), loaded["0.weight"].AsFloat32())
}

func TestValidateTensorNameRejectsPaths(t *testing.T) {
	assert.Error(t, ValidateTensorName("../evil"))
	assert.Error(t, ValidateTensorName("dir/weight"))
	assert.Error(t, ValidateTensorName("weight\x00"))
	assert.NoError(t, ValidateTensorName("0.weight"))
}

func TestValidateTensorOffsetsRejectsOverlap(t *testing.T) {
	tensors := []TensorMeta{
		{Name: "a", Offset: 0, Size: 16},
		{Name: "b", Offset: 8, Size: 16},
	}
	err := ValidateTensorOffsets(tensors, 64)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "offset_overlap", verr.Type)
}

func TestValidateTensorOffsetsRejectsOutOfBounds(t *testing.T) {
	tensors := []TensorMeta{{Name: "a", Offset: 0, Size: 128}}
	err := ValidateTensorOffsets(tensors, 64)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "out_of_bounds", verr.Type)
}

func TestSafeTensorsExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.safetensors")
	stateDict := map[string]*tensor.RawTensor{
		"weight": rawFloat32(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 2}),
	}
	require.NoError(t, WriteSafeTensors(path, stateDict, map[string]string{"format": "pt"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	headerSize := binary.LittleEndian.Uint64(data[0:8])
	var header map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data[8:8+headerSize], &header))
	assert.Contains(t, header, "weight")
	assert.Contains(t, header, "__metadata__")
	assert.Len(t, data, int(8+headerSize)+16)
}
