package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForCoversRange(t *testing.T) {
	var count int64
	For(1000, func(_ int) { atomic.AddInt64(&count, 1) }, DefaultConfig())
	assert.Equal(t, int64(1000), count)
}

func TestForSequentialFallback(t *testing.T) {
	cfg := Config{Enabled: false}
	order := make([]int, 0, 10)
	For(10, func(i int) { order = append(order, i) }, cfg)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestForBatchHitsEveryCell(t *testing.T) {
	const batch, channels = 4, 8
	var hits [batch][channels]atomic.Bool
	ForBatch(batch, channels, func(b, c int) { hits[b][c].Store(true) }, DefaultConfig())
	for b := 0; b < batch; b++ {
		for c := 0; c < channels; c++ {
			assert.True(t, hits[b][c].Load(), "missing [%d][%d]", b, c)
		}
	}
}
