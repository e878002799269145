package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFor(t *testing.T) {
	cfg := WithWorkers(4)

	var counter int64
	n := 1000

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	assert.Equal(t, int64(n), counter)
}

func TestFor_Sequential(t *testing.T) {
	cfg := Config{Enabled: false}

	var counter int64
	For(100, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	assert.Equal(t, int64(100), counter)
}

func TestForChunksCoversRange(t *testing.T) {
	seen := make([]int32, 257)
	ForChunks(len(seen), func(start, end int) {
		for i := start; i < end; i++ {
			atomic.AddInt32(&seen[i], 1)
		}
	}, Config{Enabled: true, NumWorkers: 5, MinChunkSize: 3})

	for i, v := range seen {
		assert.Equal(t, int32(1), v, "row %d", i)
	}
}

func TestWithWorkers(t *testing.T) {
	assert.False(t, WithWorkers(1).Enabled)
	assert.Equal(t, 3, WithWorkers(3).NumWorkers)
	assert.Positive(t, DefaultConfig().NumWorkers)
}
