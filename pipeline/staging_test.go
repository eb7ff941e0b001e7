package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTensorPool(t *testing.T) {
	pool := NewTensorPool(12)

	buf := pool.Get()
	assert.Len(t, buf, 12)
	assert.Equal(t, 12, cap(buf))

	buf[0] = 42
	pool.Put(buf[:3])

	again := pool.Get()
	assert.Len(t, again, 12)

	// Foreign buffers are ignored
	pool.Put(make([]float32, 5))
	assert.Len(t, pool.Get(), 12)
}
