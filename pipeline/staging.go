package pipeline

import "sync"

// TensorPool recycles batch tensor buffers of a fixed size so that steady
// state batching does not allocate. It is the staging area batches are
// assembled in before they are handed to the scorers.
type TensorPool struct {
	size int
	pool sync.Pool
}

func NewTensorPool(size int) *TensorPool {
	p := &TensorPool{size: size}
	p.pool.New = func() interface{} {
		buf := make([]float32, size)
		return &buf
	}
	return p
}

// Get returns a buffer of exactly size values. Contents are undefined.
func (p *TensorPool) Get() []float32 {
	buf := p.pool.Get().(*[]float32)
	return (*buf)[:p.size]
}

// Put returns buf to the pool. Buffers of the wrong capacity are discarded.
func (p *TensorPool) Put(buf []float32) {
	if cap(buf) != p.size {
		return
	}
	buf = buf[:p.size]
	p.pool.Put(&buf)
}
