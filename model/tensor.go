package model

import "fmt"

// Tensor is a dense float32 array in N×C×H×W layout.
type Tensor struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"-"`
}

// NewTensor wraps data with shape (n, c, h, w). data may be nil, in which case
// a zeroed buffer is allocated.
func NewTensor(data []float32, n, c, h, w int) (Tensor, error) {
	size := n * c * h * w
	if data == nil {
		data = make([]float32, size)
	}
	if len(data) != size {
		return Tensor{}, fmt.Errorf("tensor data length %d does not match shape %dx%dx%dx%d", len(data), n, c, h, w)
	}
	return Tensor{Shape: []int{n, c, h, w}, Data: data}, nil
}

// Len is the batch dimension.
func (t Tensor) Len() int {
	if len(t.Shape) == 0 {
		return 0
	}
	return t.Shape[0]
}

// SampleSize is the number of values in one C×H×W sample.
func (t Tensor) SampleSize() int {
	if len(t.Shape) < 2 {
		return 0
	}
	size := 1
	for _, d := range t.Shape[1:] {
		size *= d
	}
	return size
}

// Sample returns a view of the i-th sample.
func (t Tensor) Sample(i int) []float32 {
	size := t.SampleSize()
	return t.Data[i*size : (i+1)*size]
}

// Select copies the samples at idx into a new tensor, preserving idx order.
func (t Tensor) Select(idx []int) Tensor {
	size := t.SampleSize()
	shape := append([]int{len(idx)}, t.Shape[1:]...)
	data := make([]float32, 0, len(idx)*size)
	for _, i := range idx {
		data = append(data, t.Sample(i)...)
	}
	return Tensor{Shape: shape, Data: data}
}
