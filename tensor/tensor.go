package tensor

import "fmt"

// Tensor represents a dense multi-dimensional array of float32 values
type Tensor struct {
	Data  []float32
	Shape []int
}

// NewTensor creates a new zero-filled tensor with given shape
func NewTensor(shape ...int) *Tensor {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	return &Tensor{
		Data:  make([]float32, size),
		Shape: shape,
	}
}

// Size returns total number of elements
func (t *Tensor) Size() int {
	size := 1
	for _, dim := range t.Shape {
		size *= dim
	}
	return size
}

// At returns element at given indices
func (t *Tensor) At(indices ...int) float32 {
	idx := t.flatIndex(indices)
	return t.Data[idx]
}

// Set sets element at given indices
func (t *Tensor) Set(val float32, indices ...int) {
	idx := t.flatIndex(indices)
	t.Data[idx] = val
}

// Clone returns a deep copy of the tensor
func (t *Tensor) Clone() *Tensor {
	out := NewTensor(t.Shape...)
	copy(out.Data, t.Data)
	return out
}

// Row returns the slice backing row i of a 2D tensor.
// The slice aliases the tensor's storage; writes are visible to the tensor.
func (t *Tensor) Row(i int) []float32 {
	if len(t.Shape) != 2 {
		panic("Row requires a 2D tensor")
	}
	width := t.Shape[1]
	return t.Data[i*width : (i+1)*width]
}

func (t *Tensor) flatIndex(indices []int) int {
	if len(indices) != len(t.Shape) {
		panic(fmt.Sprintf("wrong number of indices: got %d, want %d", len(indices), len(t.Shape)))
	}
	idx := 0
	stride := 1
	for i := len(indices) - 1; i >= 0; i-- {
		idx += indices[i] * stride
		stride *= t.Shape[i]
	}
	return idx
}
