package tensor

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/zstreet87/TopoModelX/backend"
	"github.com/zstreet87/TopoModelX/core"
)

// Tensor is the core multi-dimensional array: storage + shape + strides + dtype.
type Tensor struct {
	Storage backend.Storage
	Shape   core.Shape
	Strides core.Strides
	DType   core.DType
}

// New creates a tensor from existing storage, shape, and strides.
// If strides is nil, contiguous row-major strides are computed.
func New(storage backend.Storage, shape core.Shape, strides core.Strides, dtype core.DType) *Tensor {
	if strides == nil {
		strides = core.ContiguousStrides(shape, dtype.Size())
	}
	return &Tensor{
		Storage: storage,
		Shape:   shape,
		Strides: strides,
		DType:   dtype,
	}
}

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int {
	return t.Shape.NumElements()
}

// Contiguous returns true if the tensor is row-major contiguous.
func (t *Tensor) Contiguous() bool {
	expected := core.ContiguousStrides(t.Shape, t.DType.Size())
	if len(expected) != len(t.Strides) {
		return false
	}
	for i := range expected {
		if expected[i] != t.Strides[i] {
			return false
		}
	}
	return true
}

// View returns a new tensor sharing storage with t but with the given shape.
// The product of shape must equal t.NumElements(). Strides are recomputed as contiguous.
func (t *Tensor) View(shape ...int) (*Tensor, error) {
	s := core.Shape(shape)
	if s.NumElements() != t.NumElements() {
		return nil, fmt.Errorf("view shape %v has %d elements, tensor has %d", s, s.NumElements(), t.NumElements())
	}
	if !t.Contiguous() {
		return nil, fmt.Errorf("view of non-contiguous tensor with shape %v", t.Shape)
	}
	return New(t.Storage, s, nil, t.DType), nil
}

// Transpose returns a contiguous copy with the two axes of a 2D tensor swapped.
// The input must be a contiguous float32 tensor.
func (t *Tensor) Transpose() (*Tensor, error) {
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("transpose only supported for 2D tensors, got shape %v", t.Shape)
	}
	if t.DType != core.Float32 {
		return nil, fmt.Errorf("transpose: dtype %v not supported", t.DType)
	}
	if !t.Contiguous() {
		return nil, fmt.Errorf("transpose of non-contiguous tensor with shape %v", t.Shape)
	}
	rows, cols := t.Shape[0], t.Shape[1]
	be, err := backend.GetForDevice(t.Storage.Device())
	if err != nil {
		return nil, err
	}
	out, err := be.Alloc(rows * cols * 4)
	if err != nil {
		return nil, err
	}
	if err := be.Transpose2D(out, t.Storage, rows, cols); err != nil {
		out.Free()
		return nil, err
	}
	return New(out, core.Shape{cols, rows}, nil, core.Float32), nil
}

// Zeros allocates a zero-filled float32 CPU tensor.
func Zeros(shape ...int) (*Tensor, error) {
	return Full(0, shape...)
}

// Full allocates a float32 CPU tensor with every element set to value.
func Full(value float32, shape ...int) (*Tensor, error) {
	s := core.Shape(shape).Clone()
	for _, d := range s {
		if d < 0 {
			return nil, fmt.Errorf("negative dimension in shape %v", s)
		}
	}
	be, err := backend.GetForDevice(backend.CPU0)
	if err != nil {
		return nil, err
	}
	n := s.NumElements()
	storage, err := be.Alloc(n * 4)
	if err != nil {
		return nil, err
	}
	if value != 0 {
		if err := be.Fill(storage, n, value); err != nil {
			storage.Free()
			return nil, err
		}
	}
	return New(storage, s, nil, core.Float32), nil
}

// FromFloat32 creates a new CPU tensor from a float32 slice (copy; contiguous).
func FromFloat32(data []float32, shape ...int) (*Tensor, error) {
	s := core.Shape(shape).Clone()
	if s.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v has %d elements, data has %d", s, s.NumElements(), len(data))
	}
	t, err := Zeros(shape...)
	if err != nil {
		return nil, err
	}
	copy(t.Float32(), data)
	return t, nil
}

// Randn returns a tensor of standard normal samples drawn from rng.
func Randn(rng *rand.Rand, shape ...int) (*Tensor, error) {
	t, err := Zeros(shape...)
	if err != nil {
		return nil, err
	}
	data := t.Float32()
	for i := range data {
		data[i] = float32(rng.NormFloat64())
	}
	return t, nil
}

// RandInt returns a float32 tensor of integers drawn uniformly from [lo, hi).
func RandInt(rng *rand.Rand, lo, hi int, shape ...int) (*Tensor, error) {
	if hi <= lo {
		return nil, fmt.Errorf("randint: empty range [%d, %d)", lo, hi)
	}
	t, err := Zeros(shape...)
	if err != nil {
		return nil, err
	}
	data := t.Float32()
	for i := range data {
		data[i] = float32(lo + rng.IntN(hi-lo))
	}
	return t, nil
}

// Float32 returns the underlying float32 slice for CPU tensors (shared memory).
// Panics if not Float32 dtype.
func (t *Tensor) Float32() []float32 {
	if t.DType != core.Float32 {
		panic("Float32() only for Float32 tensors")
	}
	return Float32FromBytes(t.Storage.Bytes())[:t.NumElements()]
}

// At returns element (i, j) of a 2D float32 tensor, honoring strides.
func (t *Tensor) At(i, j int) float32 {
	data := Float32FromBytes(t.Storage.Bytes())
	return data[i*t.Strides[0]/4+j*t.Strides[1]/4]
}

// Clone allocates a new tensor with the same shape and copies data.
func (t *Tensor) Clone() (*Tensor, error) {
	be, err := backend.GetForDevice(t.Storage.Device())
	if err != nil {
		return nil, err
	}
	byteLen := t.NumElements() * int(t.DType.Size())
	newStorage, err := be.Alloc(byteLen)
	if err != nil {
		return nil, err
	}
	if err := be.Copy(newStorage, t.Storage, byteLen); err != nil {
		newStorage.Free()
		return nil, err
	}
	return New(newStorage, t.Shape.Clone(), nil, t.DType), nil
}

// CopyFrom overwrites t's data with src's. Shapes must match.
func (t *Tensor) CopyFrom(src *Tensor) error {
	if !t.Shape.Equal(src.Shape) {
		return fmt.Errorf("copy: shape %v into %v", src.Shape, t.Shape)
	}
	be, err := backend.GetForDevice(t.Storage.Device())
	if err != nil {
		return err
	}
	return be.Copy(t.Storage, src.Storage, t.NumElements()*int(t.DType.Size()))
}

// Zero sets every element to zero in place.
func (t *Tensor) Zero() error {
	be, err := backend.GetForDevice(t.Storage.Device())
	if err != nil {
		return err
	}
	return be.Fill(t.Storage, t.NumElements(), 0)
}

// IsZero reports whether every element equals zero.
func (t *Tensor) IsZero() bool {
	for _, v := range t.Float32() {
		if v != 0 {
			return false
		}
	}
	return true
}

// AllClose reports whether a and b have the same shape and
// |a-b| <= atol + rtol*|b| holds elementwise.
func AllClose(a, b *Tensor, atol, rtol float64) bool {
	if !a.Shape.Equal(b.Shape) {
		return false
	}
	av, bv := a.Float32(), b.Float32()
	for i := range av {
		x, y := float64(av[i]), float64(bv[i])
		if math.IsNaN(x) || math.IsNaN(y) || math.Abs(x-y) > atol+rtol*math.Abs(y) {
			return false
		}
	}
	return true
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v, dtype=%v)", t.Shape, t.DType)
}
