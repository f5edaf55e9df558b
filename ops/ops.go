package ops

import (
	"fmt"

	"github.com/zstreet87/TopoModelX/backend"
	"github.com/zstreet87/TopoModelX/core"
	"github.com/zstreet87/TopoModelX/tensor"
)

func alloc(t *tensor.Tensor, nElems int) (backend.Backend, backend.Storage, error) {
	be, err := backend.GetForDevice(t.Storage.Device())
	if err != nil {
		return nil, nil, err
	}
	s, err := be.Alloc(nElems * 4)
	if err != nil {
		return nil, nil, err
	}
	return be, s, nil
}

func checkFloat32(op string, ts ...*tensor.Tensor) error {
	for _, t := range ts {
		if t.DType != core.Float32 {
			return fmt.Errorf("%s: dtype %v not supported", op, t.DType)
		}
	}
	return nil
}

// Add returns a + b with broadcasting.
func Add(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkFloat32("add", a, b); err != nil {
		return nil, err
	}
	outShape, err := core.BroadcastShapes(a.Shape, b.Shape)
	if err != nil {
		return nil, err
	}
	be, outStorage, err := alloc(a, outShape.NumElements())
	if err != nil {
		return nil, err
	}
	if err := be.Add(outStorage, a.Storage, b.Storage, a.Shape, b.Shape, a.Strides, b.Strides, outShape); err != nil {
		outStorage.Free()
		return nil, err
	}
	return tensor.New(outStorage, outShape, nil, core.Float32), nil
}

// AddN sums tensors of identical shape. At least one tensor is required.
func AddN(ts ...*tensor.Tensor) (*tensor.Tensor, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("addn: no inputs")
	}
	for _, t := range ts[1:] {
		if !t.Shape.Equal(ts[0].Shape) {
			return nil, fmt.Errorf("addn: shape %v does not match %v", t.Shape, ts[0].Shape)
		}
	}
	out, err := ts[0].Clone()
	if err != nil {
		return nil, err
	}
	be, err := backend.GetForDevice(out.Storage.Device())
	if err != nil {
		return nil, err
	}
	for _, t := range ts[1:] {
		if err := be.Add(out.Storage, out.Storage, t.Storage, out.Shape, t.Shape, out.Strides, t.Strides, out.Shape); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Mul returns a * b (element-wise with broadcast).
func Mul(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkFloat32("mul", a, b); err != nil {
		return nil, err
	}
	outShape, err := core.BroadcastShapes(a.Shape, b.Shape)
	if err != nil {
		return nil, err
	}
	be, outStorage, err := alloc(a, outShape.NumElements())
	if err != nil {
		return nil, err
	}
	if err := be.Mul(outStorage, a.Storage, b.Storage, a.Shape, b.Shape, a.Strides, b.Strides, outShape); err != nil {
		outStorage.Free()
		return nil, err
	}
	return tensor.New(outStorage, outShape, nil, core.Float32), nil
}

// Scale returns alpha * x.
func Scale(x *tensor.Tensor, alpha float32) (*tensor.Tensor, error) {
	be, outStorage, err := alloc(x, x.NumElements())
	if err != nil {
		return nil, err
	}
	if err := be.Scale(outStorage, x.Storage, x.NumElements(), alpha); err != nil {
		outStorage.Free()
		return nil, err
	}
	return tensor.New(outStorage, x.Shape.Clone(), nil, core.Float32), nil
}

// MatMul returns a @ b. a: [..., M, K], b: [..., K, N] -> [..., M, N].
// Leading (batch) dims of a and b must agree.
func MatMul(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkFloat32("matmul", a, b); err != nil {
		return nil, err
	}
	if len(a.Shape) < 2 || len(b.Shape) < 2 || len(a.Shape) != len(b.Shape) {
		return nil, fmt.Errorf("matmul requires 2D or batched 2D of equal rank, got %v and %v", a.Shape, b.Shape)
	}
	if !a.Contiguous() || !b.Contiguous() {
		return nil, fmt.Errorf("matmul requires contiguous inputs")
	}
	M, K := a.Shape[len(a.Shape)-2], a.Shape[len(a.Shape)-1]
	K2, N := b.Shape[len(b.Shape)-2], b.Shape[len(b.Shape)-1]
	if K != K2 {
		return nil, fmt.Errorf("matmul: a last dim %d != b second-to-last %d", K, K2)
	}
	batchSize := 1
	for i := 0; i < len(a.Shape)-2; i++ {
		if a.Shape[i] != b.Shape[i] {
			return nil, fmt.Errorf("matmul: batch dims %v and %v differ", a.Shape, b.Shape)
		}
		batchSize *= a.Shape[i]
	}
	outShape := a.Shape.Clone()
	outShape[len(outShape)-1] = N
	outShape[len(outShape)-2] = M
	be, outStorage, err := alloc(a, outShape.NumElements())
	if err != nil {
		return nil, err
	}
	if err := be.MatMul(outStorage, a.Storage, b.Storage, batchSize, M, N, K); err != nil {
		outStorage.Free()
		return nil, err
	}
	return tensor.New(outStorage, outShape, nil, core.Float32), nil
}

// Transpose returns a contiguous transpose of a 2D tensor.
func Transpose(x *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkFloat32("transpose", x); err != nil {
		return nil, err
	}
	return x.Transpose()
}

type unaryFunc func(be backend.Backend, dst, src backend.Storage, n int) error

func unary(x *tensor.Tensor, f unaryFunc) (*tensor.Tensor, error) {
	be, outStorage, err := alloc(x, x.NumElements())
	if err != nil {
		return nil, err
	}
	if err := f(be, outStorage, x.Storage, x.NumElements()); err != nil {
		outStorage.Free()
		return nil, err
	}
	return tensor.New(outStorage, x.Shape.Clone(), nil, core.Float32), nil
}

// Relu returns max(0, x).
func Relu(x *tensor.Tensor) (*tensor.Tensor, error) {
	return unary(x, func(be backend.Backend, dst, src backend.Storage, n int) error { return be.Relu(dst, src, n) })
}

func Sigmoid(x *tensor.Tensor) (*tensor.Tensor, error) {
	return unary(x, func(be backend.Backend, dst, src backend.Storage, n int) error { return be.Sigmoid(dst, src, n) })
}

func Tanh(x *tensor.Tensor) (*tensor.Tensor, error) {
	return unary(x, func(be backend.Backend, dst, src backend.Storage, n int) error { return be.Tanh(dst, src, n) })
}

// Sum reduces x along axis (negative = all axes). The reduced axis is dropped.
func Sum(x *tensor.Tensor, axis int) (*tensor.Tensor, error) {
	var outShape core.Shape
	if axis < 0 {
		outShape = core.Shape{1}
	} else {
		if axis >= len(x.Shape) {
			return nil, fmt.Errorf("sum: axis %d out of range for shape %v", axis, x.Shape)
		}
		outShape = append(x.Shape[:axis:axis], x.Shape[axis+1:]...)
		if len(outShape) == 0 {
			outShape = core.Shape{1}
		}
	}
	be, outStorage, err := alloc(x, outShape.NumElements())
	if err != nil {
		return nil, err
	}
	if err := be.Sum(outStorage, x.Storage, x.Shape, x.Strides, axis); err != nil {
		outStorage.Free()
		return nil, err
	}
	return tensor.New(outStorage, outShape, nil, core.Float32), nil
}

// RowSum returns the [rows] vector of row sums of a 2D tensor.
func RowSum(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 2 {
		return nil, fmt.Errorf("rowsum: expected 2D tensor, got shape %v", x.Shape)
	}
	return Sum(x, 1)
}

// DivRows divides row i of x [rows, cols] by denom[i]; rows with zero
// denominator become zero.
func DivRows(x, denom *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 2 || denom.NumElements() != x.Shape[0] {
		return nil, fmt.Errorf("divrows: x %v incompatible with denominator %v", x.Shape, denom.Shape)
	}
	be, outStorage, err := alloc(x, x.NumElements())
	if err != nil {
		return nil, err
	}
	if err := be.DivRows(outStorage, x.Storage, denom.Storage, x.Shape[0], x.Shape[1]); err != nil {
		outStorage.Free()
		return nil, err
	}
	return tensor.New(outStorage, x.Shape.Clone(), nil, core.Float32), nil
}

// RowNormalize divides row i of x by the i-th row sum of a, so that a @ y
// averages instead of sums when x = a @ y. Rows of a that sum to zero give zero.
func RowNormalize(a, x *tensor.Tensor) (*tensor.Tensor, error) {
	deg, err := RowSum(a)
	if err != nil {
		return nil, err
	}
	return DivRows(x, deg)
}
