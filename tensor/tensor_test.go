package tensor_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/zstreet87/TopoModelX/backend/cpu"
	"github.com/zstreet87/TopoModelX/core"
	"github.com/zstreet87/TopoModelX/tensor"
)

func TestFromFloat32RejectsShapeMismatch(t *testing.T) {
	_, err := tensor.FromFloat32([]float32{1, 2, 3}, 2, 2)
	require.Error(t, err)

	x, err := tensor.FromFloat32([]float32{1, 2, 3, 4}, 2, 2)
	require.NoError(t, err)
	assert.True(t, x.Shape.Equal(core.Shape{2, 2}))
	assert.True(t, x.Contiguous())
}

func TestTransposeCopies(t *testing.T) {
	x, err := tensor.FromFloat32([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	require.NoError(t, err)
	xt, err := x.Transpose()
	require.NoError(t, err)
	assert.True(t, xt.Shape.Equal(core.Shape{3, 2}))
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, xt.Float32())
	assert.Equal(t, float32(6), xt.At(2, 1))

	xt.Float32()[0] = 100
	assert.Equal(t, float32(1), x.Float32()[0])
}

func TestTransposeRejectsStridedAndForeignTensors(t *testing.T) {
	x, err := tensor.FromFloat32([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	require.NoError(t, err)

	// column-major view of the same storage
	strided := tensor.New(x.Storage, core.Shape{3, 2}, core.Strides{4, 12}, core.Float32)
	assert.Equal(t, float32(4), strided.At(0, 1))
	_, err = strided.Transpose()
	require.ErrorContains(t, err, "non-contiguous")

	foreign := tensor.New(x.Storage, core.Shape{2, 3}, core.Strides{12, 4}, core.DType(7))
	_, err = foreign.Transpose()
	require.ErrorContains(t, err, "dtype(7)")
}

func TestViewAndClone(t *testing.T) {
	x, err := tensor.FromFloat32([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	require.NoError(t, err)
	v, err := x.View(3, 2)
	require.NoError(t, err)
	v.Float32()[0] = 9
	assert.Equal(t, float32(9), x.Float32()[0])

	_, err = x.View(4, 2)
	require.Error(t, err)

	c, err := x.Clone()
	require.NoError(t, err)
	c.Float32()[1] = -1
	assert.Equal(t, float32(2), x.Float32()[1])
}

func TestRandomConstructorsAreSeeded(t *testing.T) {
	a, err := tensor.Randn(rand.New(rand.NewPCG(7, 7)), 10, 5)
	require.NoError(t, err)
	b, err := tensor.Randn(rand.New(rand.NewPCG(7, 7)), 10, 5)
	require.NoError(t, err)
	assert.True(t, tensor.AllClose(a, b, 0, 0))

	inc, err := tensor.RandInt(rand.New(rand.NewPCG(1, 1)), 0, 2, 10, 20)
	require.NoError(t, err)
	for _, v := range inc.Float32() {
		assert.Contains(t, []float32{0, 1}, v)
	}
	_, err = tensor.RandInt(rand.New(rand.NewPCG(1, 1)), 2, 2, 3)
	require.Error(t, err)
}

func TestZeroAndIsZero(t *testing.T) {
	x, err := tensor.Full(3, 4, 5)
	require.NoError(t, err)
	assert.False(t, x.IsZero())
	require.NoError(t, x.Zero())
	assert.True(t, x.IsZero())

	z, err := tensor.Zeros(4, 5)
	require.NoError(t, err)
	assert.True(t, tensor.AllClose(x, z, 0, 0))

	other, err := tensor.Zeros(5, 4)
	require.NoError(t, err)
	assert.False(t, tensor.AllClose(x, other, 1, 1))
}

func TestCopyFrom(t *testing.T) {
	dst, err := tensor.Zeros(2, 2)
	require.NoError(t, err)
	src, err := tensor.FromFloat32([]float32{1, 2, 3, 4}, 2, 2)
	require.NoError(t, err)
	require.NoError(t, dst.CopyFrom(src))
	assert.Equal(t, src.Float32(), dst.Float32())

	wrong, err := tensor.Zeros(4)
	require.NoError(t, err)
	require.Error(t, dst.CopyFrom(wrong))
}
