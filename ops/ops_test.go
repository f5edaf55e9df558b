package ops_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/zstreet87/TopoModelX/backend/cpu"
	"github.com/zstreet87/TopoModelX/core"
	"github.com/zstreet87/TopoModelX/ops"
	"github.com/zstreet87/TopoModelX/tensor"
)

func mustTensor(t *testing.T, data []float32, shape ...int) *tensor.Tensor {
	t.Helper()
	x, err := tensor.FromFloat32(data, shape...)
	require.NoError(t, err)
	return x
}

func TestMatMulShapes(t *testing.T) {
	a := mustTensor(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	b := mustTensor(t, []float32{1, 0, 0, 1, 1, 1}, 3, 2)
	out, err := ops.MatMul(a, b)
	require.NoError(t, err)
	assert.True(t, out.Shape.Equal(core.Shape{2, 2}))
	assert.Equal(t, []float32{4, 5, 10, 11}, out.Float32())

	_, err = ops.MatMul(a, a)
	require.Error(t, err)
}

func TestBatchedMatMul(t *testing.T) {
	a := mustTensor(t, []float32{1, 0, 0, 1, 2, 0, 0, 2}, 2, 2, 2)
	b := mustTensor(t, []float32{1, 2, 3, 4, 1, 2, 3, 4}, 2, 2, 2)
	out, err := ops.MatMul(a, b)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4, 2, 4, 6, 8}, out.Float32())
}

func TestAddN(t *testing.T) {
	a := mustTensor(t, []float32{1, 2}, 2)
	b := mustTensor(t, []float32{10, 20}, 2)
	c := mustTensor(t, []float32{100, 200}, 2)
	out, err := ops.AddN(a, b, c)
	require.NoError(t, err)
	assert.Equal(t, []float32{111, 222}, out.Float32())
	assert.Equal(t, []float32{1, 2}, a.Float32())

	_, err = ops.AddN()
	require.Error(t, err)
	_, err = ops.AddN(a, mustTensor(t, []float32{1, 2, 3}, 3))
	require.Error(t, err)
}

func TestRowSumAndDivRows(t *testing.T) {
	x := mustTensor(t, []float32{1, 1, 0, 0, 0, 0, 2, 2, 0}, 3, 3)
	sums, err := ops.RowSum(x)
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 0, 4}, sums.Float32())

	norm, err := ops.DivRows(x, sums)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5, 0, 0, 0, 0, 0.5, 0.5, 0}, norm.Float32())
}

func TestAddBroadcastAndScale(t *testing.T) {
	x := mustTensor(t, []float32{1, 2, 3, 4}, 2, 2)
	bias := mustTensor(t, []float32{1, -1}, 2)
	out, err := ops.Add(x, bias)
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 1, 4, 3}, out.Float32())

	scaled, err := ops.Scale(out, 2)
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 2, 8, 6}, scaled.Float32())

	prod, err := ops.Mul(x, bias)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, -2, 3, -4}, prod.Float32())
}

func TestRowNormalizeAverages(t *testing.T) {
	adj := mustTensor(t, []float32{1, 1, 0, 0}, 2, 2)
	y := mustTensor(t, []float32{2, 4, 6, 8}, 2, 2)
	summed, err := ops.MatMul(adj, y)
	require.NoError(t, err)
	out, err := ops.RowNormalize(adj, summed)
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 6, 0, 0}, out.Float32())
}

func TestTransposeRejectsForeignDType(t *testing.T) {
	x := mustTensor(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	xt, err := ops.Transpose(x)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, xt.Float32())

	bad := tensor.New(x.Storage, x.Shape, x.Strides, core.DType(3))
	_, err = ops.Transpose(bad)
	require.Error(t, err)
}
