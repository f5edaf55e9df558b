package cpu_test

import (
	"math/rand/v2"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/zstreet87/TopoModelX/backend"
	"github.com/zstreet87/TopoModelX/backend/cpu"
	"github.com/zstreet87/TopoModelX/core"
)

func floats(s backend.Storage) []float32 {
	b := s.Bytes()
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}

func storageOf(data []float32) backend.Storage {
	s := cpu.Alloc(len(data) * 4)
	copy(floats(s), data)
	return s
}

func cpuBackend(t *testing.T) backend.Backend {
	be, err := backend.GetForDevice(backend.CPU0)
	require.NoError(t, err)
	require.Equal(t, "cpu", be.Name())
	return be
}

func TestMatMulMatchesGonum(t *testing.T) {
	be := cpuBackend(t)
	rng := rand.New(rand.NewPCG(1, 2))
	for _, dims := range [][3]int{{3, 4, 5}, {1, 1, 1}, {70, 40, 33}, {130, 64, 90}} {
		M, N, K := dims[0], dims[1], dims[2]
		a := make([]float32, M*K)
		b := make([]float32, K*N)
		a64 := make([]float64, M*K)
		b64 := make([]float64, K*N)
		for i := range a {
			a[i] = float32(rng.NormFloat64())
			a64[i] = float64(a[i])
		}
		for i := range b {
			b[i] = float32(rng.NormFloat64())
			b64[i] = float64(b[i])
		}
		var want mat.Dense
		want.Mul(mat.NewDense(M, K, a64), mat.NewDense(K, N, b64))

		dst := cpu.Alloc(M * N * 4)
		// stale values must be overwritten
		require.NoError(t, be.Fill(dst, M*N, 7))
		require.NoError(t, be.MatMul(dst, storageOf(a), storageOf(b), 1, M, N, K))
		got := floats(dst)
		for i := 0; i < M; i++ {
			for j := 0; j < N; j++ {
				assert.InDelta(t, want.At(i, j), float64(got[i*N+j]), 1e-3, "dims %v at (%d,%d)", dims, i, j)
			}
		}
	}
}

func TestAddBroadcastsRowVector(t *testing.T) {
	be := cpuBackend(t)
	a := storageOf([]float32{1, 2, 3, 4, 5, 6})
	b := storageOf([]float32{10, 20, 30})
	aShape, bShape := core.Shape{2, 3}, core.Shape{3}
	dst := cpu.Alloc(6 * 4)
	require.NoError(t, be.Add(dst, a, b, aShape, bShape,
		core.ContiguousStrides(aShape, 4), core.ContiguousStrides(bShape, 4), aShape))
	assert.Equal(t, []float32{11, 22, 33, 14, 25, 36}, floats(dst))
}

func TestSumAlongAxis(t *testing.T) {
	be := cpuBackend(t)
	src := storageOf([]float32{1, 2, 3, 4, 5, 6})
	shape := core.Shape{2, 3}
	strides := core.ContiguousStrides(shape, 4)

	rows := cpu.Alloc(2 * 4)
	require.NoError(t, be.Sum(rows, src, shape, strides, 1))
	assert.Equal(t, []float32{6, 15}, floats(rows))

	cols := cpu.Alloc(3 * 4)
	require.NoError(t, be.Sum(cols, src, shape, strides, 0))
	assert.Equal(t, []float32{5, 7, 9}, floats(cols))

	all := cpu.Alloc(4)
	require.NoError(t, be.Sum(all, src, shape, strides, -1))
	assert.Equal(t, []float32{21}, floats(all))
}

func TestTransposeAndDivRows(t *testing.T) {
	be := cpuBackend(t)
	src := storageOf([]float32{1, 2, 3, 4, 5, 6})
	dst := cpu.Alloc(6 * 4)
	require.NoError(t, be.Transpose2D(dst, src, 2, 3))
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, floats(dst))

	denom := storageOf([]float32{2, 0})
	out := cpu.Alloc(6 * 4)
	require.NoError(t, be.DivRows(out, src, denom, 2, 3))
	assert.Equal(t, []float32{0.5, 1, 1.5, 0, 0, 0}, floats(out))
}

func TestActivations(t *testing.T) {
	be := cpuBackend(t)
	src := storageOf([]float32{-1000, -1, 0, 2})
	dst := cpu.Alloc(4 * 4)

	require.NoError(t, be.Relu(dst, src, 4))
	assert.Equal(t, []float32{0, 0, 0, 2}, floats(dst))

	require.NoError(t, be.Sigmoid(dst, src, 4))
	got := floats(dst)
	assert.InDelta(t, 0, got[0], 1e-6)
	assert.InDelta(t, 0.2689414, got[1], 1e-6)
	assert.InDelta(t, 0.5, got[2], 1e-6)

	require.NoError(t, be.Scale(dst, src, 4, -0.5))
	assert.Equal(t, []float32{500, 0.5, 0, -1}, floats(dst))
}
