package cpu

import (
	"math"
	"runtime"
	"unsafe"

	"golang.org/x/sync/errgroup"

	"github.com/zstreet87/TopoModelX/backend"
	"github.com/zstreet87/TopoModelX/core"
)

const (
	tileSize = 32
	// parallelFlops is the M*N*K volume above which MatMul fans rows out.
	parallelFlops = 1 << 18
)

type cpuBackend struct{}

func init() {
	backend.Register(&cpuBackend{})
}

func (c *cpuBackend) Name() string                   { return "cpu" }
func (c *cpuBackend) DeviceType() backend.DeviceType { return backend.CPU }

func (c *cpuBackend) Alloc(byteLen int) (backend.Storage, error) {
	return Alloc(byteLen), nil
}

func (c *cpuBackend) Free(s backend.Storage) {
	if cs, ok := s.(*storage); ok {
		cs.Free()
	}
}

func (c *cpuBackend) Copy(dst, src backend.Storage, byteLen int) error {
	db, sb := dst.Bytes(), src.Bytes()
	if db == nil || sb == nil {
		return backend.ErrUnsupported
	}
	copy(db[:byteLen], sb[:byteLen])
	return nil
}

func floatSlice(s backend.Storage, n int) []float32 {
	if n == 0 {
		return nil
	}
	b := s.Bytes()
	if len(b) < n*4 {
		n = len(b) / 4
	}
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), n)
}

func unary(dst, src backend.Storage, nElems int, f func(float32) float32) error {
	d := floatSlice(dst, nElems)
	x := floatSlice(src, nElems)
	for i := range d {
		d[i] = f(x[i])
	}
	return nil
}

func (c *cpuBackend) Tanh(dst, src backend.Storage, nElems int) error {
	return unary(dst, src, nElems, func(x float32) float32 {
		return float32(math.Tanh(float64(x)))
	})
}

func (c *cpuBackend) Relu(dst, src backend.Storage, nElems int) error {
	return unary(dst, src, nElems, func(x float32) float32 {
		if x > 0 {
			return x
		}
		return 0
	})
}

func (c *cpuBackend) Sigmoid(dst, src backend.Storage, nElems int) error {
	return unary(dst, src, nElems, func(x float32) float32 {
		// split on sign so exp never overflows
		if x >= 0 {
			return float32(1 / (1 + math.Exp(-float64(x))))
		}
		e := math.Exp(float64(x))
		return float32(e / (1 + e))
	})
}

func (c *cpuBackend) Scale(dst, src backend.Storage, nElems int, alpha float32) error {
	return unary(dst, src, nElems, func(x float32) float32 { return alpha * x })
}

// broadcastIter: for each linear out index, compute linear indices into a and b (NumPy broadcast).
// The returned closure reuses one index buffer and must not be shared across goroutines.
func broadcastIter(outShape, aShape, bShape core.Shape, aStrides, bStrides core.Strides) (nOut int, getIndices func(outLinear int) (aIdx, bIdx int)) {
	nOut = outShape.NumElements()
	nd := len(outShape)
	aPad := nd - len(aShape)
	bPad := nd - len(bShape)
	idx := make([]int, nd)
	getIndices = func(outLinear int) (aIdx, bIdx int) {
		rem := outLinear
		for i := nd - 1; i >= 0; i-- {
			idx[i] = rem % outShape[i]
			rem /= outShape[i]
		}
		for i := 0; i < nd; i++ {
			if i >= aPad && aShape[i-aPad] != 1 {
				aIdx += idx[i] * (aStrides[i-aPad] / 4)
			}
			if i >= bPad && bShape[i-bPad] != 1 {
				bIdx += idx[i] * (bStrides[i-bPad] / 4)
			}
		}
		return aIdx, bIdx
	}
	return nOut, getIndices
}

func binary(dst, a, b backend.Storage, aShape, bShape core.Shape, aStrides, bStrides core.Strides, outShape core.Shape, f func(x, y float32) float32) error {
	n, get := broadcastIter(outShape, aShape, bShape, aStrides, bStrides)
	d := floatSlice(dst, n)
	pa := floatSlice(a, aShape.NumElements())
	pb := floatSlice(b, bShape.NumElements())
	for i := 0; i < n; i++ {
		ai, bi := get(i)
		d[i] = f(pa[ai], pb[bi])
	}
	return nil
}

func (c *cpuBackend) Add(dst, a, b backend.Storage, aShape, bShape core.Shape, aStrides, bStrides core.Strides, outShape core.Shape) error {
	return binary(dst, a, b, aShape, bShape, aStrides, bStrides, outShape, func(x, y float32) float32 { return x + y })
}

func (c *cpuBackend) Mul(dst, a, b backend.Storage, aShape, bShape core.Shape, aStrides, bStrides core.Strides, outShape core.Shape) error {
	return binary(dst, a, b, aShape, bShape, aStrides, bStrides, outShape, func(x, y float32) float32 { return x * y })
}

func (c *cpuBackend) Sum(dst, src backend.Storage, srcShape core.Shape, srcStrides core.Strides, axis int) error {
	srcF := floatSlice(src, srcShape.NumElements())
	if axis < 0 || len(srcShape) == 0 {
		var sum float32
		for _, v := range srcF {
			sum += v
		}
		floatSlice(dst, 1)[0] = sum
		return nil
	}
	if axis >= len(srcShape) {
		return backend.ErrUnsupported
	}
	before := 1
	for i := 0; i < axis; i++ {
		before *= srcShape[i]
	}
	after := 1
	for i := axis + 1; i < len(srcShape); i++ {
		after *= srcShape[i]
	}
	dimSize := srcShape[axis]
	strideAxis := srcStrides[axis] / 4
	dstF := floatSlice(dst, before*after)
	for i := 0; i < before; i++ {
		for j := 0; j < after; j++ {
			// offset of element (i, 0, j) through the strides
			off := 0
			ii, jj := i, j
			for d := axis - 1; d >= 0; d-- {
				off += (ii % srcShape[d]) * (srcStrides[d] / 4)
				ii /= srcShape[d]
			}
			for d := len(srcShape) - 1; d > axis; d-- {
				off += (jj % srcShape[d]) * (srcStrides[d] / 4)
				jj /= srcShape[d]
			}
			var s float32
			for k := 0; k < dimSize; k++ {
				s += srcF[off+k*strideAxis]
			}
			dstF[i*after+j] = s
		}
	}
	return nil
}

func (c *cpuBackend) MatMul(dst, a, b backend.Storage, batchSize, M, N, K int) error {
	d := floatSlice(dst, batchSize*M*N)
	pa := floatSlice(a, batchSize*M*K)
	pb := floatSlice(b, batchSize*K*N)
	for i := range d {
		d[i] = 0
	}
	for batch := 0; batch < batchSize; batch++ {
		aB := pa[batch*M*K : (batch+1)*M*K]
		bB := pb[batch*K*N : (batch+1)*K*N]
		cB := d[batch*M*N : (batch+1)*M*N]
		if M*N*K < parallelFlops || M <= tileSize {
			matmulRows(cB, aB, bB, 0, M, N, K)
			continue
		}
		var g errgroup.Group
		g.SetLimit(runtime.GOMAXPROCS(0))
		for i0 := 0; i0 < M; i0 += tileSize {
			lo, hi := i0, min(i0+tileSize, M)
			g.Go(func() error {
				matmulRows(cB, aB, bB, lo, hi, N, K)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// matmulRows accumulates rows [iStart, iEnd) of C += A @ B, tiled over K and N.
func matmulRows(c, a, b []float32, iStart, iEnd, N, K int) {
	for k0 := 0; k0 < K; k0 += tileSize {
		kEnd := min(k0+tileSize, K)
		for j0 := 0; j0 < N; j0 += tileSize {
			jEnd := min(j0+tileSize, N)
			for i := iStart; i < iEnd; i++ {
				row := c[i*N+j0 : i*N+jEnd]
				for k := k0; k < kEnd; k++ {
					aik := a[i*K+k]
					if aik == 0 {
						// neighborhood matrices are mostly zeros
						continue
					}
					bRow := b[k*N+j0 : k*N+jEnd]
					for j := range row {
						row[j] += aik * bRow[j]
					}
				}
			}
		}
	}
}

func (c *cpuBackend) Transpose2D(dst, src backend.Storage, rows, cols int) error {
	d := floatSlice(dst, rows*cols)
	s := floatSlice(src, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			d[j*rows+i] = s[i*cols+j]
		}
	}
	return nil
}

func (c *cpuBackend) DivRows(dst, src, denom backend.Storage, rows, cols int) error {
	d := floatSlice(dst, rows*cols)
	s := floatSlice(src, rows*cols)
	q := floatSlice(denom, rows)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if q[i] == 0 {
				d[i*cols+j] = 0
				continue
			}
			d[i*cols+j] = s[i*cols+j] / q[i]
		}
	}
	return nil
}

func (c *cpuBackend) Fill(dst backend.Storage, nElems int, value float32) error {
	d := floatSlice(dst, nElems)
	for i := range d {
		d[i] = value
	}
	return nil
}
