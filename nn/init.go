package nn

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/zstreet87/TopoModelX/tensor"
)

// DefaultGain is the Xavier gain used for message passing weights, sqrt(2).
const DefaultGain = math.Sqrt2

// XavierUniform fills a 2D tensor [fanIn, fanOut] (or [fanOut, fanIn], the bound
// is symmetric) with samples from U(-a, a), a = gain * sqrt(6 / (fanIn + fanOut)).
func XavierUniform(t *tensor.Tensor, gain float64, src rand.Source) {
	fanIn, fanOut := fans(t)
	bound := gain * math.Sqrt(6/float64(fanIn+fanOut))
	dist := distuv.Uniform{Min: -bound, Max: bound, Src: src}
	data := t.Float32()
	for i := range data {
		data[i] = float32(dist.Rand())
	}
}

func fans(t *tensor.Tensor) (int, int) {
	switch len(t.Shape) {
	case 0:
		return 1, 1
	case 1:
		return t.Shape[0], t.Shape[0]
	default:
		return t.Shape[0], t.Shape[1]
	}
}

// NewSource returns the deterministic source used for parameter init.
func NewSource(seed uint64) rand.Source {
	return rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
}
