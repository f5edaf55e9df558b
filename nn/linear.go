package nn

import (
	"fmt"
	"math/rand/v2"

	"github.com/zstreet87/TopoModelX/ops"
	"github.com/zstreet87/TopoModelX/tensor"
)

// Linear is y = x @ W^T + bias. W is [OutSize, InSize], bias [OutSize].
type Linear struct {
	W       *Parameter // [OutSize, InSize]
	Bias    *Parameter // [OutSize]
	InSize  int
	OutSize int

	name string
}

// NewLinear creates a linear layer with zeroed W and bias.
func NewLinear(name string, inSize, outSize int) (*Linear, error) {
	if inSize <= 0 || outSize <= 0 {
		return nil, fmt.Errorf("linear %s: sizes must be positive, got %d -> %d", name, inSize, outSize)
	}
	w, err := tensor.Zeros(outSize, inSize)
	if err != nil {
		return nil, err
	}
	b, err := tensor.Zeros(outSize)
	if err != nil {
		return nil, err
	}
	return &Linear{
		W:       &Parameter{Name: "weight", Data: w},
		Bias:    &Parameter{Name: "bias", Data: b},
		InSize:  inSize,
		OutSize: outSize,
		name:    name,
	}, nil
}

func (l *Linear) Name() string             { return l.name }
func (l *Linear) Parameters() []*Parameter { return []*Parameter{l.W, l.Bias} }
func (l *Linear) Modules() []Module        { return []Module{l} }

func (l *Linear) ResetParameters() error {
	return ZeroParameters(l.Parameters())
}

// Init draws Xavier-uniform weights (gain 1) and zeroes the bias.
func (l *Linear) Init(src rand.Source) error {
	XavierUniform(l.W.Data, 1, src)
	return l.Bias.Data.Zero()
}

// Forward computes x @ W^T + bias. x: [..., InSize], out: [batch, OutSize]
// where batch is the product of the leading dims.
func (l *Linear) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) == 0 || x.Shape[len(x.Shape)-1] != l.InSize {
		return nil, fmt.Errorf("linear %s: input shape %v, want last dim %d", l.name, x.Shape, l.InSize)
	}
	batch := x.NumElements() / l.InSize
	x2, err := x.View(batch, l.InSize)
	if err != nil {
		return nil, err
	}
	wt, err := l.W.Data.Transpose()
	if err != nil {
		return nil, err
	}
	out, err := ops.MatMul(x2, wt)
	if err != nil {
		return nil, err
	}
	return ops.Add(out, l.Bias.Data)
}
