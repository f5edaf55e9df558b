package nn

import (
	"fmt"

	"github.com/zstreet87/TopoModelX/ops"
	"github.com/zstreet87/TopoModelX/tensor"
)

// AggrFunc combines the messages a cell receives from several neighborhoods.
type AggrFunc string

const (
	AggrSum  AggrFunc = "sum"
	AggrMean AggrFunc = "mean"
)

// ParseAggrFunc accepts "sum" (also "") and "mean".
func ParseAggrFunc(s string) (AggrFunc, error) {
	switch f := AggrFunc(s); f {
	case "", AggrSum:
		return AggrSum, nil
	case AggrMean:
		return f, nil
	default:
		return "", fmt.Errorf("unknown aggregation %q", s)
	}
}

// Aggregation reduces same-shaped message tensors and applies an update function.
// It has no parameters.
type Aggregation struct {
	Func   AggrFunc
	Update Activation

	name string
}

func NewAggregation(name string, fn AggrFunc, update Activation) (*Aggregation, error) {
	if _, err := ParseAggrFunc(string(fn)); err != nil {
		return nil, err
	}
	if _, err := ParseActivation(string(update)); err != nil {
		return nil, err
	}
	if fn == "" {
		fn = AggrSum
	}
	return &Aggregation{Func: fn, Update: update, name: name}, nil
}

func (a *Aggregation) Name() string             { return a.name }
func (a *Aggregation) Parameters() []*Parameter { return nil }
func (a *Aggregation) Modules() []Module        { return []Module{a} }
func (a *Aggregation) ResetParameters() error   { return nil }

// Forward sums (or averages) xs and applies the update function.
func (a *Aggregation) Forward(xs []*tensor.Tensor) (*tensor.Tensor, error) {
	out, err := ops.AddN(xs...)
	if err != nil {
		return nil, fmt.Errorf("aggregation %s: %w", a.name, err)
	}
	if a.Func == AggrMean && len(xs) > 1 {
		if out, err = ops.Scale(out, 1/float32(len(xs))); err != nil {
			return nil, err
		}
	}
	return a.Update.Apply(out)
}
