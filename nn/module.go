package nn

import (
	"github.com/zstreet87/TopoModelX/tensor"
)

// Parameter is a named trainable tensor owned by a module.
type Parameter struct {
	Name string
	Data *tensor.Tensor
}

// Module is a node in a tree of layers.
type Module interface {
	// Name identifies the module within its parent.
	Name() string
	// Parameters returns every trainable tensor of the module and its
	// children. Names are dotted paths relative to the module.
	Parameters() []*Parameter
	// Modules returns the module itself followed by all descendants, depth first.
	Modules() []Module
	// ResetParameters zeroes every weight and bias of the module tree.
	ResetParameters() error
}

// Prefixed returns copies of params with prefix + "." prepended to each name.
// The underlying tensors are shared.
func Prefixed(prefix string, params []*Parameter) []*Parameter {
	out := make([]*Parameter, len(params))
	for i, p := range params {
		out[i] = &Parameter{Name: prefix + "." + p.Name, Data: p.Data}
	}
	return out
}

// ZeroParameters zeroes the given parameters in place.
func ZeroParameters(params []*Parameter) error {
	for _, p := range params {
		if err := p.Data.Zero(); err != nil {
			return err
		}
	}
	return nil
}

// CountParameters returns the total number of scalar parameters.
func CountParameters(m Module) int {
	n := 0
	for _, p := range m.Parameters() {
		n += p.Data.NumElements()
	}
	return n
}
