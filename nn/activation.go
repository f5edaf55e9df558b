package nn

import (
	"fmt"

	"github.com/zstreet87/TopoModelX/ops"
	"github.com/zstreet87/TopoModelX/tensor"
)

// Activation is an elementwise update function applied after message passing.
type Activation string

const (
	ActivationNone    Activation = "none"
	ActivationSigmoid Activation = "sigmoid"
	ActivationRelu    Activation = "relu"
	ActivationTanh    Activation = "tanh"
)

// ParseActivation accepts "", "none", "sigmoid", "relu" and "tanh".
func ParseActivation(s string) (Activation, error) {
	switch a := Activation(s); a {
	case "", ActivationNone:
		return ActivationNone, nil
	case ActivationSigmoid, ActivationRelu, ActivationTanh:
		return a, nil
	default:
		return "", fmt.Errorf("unknown activation %q", s)
	}
}

// Apply runs the activation. ActivationNone returns x unchanged.
func (a Activation) Apply(x *tensor.Tensor) (*tensor.Tensor, error) {
	switch a {
	case "", ActivationNone:
		return x, nil
	case ActivationSigmoid:
		return ops.Sigmoid(x)
	case ActivationRelu:
		return ops.Relu(x)
	case ActivationTanh:
		return ops.Tanh(x)
	default:
		return nil, fmt.Errorf("unknown activation %q", string(a))
	}
}
