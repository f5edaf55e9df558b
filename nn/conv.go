package nn

import (
	"fmt"
	"math/rand/v2"

	"github.com/zstreet87/TopoModelX/ops"
	"github.com/zstreet87/TopoModelX/tensor"
)

// ConvConfig configures a message passing convolution.
type ConvConfig struct {
	InChannels  int
	OutChannels int
	// Bias adds a learnable [OutChannels] offset after aggregation.
	Bias bool
	// AggrNorm divides each aggregated message by the row sum of the neighborhood.
	AggrNorm bool
	// Update is applied last; ActivationNone leaves the messages as is.
	Update Activation
}

// Conv is a message passing convolution over a neighborhood matrix:
//
//	out = update(N @ (x @ W) + b)
//
// where N is [n_dst, n_src], x is [n_src, in] and W is [in, out].
type Conv struct {
	ConvConfig
	Weight *Parameter // [InChannels, OutChannels]
	Bias   *Parameter // [OutChannels], nil when disabled

	name string
}

// NewConv allocates a convolution with zeroed parameters. Call Init for random weights.
func NewConv(name string, cfg ConvConfig) (*Conv, error) {
	if cfg.InChannels <= 0 || cfg.OutChannels <= 0 {
		return nil, fmt.Errorf("conv %s: channels must be positive, got in=%d out=%d", name, cfg.InChannels, cfg.OutChannels)
	}
	if _, err := ParseActivation(string(cfg.Update)); err != nil {
		return nil, fmt.Errorf("conv %s: %w", name, err)
	}
	w, err := tensor.Zeros(cfg.InChannels, cfg.OutChannels)
	if err != nil {
		return nil, err
	}
	c := &Conv{ConvConfig: cfg, Weight: &Parameter{Name: "weight", Data: w}, name: name}
	if cfg.Bias {
		b, err := tensor.Zeros(cfg.OutChannels)
		if err != nil {
			return nil, err
		}
		c.Bias = &Parameter{Name: "bias", Data: b}
	}
	return c, nil
}

func (c *Conv) Name() string { return c.name }

func (c *Conv) Parameters() []*Parameter {
	if c.Bias == nil {
		return []*Parameter{c.Weight}
	}
	return []*Parameter{c.Weight, c.Bias}
}

func (c *Conv) Modules() []Module { return []Module{c} }

// ResetParameters sets weight and bias to zero.
func (c *Conv) ResetParameters() error {
	return ZeroParameters(c.Parameters())
}

// Init draws Xavier-uniform weights (gain sqrt 2) from src and zeroes the bias.
func (c *Conv) Init(src rand.Source) error {
	XavierUniform(c.Weight.Data, DefaultGain, src)
	if c.Bias != nil {
		return c.Bias.Data.Zero()
	}
	return nil
}

// Forward passes messages from x [n_src, in] over neighborhood [n_dst, n_src].
func (c *Conv) Forward(x, neighborhood *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 2 || x.Shape[1] != c.InChannels {
		return nil, fmt.Errorf("conv %s: input shape %v, want (n, %d)", c.name, x.Shape, c.InChannels)
	}
	if len(neighborhood.Shape) != 2 || neighborhood.Shape[1] != x.Shape[0] {
		return nil, fmt.Errorf("conv %s: neighborhood shape %v incompatible with %d source cells", c.name, neighborhood.Shape, x.Shape[0])
	}
	msg, err := ops.MatMul(x, c.Weight.Data)
	if err != nil {
		return nil, err
	}
	out, err := ops.MatMul(neighborhood, msg)
	if err != nil {
		return nil, err
	}
	if c.AggrNorm {
		if out, err = ops.RowNormalize(neighborhood, out); err != nil {
			return nil, err
		}
	}
	if c.Bias != nil {
		if out, err = ops.Add(out, c.Bias.Data); err != nil {
			return nil, err
		}
	}
	return c.Update.Apply(out)
}
