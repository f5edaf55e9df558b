package simplicial

import (
	boshlog "github.com/cloudfoundry/bosh-utils/logger"

	"github.com/zstreet87/TopoModelX/nn"
)

type layerOptions struct {
	aggrFunc nn.AggrFunc
	update   nn.Activation
	aggrNorm bool
	bias     bool
	seed     uint64
	logger   boshlog.Logger
}

func defaultLayerOptions() layerOptions {
	return layerOptions{
		aggrFunc: nn.AggrSum,
		update:   nn.ActivationSigmoid,
		bias:     true,
		logger:   boshlog.NewLogger(boshlog.LevelNone),
	}
}

// LayerOption customizes an SCCN layer or model.
type LayerOption func(*layerOptions)

// WithAggrFunc selects how messages from different neighborhoods are combined.
func WithAggrFunc(f nn.AggrFunc) LayerOption {
	return func(o *layerOptions) { o.aggrFunc = f }
}

// WithUpdateFunc sets the activation applied after aggregation (sigmoid by default).
func WithUpdateFunc(a nn.Activation) LayerOption {
	return func(o *layerOptions) { o.update = a }
}

// WithAggrNorm normalizes each convolution by neighborhood row sums.
func WithAggrNorm(enabled bool) LayerOption {
	return func(o *layerOptions) { o.aggrNorm = enabled }
}

// WithBias toggles the convolution biases (on by default).
func WithBias(enabled bool) LayerOption {
	return func(o *layerOptions) { o.bias = enabled }
}

// WithSeed seeds the Xavier initialization of the convolution weights.
func WithSeed(seed uint64) LayerOption {
	return func(o *layerOptions) { o.seed = seed }
}

// WithLogger sets the logger for forward pass debug output. nil keeps the default.
func WithLogger(logger boshlog.Logger) LayerOption {
	return func(o *layerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}
