package simplicial

import (
	"context"
	"errors"
	"fmt"

	boshlog "github.com/cloudfoundry/bosh-utils/logger"
	"golang.org/x/sync/errgroup"

	"github.com/zstreet87/TopoModelX/nn"
	"github.com/zstreet87/TopoModelX/ops"
	"github.com/zstreet87/TopoModelX/tensor"
)

var (
	// ErrMissingRank is returned when an input map lacks a required rank.
	ErrMissingRank = errors.New("missing rank")
	// ErrShapeMismatch is returned when per-rank tensors disagree on shape.
	ErrShapeMismatch = errors.New("shape mismatch")
)

const layerTag = "sccnLayer"

// SCCNLayer is one simplicial complex convolution layer. For every rank r it
// convolves features of rank r over the rank r adjacency, features of rank
// r-1 up through the incidence, and features of rank r+1 down through the
// incidence, then aggregates the messages into new rank r features of the
// same width.
type SCCNLayer struct {
	Channels int
	MaxRank  int

	convsSameRank  []*nn.Conv // ranks 0..MaxRank
	convsLowToHigh []*nn.Conv // ranks 1..MaxRank, index 0 unused
	convsHighToLow []*nn.Conv // ranks 0..MaxRank-1
	aggregations   []*nn.Aggregation

	name   string
	logger boshlog.Logger
}

// NewSCCNLayer builds a layer for features of width channels on ranks
// 0..maxRank. Weights are Xavier-initialized from the configured seed.
func NewSCCNLayer(channels, maxRank int, opts ...LayerOption) (*SCCNLayer, error) {
	o := defaultLayerOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return newSCCNLayer("sccn_layer", channels, maxRank, o)
}

func newSCCNLayer(name string, channels, maxRank int, o layerOptions) (*SCCNLayer, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("sccn layer: channels must be positive, got %d", channels)
	}
	if maxRank < 0 {
		return nil, fmt.Errorf("sccn layer: max rank must be non-negative, got %d", maxRank)
	}
	l := &SCCNLayer{
		Channels:       channels,
		MaxRank:        maxRank,
		convsSameRank:  make([]*nn.Conv, maxRank+1),
		convsLowToHigh: make([]*nn.Conv, maxRank+1),
		convsHighToLow: make([]*nn.Conv, maxRank),
		aggregations:   make([]*nn.Aggregation, maxRank+1),
		name:           name,
		logger:         o.logger,
	}
	cfg := nn.ConvConfig{
		InChannels:  channels,
		OutChannels: channels,
		Bias:        o.bias,
		AggrNorm:    o.aggrNorm,
		Update:      nn.ActivationNone,
	}
	var err error
	for r := 0; r <= maxRank; r++ {
		key := RankKey(r)
		if l.convsSameRank[r], err = nn.NewConv("convs_same_rank."+key, cfg); err != nil {
			return nil, err
		}
		if r > 0 {
			if l.convsLowToHigh[r], err = nn.NewConv("convs_low_to_high."+key, cfg); err != nil {
				return nil, err
			}
		}
		if r < maxRank {
			if l.convsHighToLow[r], err = nn.NewConv("convs_high_to_low."+key, cfg); err != nil {
				return nil, err
			}
		}
		if l.aggregations[r], err = nn.NewAggregation("aggregations."+key, o.aggrFunc, o.update); err != nil {
			return nil, fmt.Errorf("sccn layer: %w", err)
		}
	}
	if err := l.Initialize(o.seed); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *SCCNLayer) convs() []*nn.Conv {
	out := make([]*nn.Conv, 0, 3*(l.MaxRank+1))
	out = append(out, l.convsSameRank...)
	out = append(out, l.convsLowToHigh[1:]...)
	out = append(out, l.convsHighToLow...)
	return out
}

func (l *SCCNLayer) Name() string { return l.name }

// Modules returns the layer, its convolutions and its aggregations.
func (l *SCCNLayer) Modules() []nn.Module {
	mods := []nn.Module{l}
	for _, c := range l.convs() {
		mods = append(mods, c)
	}
	for _, a := range l.aggregations {
		mods = append(mods, a)
	}
	return mods
}

// Parameters returns all convolution parameters, named e.g.
// "convs_same_rank.rank_0.weight".
func (l *SCCNLayer) Parameters() []*nn.Parameter {
	var params []*nn.Parameter
	for _, c := range l.convs() {
		params = append(params, nn.Prefixed(c.Name(), c.Parameters())...)
	}
	return params
}

// ResetParameters zeroes every convolution weight and bias.
func (l *SCCNLayer) ResetParameters() error {
	for _, c := range l.convs() {
		if err := c.ResetParameters(); err != nil {
			return err
		}
	}
	return nil
}

// Initialize redraws all weights from seed and zeroes the biases.
func (l *SCCNLayer) Initialize(seed uint64) error {
	src := nn.NewSource(seed)
	for _, c := range l.convs() {
		if err := c.Init(src); err != nil {
			return err
		}
	}
	return nil
}

// Forward runs the layer; see ForwardContext.
func (l *SCCNLayer) Forward(x, incidences, adjacencies RankMap) (RankMap, error) {
	return l.ForwardContext(context.Background(), x, incidences, adjacencies)
}

// ForwardContext maps features x (rank_0..rank_MaxRank, each [n_r, Channels])
// to new features of the same shapes. incidences must hold rank_1..rank_MaxRank
// as [n_{r-1}, n_r]; adjacencies rank_0..rank_MaxRank as [n_r, n_r].
// Ranks are processed concurrently.
func (l *SCCNLayer) ForwardContext(ctx context.Context, x, incidences, adjacencies RankMap) (RankMap, error) {
	counts, err := l.validate(x, incidences, adjacencies)
	if err != nil {
		return nil, err
	}
	outs := make([]*tensor.Tensor, l.MaxRank+1)
	g, ctx := errgroup.WithContext(ctx)
	for r := 0; r <= l.MaxRank; r++ {
		g.Go(func() error {
			out, err := l.forwardRank(ctx, r, x, incidences, adjacencies)
			if err != nil {
				return fmt.Errorf("sccn layer %s: %s: %w", l.name, RankKey(r), err)
			}
			outs[r] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	result := make(RankMap, len(outs))
	for r, t := range outs {
		result[RankKey(r)] = t
	}
	l.logger.Debug(layerTag, "Forward %s over cell counts %v with %d channels", l.name, counts, l.Channels)
	return result, nil
}

func (l *SCCNLayer) forwardRank(ctx context.Context, r int, x, incidences, adjacencies RankMap) (*tensor.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	xr, _ := x.At(r)
	adj, _ := adjacencies.At(r)
	same, err := l.convsSameRank[r].Forward(xr, adj)
	if err != nil {
		return nil, err
	}
	messages := []*tensor.Tensor{same}

	if r > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		inc, _ := incidences.At(r)
		coboundary, err := ops.Transpose(inc)
		if err != nil {
			return nil, err
		}
		lower, _ := x.At(r - 1)
		up, err := l.convsLowToHigh[r].Forward(lower, coboundary)
		if err != nil {
			return nil, err
		}
		messages = append(messages, up)
	}
	if r < l.MaxRank {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		inc, _ := incidences.At(r + 1)
		upper, _ := x.At(r + 1)
		down, err := l.convsHighToLow[r].Forward(upper, inc)
		if err != nil {
			return nil, err
		}
		messages = append(messages, down)
	}
	return l.aggregations[r].Forward(messages)
}

// validate checks presence and shapes of all inputs and returns the cell count per rank.
func (l *SCCNLayer) validate(x, incidences, adjacencies RankMap) ([]int, error) {
	counts := make([]int, l.MaxRank+1)
	for r := 0; r <= l.MaxRank; r++ {
		xr, ok := x.At(r)
		if !ok {
			return nil, fmt.Errorf("%w: features %s", ErrMissingRank, RankKey(r))
		}
		if len(xr.Shape) != 2 || xr.Shape[1] != l.Channels {
			return nil, fmt.Errorf("%w: features %s have shape %v, want (n, %d)", ErrShapeMismatch, RankKey(r), xr.Shape, l.Channels)
		}
		counts[r] = xr.Shape[0]
	}
	for r := 0; r <= l.MaxRank; r++ {
		adj, ok := adjacencies.At(r)
		if !ok {
			return nil, fmt.Errorf("%w: adjacency %s", ErrMissingRank, RankKey(r))
		}
		if want := (tensor.Shape{counts[r], counts[r]}); !adj.Shape.Equal(want) {
			return nil, fmt.Errorf("%w: adjacency %s has shape %v, want %v", ErrShapeMismatch, RankKey(r), adj.Shape, want)
		}
		if r == 0 {
			continue
		}
		inc, ok := incidences.At(r)
		if !ok {
			return nil, fmt.Errorf("%w: incidence %s", ErrMissingRank, RankKey(r))
		}
		if want := (tensor.Shape{counts[r-1], counts[r]}); !inc.Shape.Equal(want) {
			return nil, fmt.Errorf("%w: incidence %s has shape %v, want %v", ErrShapeMismatch, RankKey(r), inc.Shape, want)
		}
	}
	return counts, nil
}
