package simplicial

import (
	"context"
	"fmt"
	"strconv"

	boshlog "github.com/cloudfoundry/bosh-utils/logger"

	"github.com/zstreet87/TopoModelX/nn"
)

const modelTag = "sccn"

// SCCN stacks SCCN layers and optionally projects each rank's final
// features to OutChannels with a per-rank linear readout.
type SCCN struct {
	Channels    int
	MaxRank     int
	OutChannels int // 0 disables the readout
	Layers      []*SCCNLayer
	Readouts    []*nn.Linear // one per rank when OutChannels > 0

	logger boshlog.Logger
}

// NewSCCN builds nLayers layers. Layer i is seeded with seed+i.
func NewSCCN(channels, maxRank, nLayers, outChannels int, opts ...LayerOption) (*SCCN, error) {
	if nLayers <= 0 {
		return nil, fmt.Errorf("sccn: need at least one layer, got %d", nLayers)
	}
	if outChannels < 0 {
		return nil, fmt.Errorf("sccn: out channels must be non-negative, got %d", outChannels)
	}
	o := defaultLayerOptions()
	for _, opt := range opts {
		opt(&o)
	}
	m := &SCCN{
		Channels:    channels,
		MaxRank:     maxRank,
		OutChannels: outChannels,
		Layers:      make([]*SCCNLayer, nLayers),
		logger:      o.logger,
	}
	for i := range m.Layers {
		lo := o
		lo.seed = o.seed + uint64(i)
		l, err := newSCCNLayer("layers."+strconv.Itoa(i), channels, maxRank, lo)
		if err != nil {
			return nil, err
		}
		m.Layers[i] = l
	}
	if outChannels > 0 {
		src := nn.NewSource(o.seed + uint64(nLayers))
		m.Readouts = make([]*nn.Linear, maxRank+1)
		for r := range m.Readouts {
			lin, err := nn.NewLinear("readouts."+RankKey(r), channels, outChannels)
			if err != nil {
				return nil, err
			}
			if err := lin.Init(src); err != nil {
				return nil, err
			}
			m.Readouts[r] = lin
		}
	}
	return m, nil
}

func (m *SCCN) Name() string { return modelTag }

func (m *SCCN) Modules() []nn.Module {
	mods := []nn.Module{m}
	for _, l := range m.Layers {
		mods = append(mods, l.Modules()...)
	}
	for _, r := range m.Readouts {
		mods = append(mods, r)
	}
	return mods
}

func (m *SCCN) Parameters() []*nn.Parameter {
	var params []*nn.Parameter
	for _, l := range m.Layers {
		params = append(params, nn.Prefixed(l.Name(), l.Parameters())...)
	}
	for _, r := range m.Readouts {
		params = append(params, nn.Prefixed(r.Name(), r.Parameters())...)
	}
	return params
}

// ResetParameters zeroes the parameters of every layer and readout.
func (m *SCCN) ResetParameters() error {
	for _, mod := range m.Modules()[1:] {
		if err := nn.ZeroParameters(mod.Parameters()); err != nil {
			return err
		}
	}
	return nil
}

// Forward runs the model; see ForwardContext.
func (m *SCCN) Forward(x, incidences, adjacencies RankMap) (RankMap, error) {
	return m.ForwardContext(context.Background(), x, incidences, adjacencies)
}

// ForwardContext applies the layers in order and then the readouts.
// Output entries are [n_r, OutChannels], or [n_r, Channels] without readout.
func (m *SCCN) ForwardContext(ctx context.Context, x, incidences, adjacencies RankMap) (RankMap, error) {
	var err error
	for _, l := range m.Layers {
		if x, err = l.ForwardContext(ctx, x, incidences, adjacencies); err != nil {
			return nil, err
		}
	}
	if len(m.Readouts) == 0 {
		return x, nil
	}
	out := make(RankMap, len(m.Readouts))
	for r, lin := range m.Readouts {
		xr, _ := x.At(r)
		if out[RankKey(r)], err = lin.Forward(xr); err != nil {
			return nil, err
		}
	}
	m.logger.Debug(modelTag, "Forward through %d layers with readout to %d channels", len(m.Layers), m.OutChannels)
	return out, nil
}
