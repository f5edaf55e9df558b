// Package config loads SCCN run settings from YAML files and SCCN_*
// environment variables.
package config

import (
	"os"
	"strconv"
	"strings"

	bosherr "github.com/cloudfoundry/bosh-utils/errors"
	boshlog "github.com/cloudfoundry/bosh-utils/logger"
	"gopkg.in/yaml.v3"

	"github.com/zstreet87/TopoModelX/nn"
)

// Config is the full run configuration.
type Config struct {
	Model      ModelConfig      `json:"model" yaml:"model"`
	Complex    ComplexConfig    `json:"complex" yaml:"complex"`
	Checkpoint CheckpointConfig `json:"checkpoint" yaml:"checkpoint"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
}

// ModelConfig describes the SCCN stack.
type ModelConfig struct {
	Channels int `json:"channels" yaml:"channels"`
	MaxRank  int `json:"max_rank" yaml:"max_rank"`
	Layers   int `json:"layers" yaml:"layers"`

	// OutChannels adds a per-rank linear readout when positive.
	OutChannels int `json:"out_channels,omitempty" yaml:"out_channels,omitempty"`

	AggrFunc   string `json:"aggr_func" yaml:"aggr_func"`
	UpdateFunc string `json:"update_func" yaml:"update_func"`
	AggrNorm   bool   `json:"aggr_norm" yaml:"aggr_norm"`
	Bias       bool   `json:"bias" yaml:"bias"`
	Seed       uint64 `json:"seed" yaml:"seed"`
}

// ComplexConfig lists the maximal simplices of the input complex.
type ComplexConfig struct {
	Simplices [][]int `json:"simplices" yaml:"simplices"`
	// SelfLoops adds the identity to every adjacency matrix.
	SelfLoops bool `json:"self_loops" yaml:"self_loops"`
}

// CheckpointConfig points at the SQLite checkpoint database.
type CheckpointConfig struct {
	Path string `json:"path" yaml:"path"`
}

// LoggingConfig sets the log level: "debug", "info", "warn", "error" or "none".
type LoggingConfig struct {
	Level string `json:"level" yaml:"level"`
}

// Default returns the configuration used when no file is given: five
// channels over vertices and edges of two triangles sharing an edge.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Channels:   5,
			MaxRank:    1,
			Layers:     1,
			AggrFunc:   string(nn.AggrSum),
			UpdateFunc: string(nn.ActivationSigmoid),
			Bias:       true,
		},
		Complex: ComplexConfig{
			Simplices: [][]int{{0, 1, 2}, {1, 2, 3}},
			SelfLoops: true,
		},
		Checkpoint: CheckpointConfig{Path: "sccn.db"},
		Logging:    LoggingConfig{Level: "info"},
	}
}

// Load reads path over the defaults, applies environment overrides and validates.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, bosherr.WrapErrorf(err, "Reading config file '%s'", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, bosherr.WrapErrorf(err, "Parsing config file '%s'", path)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	ints := map[string]*int{
		"SCCN_CHANNELS":     &c.Model.Channels,
		"SCCN_MAX_RANK":     &c.Model.MaxRank,
		"SCCN_LAYERS":       &c.Model.Layers,
		"SCCN_OUT_CHANNELS": &c.Model.OutChannels,
	}
	for name, dst := range ints {
		v, ok := os.LookupEnv(name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return bosherr.WrapErrorf(err, "Parsing %s", name)
		}
		*dst = n
	}
	if v, ok := os.LookupEnv("SCCN_SEED"); ok {
		seed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return bosherr.WrapError(err, "Parsing SCCN_SEED")
		}
		c.Model.Seed = seed
	}
	if v, ok := os.LookupEnv("SCCN_CHECKPOINT"); ok {
		c.Checkpoint.Path = v
	}
	if v, ok := os.LookupEnv("SCCN_LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	return nil
}

// Validate rejects settings the model cannot be built from.
func (c *Config) Validate() error {
	m := c.Model
	if m.Channels <= 0 {
		return bosherr.Errorf("Model channels must be positive, got %d", m.Channels)
	}
	if m.MaxRank < 0 {
		return bosherr.Errorf("Model max_rank must be non-negative, got %d", m.MaxRank)
	}
	if m.Layers <= 0 {
		return bosherr.Errorf("Model layers must be positive, got %d", m.Layers)
	}
	if m.OutChannels < 0 {
		return bosherr.Errorf("Model out_channels must be non-negative, got %d", m.OutChannels)
	}
	if _, err := nn.ParseAggrFunc(m.AggrFunc); err != nil {
		return bosherr.WrapError(err, "Validating model aggr_func")
	}
	if _, err := nn.ParseActivation(m.UpdateFunc); err != nil {
		return bosherr.WrapError(err, "Validating model update_func")
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	for i, s := range c.Complex.Simplices {
		if len(s) == 0 {
			return bosherr.Errorf("Complex simplex %d is empty", i)
		}
	}
	return nil
}

// LogLevel maps Logging.Level to a bosh-utils level.
func (c *Config) LogLevel() (boshlog.LogLevel, error) {
	level, err := boshlog.Levelify(c.Logging.Level)
	if err != nil {
		return boshlog.LevelNone, bosherr.WrapErrorf(err, "Parsing log level '%s'", c.Logging.Level)
	}
	return level, nil
}
