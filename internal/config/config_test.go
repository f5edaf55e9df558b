package config

import (
	"os"
	"path/filepath"
	"testing"

	boshlog "github.com/cloudfoundry/bosh-utils/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sccn.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Model.Channels)
	assert.Equal(t, 1, cfg.Model.MaxRank)
	assert.Equal(t, "sigmoid", cfg.Model.UpdateFunc)
	assert.True(t, cfg.Complex.SelfLoops)
	level, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, boshlog.LevelInfo, level)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
model:
  channels: 8
  max_rank: 2
  layers: 3
  out_channels: 2
  aggr_func: mean
  update_func: relu
  aggr_norm: true
  seed: 7
complex:
  simplices: [[0, 1, 2, 3]]
checkpoint:
  path: /tmp/x.db
logging:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ModelConfig{
		Channels: 8, MaxRank: 2, Layers: 3, OutChannels: 2,
		AggrFunc: "mean", UpdateFunc: "relu", AggrNorm: true, Bias: true, Seed: 7,
	}, cfg.Model)
	assert.Equal(t, [][]int{{0, 1, 2, 3}}, cfg.Complex.Simplices)
	assert.Equal(t, "/tmp/x.db", cfg.Checkpoint.Path)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SCCN_CHANNELS", "16")
	t.Setenv("SCCN_SEED", "99")
	t.Setenv("SCCN_CHECKPOINT", "env.db")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Model.Channels)
	assert.Equal(t, uint64(99), cfg.Model.Seed)
	assert.Equal(t, "env.db", cfg.Checkpoint.Path)

	t.Setenv("SCCN_LAYERS", "many")
	_, err = Load("")
	require.Error(t, err)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"channels":   func(c *Config) { c.Model.Channels = 0 },
		"rank":       func(c *Config) { c.Model.MaxRank = -1 },
		"layers":     func(c *Config) { c.Model.Layers = 0 },
		"out":        func(c *Config) { c.Model.OutChannels = -2 },
		"aggr":       func(c *Config) { c.Model.AggrFunc = "max" },
		"update":     func(c *Config) { c.Model.UpdateFunc = "gelu" },
		"log level":  func(c *Config) { c.Logging.Level = "loud" },
		"simplicial": func(c *Config) { c.Complex.Simplices = [][]int{{}} },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		assert.Error(t, cfg.Validate(), name)
	}
	assert.NoError(t, Default().Validate())
}

func TestLoadMissingOrMalformedFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "model: [oops"))
	require.Error(t, err)
}
