package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestVersion(t *testing.T) {
	assert.Equal(t, "sccn version "+version+"\n", run(t, "version"))
}

func TestForwardPrintsRankShapes(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sccn.db")
	out := run(t, "forward", "--checkpoint", db, "--log-level", "none")
	assert.Equal(t, "rank_0: (4, 5)\nrank_1: (5, 5)\n", out)
}

func TestForwardSaveThenList(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sccn.db")
	out := run(t, "forward", "--checkpoint", db, "--log-level", "none", "--save")
	first, _, ok := strings.Cut(out, "\n")
	require.True(t, ok)
	require.True(t, strings.HasPrefix(first, "checkpoint "))
	id := strings.TrimPrefix(first, "checkpoint ")

	run(t, "reset", "--checkpoint", db, "--log-level", "none")

	var metas []struct {
		ID       string `json:"id"`
		Channels int    `json:"channels"`
	}
	require.NoError(t, json.Unmarshal([]byte(run(t, "list", "--json", "--checkpoint", db, "--log-level", "none")), &metas))
	require.Len(t, metas, 2)
	assert.Equal(t, id, metas[1].ID)
	assert.Equal(t, 5, metas[0].Channels)

	out = run(t, "forward", "--checkpoint", db, "--log-level", "none", "--load", "latest")
	assert.Contains(t, out, "rank_1: (5, 5)")
}

func TestForwardRejectsBadLogLevel(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"forward", "--log-level", "loud"})
	assert.Error(t, cmd.Execute())
}
