package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relay-ops/graphkb/internal/graph"
	"github.com/relay-ops/graphkb/internal/schema"
)

const runbookSchema = `
labels:
  Runbook:
    properties:
      title:
        type: string
`

func TestReloadSchema(t *testing.T) {
	reg, err := schema.NewRegistry(schema.DefaultDefinitions(), schema.Strict)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "schema.yml")
	require.NoError(t, os.WriteFile(path, []byte(runbookSchema), 0o644))

	require.NoError(t, reloadSchema(context.Background(), reg, graph.NewMemStore(), path))
	assert.True(t, reg.KnownLabel("Runbook"))
	assert.False(t, reg.KnownLabel("SOPFile"), "definitions are replaced wholesale")
}

func TestReloadSchema_BadFileKeepsSnapshot(t *testing.T) {
	reg, err := schema.NewRegistry(schema.DefaultDefinitions(), schema.Strict)
	require.NoError(t, err)

	err = reloadSchema(context.Background(), reg, graph.NewMemStore(),
		filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
	assert.True(t, reg.KnownLabel("SOPFile"), "previous snapshot stays active")
}
