package chat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeModelTable(t *testing.T, contents string) string {
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestModelTableBuiltins(t *testing.T) {
	table := NewModelTable()

	assert.Equal(t, 128000, table.ContextWindow("gpt-4o"))
	assert.True(t, table.Known("gpt-4o-mini"))
	assert.False(t, table.Known("mystery"))
	assert.Equal(t, DefaultContextWindow, table.ContextWindow("mystery"))
}

func TestLoadModelTableOverrides(t *testing.T) {
	path := writeModelTable(t, `
default_context_window: 4096
models:
  gpt-4o: 64000
  local-llama: 32768
`)

	table, err := LoadModelTable(path)
	require.NoError(t, err)

	assert.Equal(t, 64000, table.ContextWindow("gpt-4o"))
	assert.Equal(t, 32768, table.ContextWindow("local-llama"))
	assert.Equal(t, 128000, table.ContextWindow("gpt-4o-mini"))
	assert.Equal(t, 4096, table.ContextWindow("mystery"))
}

func TestLoadModelTableRejectsBadFiles(t *testing.T) {
	_, err := LoadModelTable(writeModelTable(t, "models:\n  gpt-4o: -1\n"))
	assert.Error(t, err)

	_, err = LoadModelTable(writeModelTable(t, "windows:\n  gpt-4o: 10\n"))
	assert.Error(t, err)

	_, err = LoadModelTable(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	table, err := LoadModelTable("")
	require.NoError(t, err)
	assert.Equal(t, 128000, table.ContextWindow("gpt-4o"))
}
