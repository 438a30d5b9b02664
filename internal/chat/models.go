package chat

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// DefaultContextWindow is used for models missing from the table. It is kept
// small so unknown models are trimmed conservatively.
const DefaultContextWindow = 8192

var builtinContextWindows = map[string]int{
	"gpt-4o":                     128000,
	"gpt-4o-mini":                128000,
	"gpt-4o-search-preview":      128000,
	"gpt-4o-mini-search-preview": 128000,
	"gpt-4.1":                    1047576,
	"gpt-4.1-mini":               1047576,
	"gpt-4.1-nano":               1047576,
	"gpt-4-turbo":                128000,
	"gpt-4":                      8192,
	"gpt-3.5-turbo":              16385,
	"o1":                         200000,
	"o3":                         200000,
	"o3-mini":                    200000,
	"o4-mini":                    200000,
}

type ModelTable struct {
	windows  map[string]int
	fallback int
}

type modelTableFile struct {
	DefaultContextWindow int            `yaml:"default_context_window"`
	Models               map[string]int `yaml:"models"`
}

func NewModelTable() *ModelTable {
	windows := make(map[string]int, len(builtinContextWindows))
	for model, window := range builtinContextWindows {
		windows[model] = window
	}
	return &ModelTable{windows: windows, fallback: DefaultContextWindow}
}

// LoadModelTable returns the builtin table overlaid with the entries of the
// yaml file at path. An empty path returns the builtin table.
func LoadModelTable(path string) (*ModelTable, error) {
	table := NewModelTable()
	if path == "" {
		return table, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading model table %s: %w", path, err)
	}

	if err := table.merge(data); err != nil {
		return nil, fmt.Errorf("error parsing model table %s: %w", path, err)
	}

	return table, nil
}

func (t *ModelTable) merge(data []byte) error {
	var file modelTableFile
	if err := yaml.UnmarshalStrict(data, &file); err != nil {
		return err
	}

	if file.DefaultContextWindow < 0 {
		return fmt.Errorf("default_context_window must be positive, got %d", file.DefaultContextWindow)
	}
	if file.DefaultContextWindow > 0 {
		t.fallback = file.DefaultContextWindow
	}

	for model, window := range file.Models {
		if window <= 0 {
			return fmt.Errorf("context window for model %s must be positive, got %d", model, window)
		}
		t.windows[model] = window
	}
	return nil
}

func (t *ModelTable) ContextWindow(model string) int {
	if window, ok := t.windows[model]; ok {
		return window
	}
	return t.fallback
}

func (t *ModelTable) Known(model string) bool {
	_, ok := t.windows[model]
	return ok
}
