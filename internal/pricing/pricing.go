// Package pricing maps model IDs to USD-per-million-token rates across the
// five billing categories Claude Code reports: input, output, 5-minute and
// 1-hour cache writes, and cache reads.
package pricing

import (
	"os"

	"gopkg.in/yaml.v3"
)

type ModelPrice struct {
	Input        float64 `yaml:"input"`
	Output       float64 `yaml:"output"`
	CacheWrite5m float64 `yaml:"cache_write_5m"`
	CacheWrite1h float64 `yaml:"cache_write_1h"`
	CacheRead    float64 `yaml:"cache_read"`
}

type Table struct {
	Models  map[string]ModelPrice `yaml:"models"`
	Default ModelPrice            `yaml:"default"`
}

// DefaultTable returns the builtin fallback rates, used when no pricing file
// is configured or a model is unknown.
func DefaultTable() *Table {
	return &Table{
		Models: map[string]ModelPrice{},
		Default: ModelPrice{
			Input:        3.0,
			Output:       15.0,
			CacheWrite5m: 3.75,
			CacheWrite1h: 3.75,
			CacheRead:    0.30,
		},
	}
}

// Load reads a pricing YAML file. A missing file falls back to the builtin
// defaults; a present but unparseable file is an error.
func Load(path string) (*Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultTable(), nil
		}
		return nil, err
	}

	table := DefaultTable()
	if err := yaml.Unmarshal(data, table); err != nil {
		return nil, err
	}
	return table, nil
}

// Lookup returns the rates for a model, falling back to the default entry
// when the model is not listed.
func (t *Table) Lookup(model string) ModelPrice {
	if p, ok := t.Models[model]; ok {
		return p
	}
	return t.Default
}
