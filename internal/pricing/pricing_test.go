package pricing

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultTableRates(t *testing.T) {
	table := DefaultTable()
	p := table.Lookup("anything")

	if p.Input != 3.0 || p.Output != 15.0 {
		t.Errorf("input/output = %f/%f", p.Input, p.Output)
	}
	if p.CacheWrite5m != 3.75 || p.CacheWrite1h != 3.75 {
		t.Errorf("cache writes = %f/%f", p.CacheWrite5m, p.CacheWrite1h)
	}
	if p.CacheRead != 0.30 {
		t.Errorf("cache read = %f", p.CacheRead)
	}
}

func TestLoadAndLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	content := `models:
  claude-opus-4-5:
    input: 5.0
    output: 25.0
    cache_write_5m: 6.25
    cache_write_1h: 10.0
    cache_read: 0.50
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	table, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	p := table.Lookup("claude-opus-4-5")
	if p.Input != 5.0 || p.Output != 25.0 {
		t.Errorf("listed model rates = %f/%f", p.Input, p.Output)
	}

	// Unknown models fall back to the builtin default.
	if fallback := table.Lookup("unknown-model"); fallback.Input != 3.0 {
		t.Errorf("fallback input = %f", fallback.Input)
	}
}

func TestLoadMissingFile(t *testing.T) {
	table, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if table.Lookup("x").Input != 3.0 {
		t.Error("missing file did not fall back to defaults")
	}
}

func TestLoadEmptyPath(t *testing.T) {
	table, err := Load("")
	if err != nil || table == nil {
		t.Fatalf("Load(\"\") = %v, %v", table, err)
	}
}
