package summary

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogKeys are the summary fields written to the JSONL log. The
// executive summary is excluded by default to keep log lines short.
var DefaultLogKeys = []string{
	"title",
	"short_summary",
	"summary_generated_at",
	"session_started_at",
	"session_last_updated_at",
	"session_id",
	"path",
	"summary_file",
}

// LogWriter appends session summaries to a JSONL log file. Each Append is a
// single O_APPEND write, so concurrent writers interleave at line
// granularity.
type LogWriter struct {
	Path string
	Keys []string // fields to include; nil means DefaultLogKeys
}

func NewLogWriter(path string) *LogWriter {
	return &LogWriter{Path: path, Keys: DefaultLogKeys}
}

// Append writes one summary as a JSONL line. A writer with no path
// configured is a no-op, not an error.
func (w *LogWriter) Append(sum Summary) error {
	if w == nil || w.Path == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(w.Path), 0o755); err != nil {
		return fmt.Errorf("creating log dir: %w", err)
	}

	line, err := w.marshalFiltered(sum)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(w.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening summary log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("writing summary log: %w", err)
	}
	return nil
}

// marshalFiltered marshals the summary with only the configured keys.
func (w *LogWriter) marshalFiltered(sum Summary) ([]byte, error) {
	full, err := json.Marshal(sum)
	if err != nil {
		return nil, err
	}

	keys := w.Keys
	if keys == nil {
		keys = DefaultLogKeys
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(full, &all); err != nil {
		return nil, err
	}

	filtered := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		if v, ok := all[k]; ok {
			filtered[k] = v
		}
	}
	return json.Marshal(filtered)
}
