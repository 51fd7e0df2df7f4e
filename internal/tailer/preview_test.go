package tailer

import (
	"path/filepath"
	"testing"
)

func TestFirstUserMessage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	content := `{"type":"summary","summary":"old"}
{"type":"user","message":{"role":"user","content":"<command-name>/clear</command-name>"}}
{"type":"user","message":{"role":"user","content":[{"type":"text","text":"refactor the config loader"}]}}
`
	writeFile(t, path, content)

	if got := FirstUserMessage(path, 120); got != "refactor the config loader" {
		t.Errorf("FirstUserMessage = %q", got)
	}

	if got := FirstUserMessage(path, 8); got != "refactor" {
		t.Errorf("truncated = %q", got)
	}

	if got := FirstUserMessage(filepath.Join(t.TempDir(), "missing.jsonl"), 120); got != "" {
		t.Errorf("missing file = %q", got)
	}
}

func TestHasMessages(t *testing.T) {
	dir := t.TempDir()

	withMsg := filepath.Join(dir, "a.jsonl")
	writeFile(t, withMsg, userLine+"\n")
	if !HasMessages(withMsg, ClaudeFormat{}) {
		t.Error("file with user line reported empty")
	}

	metaOnly := filepath.Join(dir, "b.jsonl")
	writeFile(t, metaOnly, summaryLine+"\n")
	if HasMessages(metaOnly, ClaudeFormat{}) {
		t.Error("summary-only file reported as having messages")
	}
}
