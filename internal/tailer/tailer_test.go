package tailer

import (
	"os"
	"path/filepath"
	"testing"
)

const (
	userLine      = `{"type":"user","timestamp":"2026-08-01T10:00:00.000Z","message":{"role":"user","content":[{"type":"text","text":"hello"}]}}`
	assistantLine = `{"type":"assistant","timestamp":"2026-08-01T10:00:01.000Z","requestId":"req_1","message":{"id":"msg_1","model":"claude-opus-4-5","role":"assistant","content":[{"type":"text","text":"hi"}],"usage":{"input_tokens":10,"output_tokens":5}}}`
	summaryLine   = `{"type":"summary","summary":"earlier conversation","leafUuid":"abc"}`
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func appendFile(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatal(err)
	}
}

func TestReadNewLinesIncremental(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	writeFile(t, path, userLine+"\n")

	tl := New(path, ClaudeFormat{}, nil)

	entries := tl.ReadNewLines()
	if len(entries) != 1 {
		t.Fatalf("first read: got %d entries, want 1", len(entries))
	}
	if entries[0].Kind != KindUser {
		t.Errorf("first entry kind = %s, want user", entries[0].Kind)
	}

	// Nothing new appended, nothing returned.
	if entries := tl.ReadNewLines(); len(entries) != 0 {
		t.Fatalf("second read: got %d entries, want 0", len(entries))
	}

	appendFile(t, path, assistantLine+"\n")
	entries = tl.ReadNewLines()
	if len(entries) != 1 {
		t.Fatalf("third read: got %d entries, want 1", len(entries))
	}
	if entries[0].Kind != KindAssistant {
		t.Errorf("third entry kind = %s, want assistant", entries[0].Kind)
	}
}

func TestReadNewLinesPartialLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")

	// Write the first half of a line with no terminator.
	half := len(userLine) / 2
	writeFile(t, path, userLine[:half])

	tl := New(path, ClaudeFormat{}, nil)
	if entries := tl.ReadNewLines(); len(entries) != 0 {
		t.Fatalf("partial line produced %d entries, want 0", len(entries))
	}

	// Complete it. The stitched line must parse byte-for-byte.
	appendFile(t, path, userLine[half:]+"\n")
	entries := tl.ReadNewLines()
	if len(entries) != 1 {
		t.Fatalf("completed line: got %d entries, want 1", len(entries))
	}
	if entries[0].Timestamp != "2026-08-01T10:00:00.000Z" {
		t.Errorf("stitched entry timestamp = %q", entries[0].Timestamp)
	}
}

func TestReadNewLinesSkipsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	writeFile(t, path, userLine+"\n{not json}\n"+assistantLine+"\n")

	tl := New(path, ClaudeFormat{}, nil)
	entries := tl.ReadNewLines()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2 (malformed line skipped)", len(entries))
	}
}

func TestReadNewLinesSkipsNonMessages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	writeFile(t, path, summaryLine+"\n"+userLine+"\n")

	tl := New(path, ClaudeFormat{}, nil)
	entries := tl.ReadNewLines()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1 (summary record excluded)", len(entries))
	}
}

func TestReadNewLinesMissingFile(t *testing.T) {
	tl := New(filepath.Join(t.TempDir(), "gone.jsonl"), ClaudeFormat{}, nil)
	if entries := tl.ReadNewLines(); entries != nil {
		t.Fatalf("missing file: got %d entries, want none", len(entries))
	}
	if tl.Offset() != 0 {
		t.Errorf("offset moved to %d on missing file", tl.Offset())
	}
}

func TestReadNewLinesTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	writeFile(t, path, userLine+"\n"+assistantLine+"\n")

	tl := New(path, ClaudeFormat{}, nil)
	if entries := tl.ReadNewLines(); len(entries) != 2 {
		t.Fatalf("initial read: got %d entries", len(entries))
	}

	// Rewrite the file shorter than the tailer's offset.
	writeFile(t, path, userLine+"\n")
	entries := tl.ReadNewLines()
	if len(entries) != 1 {
		t.Fatalf("after truncation: got %d entries, want full re-read of 1", len(entries))
	}
}

func TestReadAllDoesNotDisturbOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	writeFile(t, path, userLine+"\n"+assistantLine+"\n")

	tl := New(path, ClaudeFormat{}, nil)
	tl.ReadNewLines()
	offset := tl.Offset()

	all := tl.ReadAll()
	if len(all) != 2 {
		t.Fatalf("ReadAll: got %d entries, want 2", len(all))
	}
	if tl.Offset() != offset {
		t.Errorf("ReadAll moved offset from %d to %d", offset, tl.Offset())
	}

	// The live path still sees only what is appended after its offset.
	appendFile(t, path, userLine+"\n")
	if entries := tl.ReadNewLines(); len(entries) != 1 {
		t.Fatalf("after ReadAll: got %d new entries, want 1", len(entries))
	}
}

func TestWaitingForInputTransitions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	writeFile(t, path, userLine+"\n")

	tl := New(path, ClaudeFormat{}, nil)
	tl.ReadNewLines()
	if tl.WaitingForInput() {
		t.Error("waiting after user message, want false")
	}

	appendFile(t, path, assistantLine+"\n")
	tl.ReadNewLines()
	if !tl.WaitingForInput() {
		t.Error("not waiting after assistant text response, want true")
	}

	toolLine := `{"type":"assistant","timestamp":"2026-08-01T10:00:02.000Z","requestId":"req_2","message":{"id":"msg_2","role":"assistant","content":[{"type":"tool_use","name":"Read","id":"toolu_1","input":{}}]}}`
	appendFile(t, path, toolLine+"\n")
	tl.ReadNewLines()
	if tl.WaitingForInput() {
		t.Error("waiting after trailing tool_use, want false")
	}
}
