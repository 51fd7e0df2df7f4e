package monitor

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tailview/backend/internal/broadcast"
	"github.com/tailview/backend/internal/config"
	"github.com/tailview/backend/internal/pricing"
	"github.com/tailview/backend/internal/registry"
)

func newTestMonitor(t *testing.T, maxSessions int) (*Monitor, *registry.Registry, <-chan broadcast.Event, string) {
	t.Helper()

	projects := t.TempDir()
	cfg := config.Default()
	cfg.Watch.ProjectsDir = projects
	cfg.Watch.CodexSessionsDir = filepath.Join(t.TempDir(), "codex")
	cfg.Registry.MaxSessions = maxSessions

	reg := registry.New(maxSessions, time.Second, nil)
	bc := broadcast.New(100, nil)
	_, events := bc.Subscribe()

	return New(cfg, reg, bc, nil, nil), reg, events, projects
}

func writeSession(t *testing.T, projects, name, content string) string {
	t.Helper()
	dir := filepath.Join(projects, "-home-u-proj")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func drainEvents(ch <-chan broadcast.Event) []broadcast.Event {
	var events []broadcast.Event
	for {
		select {
		case ev := <-ch:
			events = append(events, ev)
		default:
			return events
		}
	}
}

const assistantWithUsage = `{"type":"assistant","timestamp":"2026-08-01T10:00:01Z","requestId":"req_1","message":{"id":"msg_1","model":"claude-opus-4-5","role":"assistant","content":[{"type":"text","text":"done"}],"usage":{"input_tokens":100,"output_tokens":30}}}`

func TestHandleFileChangeTracksAndBroadcasts(t *testing.T) {
	m, reg, events, projects := newTestMonitor(t, 10)

	path := writeSession(t, projects, "abc.jsonl", "")
	appendLine := func(line string) {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close()
		fmt.Fprintln(f, line)
	}

	appendLine(`{"type":"user","timestamp":"2026-08-01T10:00:00Z","message":{"role":"user","content":"hello"}}`)
	m.HandleFileChange(path)

	// Content present when tracking starts belongs to catch-up, so the
	// first change announces the session without replaying it.
	got := drainEvents(events)
	if len(got) != 1 || got[0].Kind != broadcast.KindSessionAdded || got[0].SessionID != "abc" {
		t.Fatalf("got %+v, want a single session_added", got)
	}
	if _, ok := reg.Get("abc"); !ok {
		t.Fatal("session not tracked")
	}

	// Lines appended after that flow through the live path.
	appendLine(assistantWithUsage)
	m.HandleFileChange(path)

	got = drainEvents(events)
	if len(got) != 1 || got[0].Kind != broadcast.KindMessage {
		t.Fatalf("got %+v, want a single message event", got)
	}

	// A change with no appended lines produces no events.
	m.HandleFileChange(path)
	if extra := drainEvents(events); len(extra) != 0 {
		t.Errorf("no-op change produced %d events", len(extra))
	}
}

func TestHandleFileChangeUsage(t *testing.T) {
	m, reg, _, projects := newTestMonitor(t, 10)

	path := writeSession(t, projects, "abc.jsonl",
		`{"type":"user","timestamp":"2026-08-01T10:00:00Z","message":{"role":"user","content":"hello"}}`+"\n")
	m.HandleFileChange(path)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	fmt.Fprintln(f, assistantWithUsage)
	f.Close()
	m.HandleFileChange(path)

	sess, _ := reg.Get("abc")
	totals := sess.Usage.Totals(pricing.DefaultTable())
	if totals.OutputTokens != 30 {
		t.Errorf("output tokens = %d, want 30", totals.OutputTokens)
	}
	if totals.MessageCount != 1 {
		t.Errorf("message count = %d, want 1", totals.MessageCount)
	}
}

func TestSeededHistoryCountsUsage(t *testing.T) {
	m, reg, _, projects := newTestMonitor(t, 10)

	// The assistant line exists before the session is first seen: its
	// usage must land in the totals even though the live path starts at
	// end-of-file.
	path := writeSession(t, projects, "abc.jsonl", assistantWithUsage+"\n")
	m.HandleFileChange(path)

	sess, ok := reg.Get("abc")
	if !ok {
		t.Fatal("session not tracked")
	}
	totals := sess.Usage.Totals(pricing.DefaultTable())
	if totals.OutputTokens != 30 {
		t.Errorf("output tokens = %d, want 30", totals.OutputTokens)
	}
	if totals.MessageCount != 1 {
		t.Errorf("message count = %d, want 1", totals.MessageCount)
	}
}

func TestEvictionBroadcastsRemoval(t *testing.T) {
	m, reg, events, projects := newTestMonitor(t, 1)

	userLine := `{"type":"user","timestamp":"2026-08-01T10:00:00Z","message":{"role":"user","content":"hi"}}` + "\n"
	first := writeSession(t, projects, "first.jsonl", userLine)
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(first, old, old); err != nil {
		t.Fatal(err)
	}
	m.HandleFileChange(first)
	drainEvents(events)

	second := writeSession(t, projects, "second.jsonl", userLine)
	m.HandleFileChange(second)

	got := drainEvents(events)
	var removed, added bool
	for _, ev := range got {
		switch {
		case ev.Kind == broadcast.KindSessionRemoved && ev.SessionID == "first":
			removed = true
		case ev.Kind == broadcast.KindSessionAdded && ev.SessionID == "second":
			added = true
		}
	}
	if !removed || !added {
		t.Errorf("events = %+v, want removal of first and addition of second", got)
	}
	if _, ok := reg.Get("first"); ok {
		t.Error("evicted session still in registry")
	}
	if reg.Len() != 1 {
		t.Errorf("len = %d, want 1", reg.Len())
	}
}

func TestHandleFileChangeIgnoresNonTranscripts(t *testing.T) {
	m, reg, _, projects := newTestMonitor(t, 10)

	path := writeSession(t, projects, "agent-sub.jsonl",
		`{"type":"user","message":{"role":"user","content":"x"}}`+"\n")
	m.HandleFileChange(path)

	if reg.Len() != 0 {
		t.Errorf("tracked %d sessions for an agent- file", reg.Len())
	}
}

func TestFormatForPath(t *testing.T) {
	m, _, _, _ := newTestMonitor(t, 10)

	codexPath := filepath.Join(m.cfg.Watch.CodexSessionsDir, "2026", "08", "01", "rollout-abc.jsonl")
	if got := m.formatForPath(codexPath); got.Name() != "codex" {
		t.Errorf("codex tree path format = %s", got.Name())
	}
	if got := m.formatForPath("/elsewhere/rollout-abc.jsonl"); got.Name() != "codex" {
		t.Errorf("rollout-prefixed format = %s", got.Name())
	}
	if got := m.formatForPath("/home/u/.claude/projects/-p/abc.jsonl"); got.Name() != "claude" {
		t.Errorf("claude path format = %s", got.Name())
	}
}
