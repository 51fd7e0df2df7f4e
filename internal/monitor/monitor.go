// Package monitor connects the filesystem watch to the rest of the system:
// it turns file events into tracked sessions, feeds new lines through each
// session's tailer, accumulates token usage, broadcasts rendered messages,
// and reports activity to the idle tracker.
package monitor

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tailview/backend/internal/broadcast"
	"github.com/tailview/backend/internal/config"
	"github.com/tailview/backend/internal/registry"
	"github.com/tailview/backend/internal/summary"
	"github.com/tailview/backend/internal/tailer"
	"github.com/tailview/backend/internal/watch"
)

type Monitor struct {
	cfg  *config.Config
	reg  *registry.Registry
	bc   *broadcast.Broadcaster
	idle *summary.Tracker // nil when summarization is disabled
	log  *logrus.Logger
}

func New(cfg *config.Config, reg *registry.Registry, bc *broadcast.Broadcaster,
	idle *summary.Tracker, log *logrus.Logger) *Monitor {

	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Monitor{cfg: cfg, reg: reg, bc: bc, idle: idle, log: log}
}

// Start seeds the registry from the most recently active session files, then
// consumes watch events until the context is cancelled or the event channel
// closes.
func (m *Monitor) Start(ctx context.Context, events <-chan string) {
	m.seed()

	for {
		select {
		case <-ctx.Done():
			return
		case path, ok := <-events:
			if !ok {
				return
			}
			m.HandleFileChange(path)
		}
	}
}

// seed fills the registry with the most recent sessions already on disk so a
// restart doesn't come up empty. Existing files hold history, not live
// activity, so no messages are broadcast and the idle tracker is not
// touched.
func (m *Monitor) seed() {
	limit := m.cfg.Registry.MaxSessions

	claude := watch.FindRecentSessions(m.cfg.Watch.ProjectsDir, limit)
	codex := watch.FindRecentRollouts(m.cfg.Watch.CodexSessionsDir, limit)

	// Merge the two lists newest-first and let capacity cut the tail.
	all := append(claude, codex...)
	sort.Slice(all, func(i, j int) bool {
		return all[i].ModTime.After(all[j].ModTime)
	})

	for _, c := range all {
		if m.reg.Len() >= limit {
			break
		}
		m.ensureSession(c.Path, false)
	}
	m.log.Infof("seeded %d session(s) from disk", m.reg.Len())
}

// HandleFileChange processes one changed transcript file: track it if new,
// read any appended lines, and fan the results out.
func (m *Monitor) HandleFileChange(path string) {
	if !watch.ShouldWatchFile(path) {
		return
	}

	sess := m.ensureSession(path, true)
	if sess == nil {
		return
	}

	entries := sess.Tailer.ReadNewLines()
	if len(entries) == 0 {
		return
	}
	sess.LastActivity = time.Now()

	for _, e := range entries {
		if e.Kind == tailer.KindAssistant {
			sess.Usage.Add(e)
		}
		if payload, ok := broadcast.RenderEntry(e); ok {
			m.bc.Publish(broadcast.Event{
				Kind:      broadcast.KindMessage,
				SessionID: sess.ID,
				Payload:   payload,
			})
		}
	}

	if m.idle != nil {
		m.idle.OnActivity(sess.ID)
	}
}

// ensureSession returns the tracked session for path, creating it on first
// sight. An active file always wins a registry slot: when the registry is
// full and evict is set, the least recently modified session is dropped and
// its removal broadcast.
func (m *Monitor) ensureSession(path string, evict bool) *registry.Session {
	id := registry.SessionIDFromPath(path)
	if sess, ok := m.reg.Get(id); ok {
		return sess
	}

	format := m.formatForPath(path)
	sess, evictedID := m.reg.Add(path, format, m.projectPathFor(path, format), evict)
	if sess == nil {
		return nil
	}

	if evictedID != "" {
		if m.idle != nil {
			m.idle.Forget(evictedID)
		}
		m.bc.Publish(broadcast.Event{
			Kind:      broadcast.KindSessionRemoved,
			SessionID: evictedID,
		})
	}

	m.bc.Publish(broadcast.Event{
		Kind:      broadcast.KindSessionAdded,
		SessionID: sess.ID,
		Payload: map[string]string{
			"source":       sess.Source,
			"project_name": sess.ProjectName,
			"project_path": sess.ProjectPath,
		},
	})
	return sess
}

// formatForPath picks the line format from where the file lives: anything
// under the Codex sessions root (or named like a rollout) is Codex, the rest
// is Claude Code.
func (m *Monitor) formatForPath(path string) tailer.Format {
	if m.cfg.Watch.CodexSessionsDir != "" && strings.HasPrefix(path, m.cfg.Watch.CodexSessionsDir) {
		return tailer.CodexFormat{}
	}
	if strings.HasPrefix(filepath.Base(path), "rollout-") {
		return tailer.CodexFormat{}
	}
	return tailer.ClaudeFormat{}
}

// projectPathFor recovers the working directory a session ran in. Claude
// encodes it in the project directory name; Codex rollouts don't carry it in
// the path, so those stay empty until something better is known.
func (m *Monitor) projectPathFor(path string, format tailer.Format) string {
	if format.Name() != "claude" {
		return ""
	}
	return watch.DecodeProjectDir(filepath.Base(filepath.Dir(path)))
}
