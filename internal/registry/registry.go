// Package registry tracks the bounded set of live sessions. Each tracked
// session owns its tailer and usage accumulator; the registry owns liveness:
// capacity, least-recently-modified eviction, and catch-up enumeration that
// is serialized against mutation.
package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tailview/backend/internal/tailer"
	"github.com/tailview/backend/internal/usage"
)

// ErrCatchUpTimeout is returned when a catch-up enumeration exceeds its
// wall-clock budget. The transport should tell the subscriber to reconnect
// and start a fresh handshake rather than continue a stale partial stream.
var ErrCatchUpTimeout = errors.New("catch-up enumeration timed out")

// Session is one tracked session. Identity fields are set once in Add and
// read-only afterwards, so handlers on other goroutines can read them
// without locks; Tailer and Usage manage their own concurrency.
type Session struct {
	ID          string
	Path        string
	Source      string
	ProjectName string
	ProjectPath string

	Tailer *tailer.Tailer
	Usage  *usage.Deduplicator

	LastActivity time.Time
}

// modTime returns the backing file's modification time. Sessions whose file
// has disappeared report a zero time, which sorts as infinitely old.
func (s *Session) modTime() time.Time {
	info, err := os.Stat(s.Path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

type Registry struct {
	mu       sync.Mutex          // guards sessions
	enumMu   sync.Mutex          // serializes catch-up against add/remove
	sessions map[string]*Session

	max            int
	catchUpTimeout time.Duration
	log            *logrus.Logger
}

func New(maxSessions int, catchUpTimeout time.Duration, log *logrus.Logger) *Registry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if maxSessions <= 0 {
		maxSessions = 10
	}
	if catchUpTimeout <= 0 {
		catchUpTimeout = 30 * time.Second
	}
	return &Registry{
		sessions:       make(map[string]*Session),
		max:            maxSessions,
		catchUpTimeout: catchUpTimeout,
		log:            log,
	}
}

// SessionIDFromPath derives the stable session ID: the filename stem. It
// survives process restarts because it depends only on the path.
func SessionIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Add starts tracking the session backing the given file. Returns the new
// session and the ID of any session evicted to make room. Both returns are
// zero when the ID is already tracked, or when the registry is full and
// eviction is disabled.
//
// The new session's tailer is advanced to end-of-file immediately: history
// is delivered through catch-up, never through the live path, so replaying
// it live would duplicate every message. Token usage is the exception: it
// covers the whole session, so the historical entries feed the deduplicator
// before the session becomes visible.
func (r *Registry) Add(path string, format tailer.Format, projectPath string, evictIfFull bool) (*Session, string) {
	r.enumMu.Lock()
	defer r.enumMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	id := SessionIDFromPath(path)
	if _, exists := r.sessions[id]; exists {
		return nil, ""
	}

	var evictedID string
	if len(r.sessions) >= r.max {
		if !evictIfFull {
			r.log.Debugf("registry full (%d), rejecting %s", r.max, id)
			return nil, ""
		}
		evictedID = r.evictOldestLocked()
	}

	sess := &Session{
		ID:           id,
		Path:         path,
		Source:       format.Name(),
		ProjectPath:  projectPath,
		Tailer:       tailer.New(path, format, r.log),
		Usage:        usage.NewDeduplicator(),
		LastActivity: time.Now(),
	}
	if projectPath != "" {
		sess.ProjectName = filepath.Base(projectPath)
	}
	// Catch-up owns history on the live path, but usage still counts it.
	for _, e := range sess.Tailer.ReadNewLines() {
		sess.Usage.Add(e)
	}

	r.sessions[id] = sess
	r.log.Infof("tracking session %s (%s)", id, path)
	return sess, evictedID
}

// evictOldestLocked removes the session whose file was modified least
// recently and returns its ID. Missing files sort oldest and go first.
func (r *Registry) evictOldestLocked() string {
	var oldestID string
	var oldestTime time.Time
	first := true

	for id, sess := range r.sessions {
		mt := sess.modTime()
		if first || mt.Before(oldestTime) {
			first = false
			oldestID = id
			oldestTime = mt
		}
	}

	if oldestID != "" {
		delete(r.sessions, oldestID)
		r.log.Infof("evicted session %s (oldest, modified %s)", oldestID, oldestTime.Format(time.RFC3339))
	}
	return oldestID
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

func (r *Registry) Remove(id string) bool {
	r.enumMu.Lock()
	defer r.enumMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	r.log.Infof("removed session %s", id)
	return true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// List returns tracked sessions sorted by backing-file modification time,
// newest first. Sessions whose file has disappeared sort last.
func (r *Registry) List() []*Session {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	mtimes := make(map[string]time.Time, len(sessions))
	for _, s := range sessions {
		mtimes[s.ID] = s.modTime()
	}
	sort.Slice(sessions, func(i, j int) bool {
		return mtimes[sessions[i].ID].After(mtimes[sessions[j].ID])
	})
	return sessions
}

// CatchUp replays the full history of every tracked session, newest session
// first, invoking fn for each entry. The enumeration holds the registry's
// enumeration lock so no session appears or disappears mid-iteration, and is
// bounded by the configured wall-clock timeout: on expiry it stops and
// returns ErrCatchUpTimeout. fn errors abort the enumeration.
func (r *Registry) CatchUp(ctx context.Context, fn func(*Session, tailer.Entry) error) error {
	r.enumMu.Lock()
	defer r.enumMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, r.catchUpTimeout)
	defer cancel()

	for _, sess := range r.List() {
		for _, entry := range sess.Tailer.ReadAll() {
			if err := ctx.Err(); err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					r.log.Warnf("catch-up timed out during session %s", sess.ID)
					return ErrCatchUpTimeout
				}
				// The subscriber went away; not a timeout.
				return err
			}
			if err := fn(sess, entry); err != nil {
				return err
			}
		}
	}
	return nil
}
