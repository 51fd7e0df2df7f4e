package summary

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tailview/backend/internal/registry"
)

// SummarizeFunc runs one summarization. It is expected to do real work
// (invoke an external CLI) and report success. The tracker only schedules it
// and enforces timeouts.
type SummarizeFunc func(ctx context.Context, sess *registry.Session) bool

type trackedState struct {
	state            State
	lastActivity     time.Time
	summaryStartedAt time.Time
}

// Tracker drives idle-triggered summarization. Each session gets an idle
// timer that is cancelled and rescheduled on every activity event; when one
// fires, the summarize callback runs and the state machine advances. A
// background sweep reclaims sessions whose callback hung or was dropped.
type Tracker struct {
	idleThreshold      time.Duration
	stuckCheckInterval time.Duration
	stuckTimeout       time.Duration

	summarize  SummarizeFunc
	getSession func(id string) (*registry.Session, bool)

	mu       sync.Mutex
	sessions map[string]*trackedState
	timers   map[string]*time.Timer
	shutdown bool

	done      chan struct{}
	closeOnce sync.Once
	log       *logrus.Logger
}

func NewTracker(idleThreshold, stuckCheckInterval, stuckTimeout time.Duration,
	summarize SummarizeFunc, getSession func(string) (*registry.Session, bool),
	log *logrus.Logger) *Tracker {

	if log == nil {
		log = logrus.StandardLogger()
	}
	if stuckCheckInterval <= 0 {
		stuckCheckInterval = 60 * time.Second
	}
	if stuckTimeout <= 0 {
		stuckTimeout = 300 * time.Second
	}
	return &Tracker{
		idleThreshold:      idleThreshold,
		stuckCheckInterval: stuckCheckInterval,
		stuckTimeout:       stuckTimeout,
		summarize:          summarize,
		getSession:         getSession,
		sessions:           make(map[string]*trackedState),
		timers:             make(map[string]*time.Timer),
		done:               make(chan struct{}),
		log:                log,
	}
}

// Start launches the stuck-summarization sweep.
func (t *Tracker) Start() {
	go t.stuckCheckLoop()
	t.log.Infof("idle tracker started (threshold %s)", t.idleThreshold)
}

// OnActivity records activity on a session: the outstanding idle timer (if
// any) is cancelled and a fresh one scheduled. A session currently being
// summarized keeps its state — the run is not interrupted — but still gets a
// new timer so the fresh activity leads to a new Pending cycle later.
func (t *Tracker) OnActivity(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.shutdown {
		return
	}

	t.cancelTimerLocked(sessionID)

	ts, ok := t.sessions[sessionID]
	if !ok {
		ts = &trackedState{state: StatePending}
		t.sessions[sessionID] = ts
	} else if ts.state != StateSummarizing {
		ts.state = StatePending
	}
	ts.lastActivity = time.Now()

	t.timers[sessionID] = time.AfterFunc(t.idleThreshold, func() {
		t.onIdle(sessionID)
	})
}

// MarkExternallySummarized force-sets a session to Done and cancels any
// pending idle timer. Used when a caller summarized out-of-band so the idle
// path doesn't race it with a redundant run.
func (t *Tracker) MarkExternallySummarized(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cancelTimerLocked(sessionID)

	ts, ok := t.sessions[sessionID]
	if !ok {
		ts = &trackedState{}
		t.sessions[sessionID] = ts
	}
	ts.state = StateDone
	ts.summaryStartedAt = time.Time{}
	t.log.Debugf("session %s marked externally summarized", sessionID)
}

// State returns the session's summarization state (StateNone if untracked).
func (t *Tracker) State(sessionID string) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ts, ok := t.sessions[sessionID]; ok {
		return ts.state
	}
	return StateNone
}

// Forget drops all tracking for a session (evicted or removed).
func (t *Tracker) Forget(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelTimerLocked(sessionID)
	delete(t.sessions, sessionID)
}

// Shutdown cancels all pending timers and stops the sweep. Idempotent.
func (t *Tracker) Shutdown() {
	t.mu.Lock()
	t.shutdown = true
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
	t.mu.Unlock()

	t.closeOnce.Do(func() { close(t.done) })
}

func (t *Tracker) cancelTimerLocked(sessionID string) {
	if timer, ok := t.timers[sessionID]; ok {
		timer.Stop()
		delete(t.timers, sessionID)
	}
}

// onIdle fires when a session's idle timer expires. A state other than
// Pending means activity or another path won a race since the timer was
// scheduled; that is a safe no-op.
func (t *Tracker) onIdle(sessionID string) {
	t.mu.Lock()
	delete(t.timers, sessionID)

	if t.shutdown {
		t.mu.Unlock()
		return
	}
	ts, ok := t.sessions[sessionID]
	if !ok || ts.state != StatePending {
		t.mu.Unlock()
		return
	}

	sess, found := t.getSession(sessionID)
	if !found {
		t.log.Warnf("session %s not found for summarization", sessionID)
		t.mu.Unlock()
		return
	}

	ts.state = StateSummarizing
	ts.summaryStartedAt = time.Now()
	t.mu.Unlock()

	t.log.Infof("session %s idle, summarizing", sessionID)
	ok = t.runSummarize(sess)

	t.mu.Lock()
	defer t.mu.Unlock()
	// The stuck sweep may have already forced Failed; don't resurrect.
	if ts.state == StateSummarizing {
		if ok {
			ts.state = StateDone
		} else {
			ts.state = StateFailed
		}
		ts.summaryStartedAt = time.Time{}
	}
}

// runSummarize invokes the callback with a hard deadline and converts a
// panic into failure so a broken callback can never wedge the tracker.
func (t *Tracker) runSummarize(sess *registry.Session) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Errorf("summarize panic for session %s: %v", sess.ID, r)
			ok = false
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), t.stuckTimeout)
	defer cancel()
	return t.summarize(ctx, sess)
}

func (t *Tracker) stuckCheckLoop() {
	ticker := time.NewTicker(t.stuckCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.reclaimStuck()
		}
	}
}

// reclaimStuck force-fails sessions that have been Summarizing longer than
// the stuck timeout. This is the only mechanism that recovers a session
// whose callback hung or whose completion was silently lost.
func (t *Tracker) reclaimStuck() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for id, ts := range t.sessions {
		if ts.state != StateSummarizing || ts.summaryStartedAt.IsZero() {
			continue
		}
		if elapsed := now.Sub(ts.summaryStartedAt); elapsed > t.stuckTimeout {
			t.log.Warnf("session %s summary stuck after %s, marking failed", id, elapsed.Round(time.Second))
			ts.state = StateFailed
			ts.summaryStartedAt = time.Time{}
		}
	}
}
