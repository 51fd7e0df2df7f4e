// Package broadcast fans session lifecycle and message events out to
// subscriber queues. Publishing never blocks: a subscriber whose queue is
// full is presumed dead and dropped, so one slow client cannot stall the
// tailer path.
package broadcast

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Kind string

const (
	KindMessage        Kind = "message"
	KindSessionAdded   Kind = "session_added"
	KindSessionRemoved Kind = "session_removed"
)

type Event struct {
	Kind      Kind        `json:"kind"`
	SessionID string      `json:"session_id"`
	Payload   interface{} `json:"payload,omitempty"`
}

// MessagePayload is the payload for KindMessage events: one rendered
// transcript entry.
type MessagePayload struct {
	Role      string `json:"role"`
	Timestamp string `json:"timestamp,omitempty"`
	Content   string `json:"content"`
}

type Broadcaster struct {
	mu        sync.Mutex
	subs      map[string]chan Event
	queueSize int
	log       *logrus.Logger
}

func New(queueSize int, log *logrus.Logger) *Broadcaster {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Broadcaster{
		subs:      make(map[string]chan Event),
		queueSize: queueSize,
		log:       log,
	}
}

// Subscribe registers a new subscriber queue. The returned channel is closed
// when the subscriber is unsubscribed or dropped for falling behind.
func (b *Broadcaster) Subscribe() (string, <-chan Event) {
	id := uuid.NewString()
	ch := make(chan Event, b.queueSize)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	b.log.Debugf("subscriber %s connected", id)
	return id, ch
}

func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish enqueues the event to every subscriber. Full queues drop their
// subscriber; no backpressure reaches the caller.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.log.Warnf("subscriber %s too slow, dropping", id)
			delete(b.subs, id)
			close(ch)
		}
	}
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
