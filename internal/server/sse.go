package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tailview/backend/internal/broadcast"
	"github.com/tailview/backend/internal/registry"
	"github.com/tailview/backend/internal/tailer"
)

// handleEvents serves the SSE stream. The subscription is registered before
// catch-up starts so entries appended during the replay queue up instead of
// being lost; the queue is drained after the replay, which can deliver an
// entry twice but never skips one.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	subID, ch := s.bc.Subscribe()
	defer s.bc.Unsubscribe(subID)
	s.log.Infof("SSE client connected: %s", r.RemoteAddr)
	defer s.log.Infof("SSE client disconnected: %s", r.RemoteAddr)

	// Handshake: the current session list, so the client can build its UI
	// before any messages arrive.
	views := make([]sessionView, 0)
	for _, sess := range s.reg.List() {
		views = append(views, s.viewFor(sess))
	}
	if err := writeSSE(w, "init", views); err != nil {
		return
	}
	flusher.Flush()

	err := s.reg.CatchUp(r.Context(), func(sess *registry.Session, e tailer.Entry) error {
		payload, ok := broadcast.RenderEntry(e)
		if !ok {
			return nil
		}
		ev := broadcast.Event{Kind: broadcast.KindMessage, SessionID: sess.ID, Payload: payload}
		if err := writeSSE(w, string(ev.Kind), ev); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if errors.Is(err, registry.ErrCatchUpTimeout) {
		// Tell the client to reconnect with a clean slate rather than
		// continue from a partial replay.
		writeSSE(w, "reset", map[string]string{"reason": "catch-up timeout"})
		flusher.Flush()
		return
	}
	if err != nil {
		return
	}

	interval := s.cfg.Broadcast.PingInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ping := time.NewTicker(interval)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-ch:
			if !ok {
				// Dropped for falling behind.
				return
			}
			if err := writeSSE(w, string(ev.Kind), ev); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, data interface{}) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, encoded)
	return err
}
