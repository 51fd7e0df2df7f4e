package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tailview/backend/internal/broadcast"
	"github.com/tailview/backend/internal/config"
	"github.com/tailview/backend/internal/pricing"
	"github.com/tailview/backend/internal/registry"
)

// serveEvents runs /events with a bounded request context and returns the
// raw stream, since the handler only exits when the client goes away or the
// catch-up replay is aborted.
func serveEvents(t *testing.T, srv *Server, wait time.Duration) string {
	t.Helper()
	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	mux.ServeHTTP(rec, req)
	return rec.Body.String()
}

func TestEventsInitAndCatchUp(t *testing.T) {
	srv, reg := newTestServer(t)
	trackSession(t, reg, "abc")

	body := serveEvents(t, srv, 100*time.Millisecond)

	// Handshake first, then the replayed history.
	initIdx := strings.Index(body, "event: init")
	msgIdx := strings.Index(body, "event: message")
	if initIdx < 0 {
		t.Fatalf("no init event in stream:\n%s", body)
	}
	if msgIdx < 0 {
		t.Fatalf("no catch-up message in stream:\n%s", body)
	}
	if msgIdx < initIdx {
		t.Error("message delivered before init handshake")
	}
	if !strings.Contains(body, `"session_id":"abc"`) {
		t.Errorf("message not attributed to session:\n%s", body)
	}
	if !strings.Contains(body, "fix the login bug") {
		t.Errorf("replayed content missing:\n%s", body)
	}
}

func TestEventsResetOnCatchUpTimeout(t *testing.T) {
	// A catch-up budget that expires immediately: the stream must tell the
	// client to reconnect instead of continuing a partial replay.
	cfg := config.Default()
	reg := registry.New(10, time.Nanosecond, nil)
	trackSession(t, reg, "abc")
	srv := New(cfg, reg, broadcast.New(10, nil), nil, pricing.DefaultTable(), nil)

	body := serveEvents(t, srv, 100*time.Millisecond)

	if !strings.Contains(body, "event: reset") {
		t.Fatalf("no reset event in stream:\n%s", body)
	}
	if !strings.Contains(body, "catch-up timeout") {
		t.Errorf("reset without reason:\n%s", body)
	}
	if strings.Contains(body, "event: message") {
		t.Errorf("partial replay leaked past the reset:\n%s", body)
	}
}

func TestEventsKeepalivePing(t *testing.T) {
	srv, _ := newTestServer(t)

	body := serveEvents(t, srv, 150*time.Millisecond)
	if !strings.Contains(body, ": ping") {
		t.Errorf("no keepalive comment in stream:\n%s", body)
	}
}
