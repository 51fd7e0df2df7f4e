// Package server exposes the HTTP surface: a JSON API for session state and
// usage, a Server-Sent Events stream, and a WebSocket stream. Both streams
// deliver the same events; SSE is the primary transport, the WebSocket is
// for clients that want bidirectional framing.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/tailview/backend/internal/broadcast"
	"github.com/tailview/backend/internal/config"
	"github.com/tailview/backend/internal/pricing"
	"github.com/tailview/backend/internal/registry"
	"github.com/tailview/backend/internal/summary"
	"github.com/tailview/backend/internal/tailer"
	"github.com/tailview/backend/internal/usage"
)

const previewMaxLen = 120

type Server struct {
	cfg     *config.Config
	reg     *registry.Registry
	bc      *broadcast.Broadcaster
	idle    *summary.Tracker // nil when summarization is disabled
	pricing *pricing.Table
	log     *logrus.Logger
}

func New(cfg *config.Config, reg *registry.Registry, bc *broadcast.Broadcaster,
	idle *summary.Tracker, table *pricing.Table, log *logrus.Logger) *Server {

	if log == nil {
		log = logrus.StandardLogger()
	}
	if table == nil {
		table = pricing.DefaultTable()
	}
	return &Server{cfg: cfg, reg: reg, bc: bc, idle: idle, pricing: table, log: log}
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sessions/", s.handleSessionRoutes)
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/health", s.handleHealth)
}

// sessionView is the API representation of one tracked session.
type sessionView struct {
	ID              string       `json:"id"`
	Source          string       `json:"source"`
	Path            string       `json:"path"`
	ProjectName     string       `json:"project_name,omitempty"`
	ProjectPath     string       `json:"project_path,omitempty"`
	WaitingForInput bool         `json:"waiting_for_input"`
	SummaryState    string       `json:"summary_state"`
	FirstMessage    string       `json:"first_message,omitempty"`
	Usage           usage.Totals `json:"usage"`
}

func (s *Server) viewFor(sess *registry.Session) sessionView {
	state := summary.StateNone
	if s.idle != nil {
		state = s.idle.State(sess.ID)
	}
	return sessionView{
		ID:              sess.ID,
		Source:          sess.Source,
		Path:            sess.Path,
		ProjectName:     sess.ProjectName,
		ProjectPath:     sess.ProjectPath,
		WaitingForInput: sess.Tailer.WaitingForInput(),
		SummaryState:    state.String(),
		FirstMessage:    tailer.FirstUserMessage(sess.Path, previewMaxLen),
		Usage:           sess.Usage.Totals(s.pricing),
	}
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.reg.List()
	views := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, s.viewFor(sess))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}

// handleSessionRoutes dispatches /api/sessions/{id}/usage.
func (s *Server) handleSessionRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[1] != "usage" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	sessionID, err := url.PathUnescape(parts[0])
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	sess, ok := s.reg.Get(sessionID)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sess.Usage.Totals(s.pricing))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      "ok",
		"sessions":    s.reg.Len(),
		"subscribers": s.bc.SubscriberCount(),
	})
}

func ListenAndServe(host string, port int, mux *http.ServeMux) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	return http.ListenAndServe(addr, mux)
}
