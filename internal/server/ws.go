package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/tailview/backend/internal/broadcast"
	"github.com/tailview/backend/internal/registry"
	"github.com/tailview/backend/internal/tailer"
)

// wsClient owns one WebSocket connection. All writes go through the send
// channel and a single writePump goroutine; gorilla connections do not allow
// concurrent writers.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newWSClient(conn *websocket.Conn) *wsClient {
	c := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}
	go c.writePump()
	return c
}

func (c *wsClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// enqueue queues a frame without blocking. False means the client fell
// behind and should be disconnected.
func (c *wsClient) enqueue(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// wsFrame wraps an event with its type for clients that multiplex on one
// connection.
type wsFrame struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: checkLocalOrigin}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("ws upgrade: %v", err)
		return
	}
	s.log.Infof("WebSocket client connected: %s", r.RemoteAddr)

	client := newWSClient(conn)
	subID, ch := s.bc.Subscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		s.bc.Unsubscribe(subID)
		close(client.send)
		s.log.Infof("WebSocket client disconnected: %s", r.RemoteAddr)
	}()

	views := make([]sessionView, 0)
	for _, sess := range s.reg.List() {
		views = append(views, s.viewFor(sess))
	}
	if !s.wsSend(client, wsFrame{Type: "init", Payload: views}) {
		return
	}

	err = s.reg.CatchUp(r.Context(), func(sess *registry.Session, e tailer.Entry) error {
		payload, ok := broadcast.RenderEntry(e)
		if !ok {
			return nil
		}
		ev := broadcast.Event{Kind: broadcast.KindMessage, SessionID: sess.ID, Payload: payload}
		if !s.wsSend(client, wsFrame{Type: string(ev.Kind), Payload: ev}) {
			return websocket.ErrCloseSent
		}
		return nil
	})
	if err != nil {
		if err == registry.ErrCatchUpTimeout {
			s.wsSend(client, wsFrame{Type: "reset", Payload: map[string]string{"reason": "catch-up timeout"}})
		}
		return
	}

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if !s.wsSend(client, wsFrame{Type: string(ev.Kind), Payload: ev}) {
				return
			}
		}
	}
}

func (s *Server) wsSend(c *wsClient, frame wsFrame) bool {
	data, err := json.Marshal(frame)
	if err != nil {
		return false
	}
	if !c.enqueue(data) {
		s.log.Warnf("WebSocket client too slow, dropping")
		return false
	}
	return true
}

// checkLocalOrigin admits same-host and localhost origins. The server binds
// to loopback by default; this keeps browser pages on other hosts from
// connecting through a proxied port.
func checkLocalOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}

	host := parsed.Host
	if host == r.Host {
		return true
	}
	if strings.HasPrefix(host, "localhost") || strings.HasPrefix(host, "127.0.0.1") || strings.HasPrefix(host, "[::1]") {
		return true
	}
	return false
}
