package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"audioconv/internal/events"
)

const writeWait = 5 * time.Second

// wsMessage is an incoming client command.
type wsMessage struct {
	Type string `json:"type"`
}

// wsResponse is every outgoing frame.
type wsResponse struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// wsClient serializes writes to one connection; gorilla allows a single writer.
type wsClient struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

func (c *wsClient) send(msg wsResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.closed = true
		return err
	}
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	client := &wsClient{conn: conn}
	n := s.clients.Add(1)
	s.logger.Debug("websocket client connected", slog.Int64("clients", n))
	defer func() {
		n := s.clients.Add(-1)
		s.logger.Debug("websocket client disconnected", slog.Int64("clients", n))
	}()

	s.sendState(client)

	unsubscribe := s.bus.Subscribe(events.HandlerFunc(func(e events.Event) {
		if err := client.send(wsResponse{Type: string(e.Kind), Data: e}); err != nil {
			_ = conn.Close()
		}
	}))
	defer unsubscribe()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg wsMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			_ = client.send(wsResponse{Type: "error", Error: "invalid message"})
			continue
		}
		s.handleMessage(client, msg)
	}
}

func (s *Server) handleMessage(client *wsClient, msg wsMessage) {
	switch msg.Type {
	case "get_state":
		s.sendState(client)
	case "stop":
		stopped := s.sched.StopConversion()
		_ = client.send(wsResponse{Type: "stop_response", Data: map[string]any{"stopping": stopped}})
	default:
		_ = client.send(wsResponse{Type: msg.Type + "_response", Error: "unknown command: " + msg.Type})
	}
}

func (s *Server) sendState(client *wsClient) {
	_ = client.send(wsResponse{
		Type: "state",
		Data: map[string]any{
			"state":  s.sched.State(),
			"stats":  s.sched.Stats(),
			"events": s.snapshot.View(),
		},
	})
}
