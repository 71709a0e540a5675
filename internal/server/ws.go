package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// maxClientMessage bounds frames read from push clients. Their content is
// discarded.
const maxClientMessage = 64 * 1024

// errSubscriberClosed is returned by Send after Close.
var errSubscriberClosed = errors.New("subscriber closed")

// upgrader accepts connections from any origin so overlays loaded from
// file:// or another host can subscribe.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsSubscriber adapts a websocket connection to store.Subscriber. Gorilla
// allows one concurrent writer, so Send and Close share mu.
type wsSubscriber struct {
	id   string
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func newWSSubscriber(conn *websocket.Conn) *wsSubscriber {
	return &wsSubscriber{
		id:   uuid.NewString(),
		conn: conn,
	}
}

func (w *wsSubscriber) ID() string        { return w.id }
func (w *wsSubscriber) Transport() string { return "websocket" }

func (w *wsSubscriber) Send(payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errSubscriberClosed
	}
	if err := w.conn.SetWriteDeadline(time.Now().Add(pushWriteTimeout)); err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.TextMessage, payload)
}

func (w *wsSubscriber) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.conn.Close()
}

// handleWebSocket upgrades the connection, joins it to the push set and
// then reads and discards client frames until the connection fails.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	sub := newWSSubscriber(conn)

	// hijacked connections are not closed by http.Server.Shutdown, so tie
	// the connection to the request context (derived from the server context)
	stop := context.AfterFunc(r.Context(), func() { _ = sub.Close() })
	defer stop()

	if err := s.pusher.Join(sub); err != nil {
		_ = sub.Close()
		return
	}
	defer s.pusher.Leave(sub)

	conn.SetReadLimit(maxClientMessage)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.logger.Debug("websocket subscriber disconnected", "subscriber", sub.id, "error", err)
			return
		}
	}
}
