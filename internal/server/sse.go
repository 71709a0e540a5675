package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// sseKeepaliveInterval is how often an idle SSE stream gets a comment line,
// so proxies do not drop it.
const sseKeepaliveInterval = 30 * time.Second

// sseSubscriber adapts an event stream to store.Subscriber. Writes happen
// on the broadcaster goroutine while the handler waits on done; mu keeps
// them from overlapping and from happening after the handler returns.
type sseSubscriber struct {
	id     string
	w      http.ResponseWriter
	rc     *http.ResponseController
	logger *slog.Logger

	mu                 sync.Mutex
	closed             bool
	done               chan struct{}
	deadlinesSupported bool
}

func newSSESubscriber(w http.ResponseWriter, logger *slog.Logger) *sseSubscriber {
	return &sseSubscriber{
		id:                 uuid.NewString(),
		w:                  w,
		rc:                 http.NewResponseController(w),
		logger:             logger,
		done:               make(chan struct{}),
		deadlinesSupported: true,
	}
}

func (s *sseSubscriber) ID() string        { return s.id }
func (s *sseSubscriber) Transport() string { return "sse" }

func (s *sseSubscriber) Send(payload []byte) error {
	return s.write("data: %s\n\n", payload)
}

// keepalive writes an SSE comment line.
func (s *sseSubscriber) keepalive() error {
	return s.write(": keepalive\n\n", nil)
}

// write writes with a deadline so a stalled client times out rather than
// blocking the broadcaster.
func (s *sseSubscriber) write(format string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errSubscriberClosed
	}

	if s.deadlinesSupported {
		if err := s.rc.SetWriteDeadline(time.Now().Add(pushWriteTimeout)); err != nil {
			// deadline not supported by underlying connection, continue without
			s.logger.Warn("sse write deadlines not supported", "error", err)
			s.deadlinesSupported = false
		}
	}

	var err error
	if payload != nil {
		_, err = fmt.Fprintf(s.w, format, payload)
	} else {
		_, err = fmt.Fprint(s.w, format)
	}
	if err != nil {
		return err
	}
	return s.rc.Flush()
}

func (s *sseSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

// handleSSE streams pushed records as Server-Sent Events. The first event
// is the current record; later events follow the broadcast cadence.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	// check if flushing is supported
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	sub := newSSESubscriber(w, s.logger)
	if err := s.pusher.Join(sub); err != nil {
		_ = sub.Close()
		return
	}
	// Leave closes sub, which waits for any in-flight write
	defer s.pusher.Leave(sub)

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-keepalive.C:
			if err := sub.keepalive(); err != nil {
				return
			}

		case <-sub.done:
			// evicted after a failed write
			return

		case <-r.Context().Done():
			// request context is derived from server context via BaseContext,
			// so this fires on both client disconnect AND server shutdown
			return
		}
	}
}
