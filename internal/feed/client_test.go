package feed

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jpalmerr/danmurelay/internal/fault"
	"github.com/jpalmerr/danmurelay/internal/store"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// upstream is a test websocket feed. Each accepted connection receives the
// frames of the next script entry, then the server closes it.
type upstream struct {
	srv     *httptest.Server
	conns   atomic.Int32
	mu      sync.Mutex
	scripts [][]string
	hold    chan struct{} // when non-nil, connections stay open until closed
}

func newUpstream(t *testing.T, scripts ...[]string) *upstream {
	t.Helper()
	u := &upstream{scripts: scripts}
	upgrader := websocket.Upgrader{}

	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := int(u.conns.Add(1))

		u.mu.Lock()
		var frames []string
		if n <= len(u.scripts) {
			frames = u.scripts[n-1]
		}
		hold := u.hold
		u.mu.Unlock()

		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		if hold != nil {
			<-hold
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	}))
	t.Cleanup(u.srv.Close)
	return u
}

// holdOpen keeps later connections open until the returned channel is closed.
func (u *upstream) holdOpen() chan struct{} {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.hold = make(chan struct{})
	return u.hold
}

func (u *upstream) url() string {
	return "ws" + strings.TrimPrefix(u.srv.URL, "http")
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestClient_StopBeforeStart(t *testing.T) {
	c := NewClient(Config{URL: "ws://127.0.0.1:1/"}, store.NewCell(), testLogger())

	// must not panic or block
	c.Stop()
	c.Start(nil)
	c.Stop()
}

func TestClient_Defaults(t *testing.T) {
	c := NewClient(Config{URL: "ws://example.invalid/"}, store.NewCell(), testLogger())

	if c.cfg.ReconnectDelay != DefaultReconnectDelay {
		t.Errorf("ReconnectDelay = %v, want %v", c.cfg.ReconnectDelay, DefaultReconnectDelay)
	}
	if c.dialer.HandshakeTimeout != DefaultHandshakeTimeout {
		t.Errorf("HandshakeTimeout = %v, want %v", c.dialer.HandshakeTimeout, DefaultHandshakeTimeout)
	}
}

func TestClient_StoresLatestFrame(t *testing.T) {
	up := newUpstream(t, []string{"one", "two", "three"})
	defer close(up.holdOpen())

	cell := store.NewCell()
	c := NewClient(Config{URL: up.url(), ReconnectDelay: time.Hour}, cell, testLogger())
	c.Start(t.Context())
	defer c.Stop()

	ok := waitFor(t, 2*time.Second, func() bool {
		frame, _ := cell.Latest()
		return string(frame) == "three"
	})
	if !ok {
		frame, _ := cell.Latest()
		t.Fatalf("Latest() = %q, want %q", frame, "three")
	}
	if !c.Connected() {
		t.Error("Connected() = false while the session is open")
	}
}

func TestClient_ReconnectsAndKeepsStaleFrame(t *testing.T) {
	up := newUpstream(t, []string{"before"}, nil, []string{"after"})

	var mu sync.Mutex
	var kinds []fault.Kind
	hook := func(e *fault.Error) {
		mu.Lock()
		kinds = append(kinds, e.Kind)
		mu.Unlock()
	}

	cell := store.NewCell()
	c := NewClient(Config{URL: up.url(), ReconnectDelay: 20 * time.Millisecond, Hook: hook}, cell, testLogger())
	c.Start(t.Context())
	defer c.Stop()

	// second connection sends nothing; the stale frame must survive it
	if !waitFor(t, 2*time.Second, func() bool { return up.conns.Load() >= 2 }) {
		t.Fatal("client did not reconnect")
	}
	if frame, ok := cell.Latest(); !ok || (string(frame) != "before" && string(frame) != "after") {
		t.Errorf("Latest() = %q, %v during outage, want last received frame", frame, ok)
	}

	if !waitFor(t, 2*time.Second, func() bool {
		frame, _ := cell.Latest()
		return string(frame) == "after"
	}) {
		t.Fatal("frame from third session never stored")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(kinds) == 0 {
		t.Fatal("hook never received the session failures")
	}
	for _, k := range kinds {
		if k != fault.Connect {
			t.Errorf("hook kind = %v, want connect", k)
		}
	}
}

func TestClient_DialFailureRetries(t *testing.T) {
	// reserve a port and close it so dials are refused
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	var failures atomic.Int32
	hook := func(e *fault.Error) {
		if e.Kind == fault.Connect && e.Op == "dial" {
			failures.Add(1)
		}
	}

	c := NewClient(Config{URL: url, ReconnectDelay: 10 * time.Millisecond, Hook: hook}, store.NewCell(), testLogger())
	c.Start(t.Context())
	defer c.Stop()

	if !waitFor(t, 2*time.Second, func() bool { return failures.Load() >= 3 }) {
		t.Errorf("dial failures reported = %d, want at least 3", failures.Load())
	}
	if c.Connected() {
		t.Error("Connected() = true with no upstream")
	}
}

func TestClient_ClassifiesFrames(t *testing.T) {
	up := newUpstream(t, []string{"bad", "good"})
	defer close(up.holdOpen())

	var parseErrors atomic.Int32
	classify := func(frame []byte) error {
		if string(frame) == "bad" {
			return fault.New(fault.Parse, "decode", errors.New("boom"))
		}
		return nil
	}
	hook := func(e *fault.Error) {
		if e.Kind == fault.Parse {
			parseErrors.Add(1)
		}
	}

	cell := store.NewCell()
	c := NewClient(Config{URL: up.url(), ReconnectDelay: time.Hour, Classify: classify, Hook: hook}, cell, testLogger())
	c.Start(t.Context())
	defer c.Stop()

	waitFor(t, 2*time.Second, func() bool {
		frame, _ := cell.Latest()
		return string(frame) == "good"
	})
	if parseErrors.Load() != 1 {
		t.Errorf("parse errors reported = %d, want 1", parseErrors.Load())
	}
}

func TestClient_StopClosesOpenSession(t *testing.T) {
	up := newUpstream(t, []string{"x"})
	defer close(up.holdOpen())

	cell := store.NewCell()
	c := NewClient(Config{URL: up.url(), ReconnectDelay: time.Hour}, cell, testLogger())
	c.Start(t.Context())

	waitFor(t, 2*time.Second, c.Connected)

	done := make(chan struct{})
	go func() {
		c.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() blocked on an open session")
	}
	if c.Connected() {
		t.Error("Connected() = true after Stop")
	}
}
