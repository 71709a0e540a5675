package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jpalmerr/danmurelay/internal/extract"
	"github.com/jpalmerr/danmurelay/internal/metrics"
	"github.com/jpalmerr/danmurelay/internal/store"
)

const (
	// pushWriteTimeout is the maximum time allowed for a single push write.
	// This keeps a stalled subscriber from holding up the broadcaster.
	pushWriteTimeout = 5 * time.Second

	// shutdownTimeout bounds graceful shutdown of each listener.
	shutdownTimeout = 5 * time.Second

	// defaultTitle is used when no custom title is configured.
	defaultTitle = "Danmu"

	// titlePlaceholder is the marker in HTML that gets replaced with the actual title.
	titlePlaceholder = "{{.Title}}"
)

// Source returns the current record. It is called once per pull request.
type Source func() extract.Record

// Pusher registers push subscribers. Join sends the initial record and
// registers the subscriber; Leave unregisters and closes it.
type Pusher interface {
	Join(sub store.Subscriber) error
	Leave(sub store.Subscriber)
}

// Health is the body of the /healthz response.
type Health struct {
	// UpstreamConnected reports whether the upstream session is open.
	UpstreamConnected bool `json:"upstream_connected"`

	// LastFrameAt is when the latest upstream frame arrived; nil before the first.
	LastFrameAt *time.Time `json:"last_frame_at"`

	// Subscribers is the number of live push subscribers.
	Subscribers int `json:"subscribers"`

	// SubscribersByTransport splits Subscribers by push mechanism.
	SubscribersByTransport map[string]int `json:"subscribers_by_transport"`
}

// Config configures a [Server].
type Config struct {
	// PullAddr and PushAddr are the two listen addresses. Both serve every
	// route. Equal addresses with a fixed port share one listener.
	PullAddr string
	PushAddr string

	// Title is substituted into the overlay page. Defaults to "Danmu".
	Title string

	// Assets holds assets/overlay.html. The overlay route is disabled when nil.
	Assets fs.FS

	// Metrics is exposed at /metrics when non-nil.
	Metrics *metrics.Metrics

	// Health reports relay state for /healthz. May be nil.
	Health func() Health
}

// Server serves the pull, push and operational routes.
type Server struct {
	cfg    Config
	source Source
	pusher Pusher
	logger *slog.Logger

	mu       sync.Mutex
	servers  []*http.Server
	pullAddr string
	pushAddr string
}

// NewServer creates a new HTTP [Server].
//
// The server is not started until [Server.Start] is called.
func NewServer(cfg Config, source Source, pusher Pusher, logger *slog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		source: source,
		pusher: pusher,
		logger: logger,
	}
}

// Handler returns the route multiplexer shared by both listeners.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handlePull)
	mux.HandleFunc("GET /api/record", s.handlePull)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /api/sse", s.handleSSE)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	if s.cfg.Metrics != nil {
		mux.Handle("GET /metrics", s.cfg.Metrics.Handler())
	}
	if s.cfg.Assets != nil {
		mux.HandleFunc("GET /overlay", s.handleOverlay)
	}

	return mux
}

// Start binds both listeners and serves requests in background goroutines.
//
// Start is non-blocking and returns once both addresses are bound. Failing
// to bind either address is the relay's only fatal error: any listener
// already bound is closed and the error is returned. The server shuts down
// when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	type binding struct {
		name string
		addr string
	}
	bindings := []binding{{"pull", s.cfg.PullAddr}}
	if !sharesListener(s.cfg.PullAddr, s.cfg.PushAddr) {
		bindings = append(bindings, binding{"push", s.cfg.PushAddr})
	}

	// create listeners first to verify availability synchronously
	listeners := make([]net.Listener, 0, len(bindings))
	for _, b := range bindings {
		ln, err := net.Listen("tcp", b.addr)
		if err != nil {
			for _, l := range listeners {
				_ = l.Close()
			}
			return fmt.Errorf("failed to bind %s listener on %s: %w", b.name, b.addr, err)
		}
		listeners = append(listeners, ln)
	}

	handler := s.Handler()

	s.mu.Lock()
	s.pullAddr = listeners[0].Addr().String()
	s.pushAddr = listeners[len(listeners)-1].Addr().String()
	for i, ln := range listeners {
		srv := &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			// BaseContext derives all request contexts from the server context,
			// so long-lived push handlers end on shutdown.
			BaseContext: func(_ net.Listener) context.Context {
				return ctx
			},
		}
		s.servers = append(s.servers, srv)

		go func(name string, srv *http.Server, ln net.Listener) {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("http server error", "listener", name, "error", err)
			}
		}(bindings[i].name, srv, ln)

		s.logger.Info("listening", "listener", bindings[i].name, "addr", ln.Addr().String())
	}
	servers := append([]*http.Server(nil), s.servers...)
	s.mu.Unlock()

	// shutdown on context cancellation
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("http server shutdown error", "error", err)
			}
		}
	}()

	return nil
}

// PullAddr returns the bound pull address, or "" before Start.
func (s *Server) PullAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pullAddr
}

// PushAddr returns the bound push address, or "" before Start.
func (s *Server) PushAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushAddr
}

// sharesListener reports whether pull and push can use one listener. An
// ephemeral port ("…:0") always gets its own listener.
func sharesListener(pull, push string) bool {
	if pull != push {
		return false
	}
	_, port, err := net.SplitHostPort(pull)
	return err == nil && port != "0" && port != ""
}

// handlePull returns the current record as JSON. It always succeeds.
func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	s.cfg.Metrics.PullServed()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if _, err := w.Write(s.source().Marshal()); err != nil {
		s.logger.Debug("failed to write pull response", "error", err)
	}
}

// handleHealth reports upstream and subscriber state.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var h Health
	if s.cfg.Health != nil {
		h = s.cfg.Health()
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")

	if err := json.NewEncoder(w).Encode(h); err != nil {
		s.logger.Error("failed to encode health response", "error", err)
	}
}

// handleOverlay serves the overlay page.
func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	content, err := fs.ReadFile(s.cfg.Assets, "assets/overlay.html")
	if err != nil {
		http.Error(w, "Overlay not found", http.StatusInternalServerError)
		return
	}

	// apply title substitution with HTML escaping to prevent XSS
	title := s.cfg.Title
	if title == "" {
		title = defaultTitle
	}
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write overlay response", "error", err)
	}
}
