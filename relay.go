package danmurelay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jpalmerr/danmurelay/dashboard"
	"github.com/jpalmerr/danmurelay/internal/broadcast"
	"github.com/jpalmerr/danmurelay/internal/extract"
	"github.com/jpalmerr/danmurelay/internal/fault"
	"github.com/jpalmerr/danmurelay/internal/feed"
	"github.com/jpalmerr/danmurelay/internal/metrics"
	"github.com/jpalmerr/danmurelay/internal/server"
	"github.com/jpalmerr/danmurelay/internal/store"
)

const (
	defaultUpstreamURL = "ws://127.0.0.1:23333/"
	defaultTargetGroup = 697375450
	defaultPullAddr    = ":2334"
	defaultPushAddr    = ":233"
)

// Relay connects to a chat event feed and serves the latest message from a
// single group to overlay clients.
//
// A Relay is created using [New] with functional options and started with
// [Relay.Start]. The typical lifecycle is:
//
//	relay, err := danmurelay.New(danmurelay.WithTargetGroup(42))
//	if err != nil {
//	    slog.Error("failed to create relay", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	relay.Start(ctx) // blocks until context cancelled
type Relay struct {
	title             string
	upstreamURL       string
	reconnectDelay    time.Duration
	handshakeTimeout  time.Duration
	broadcastInterval time.Duration
	pullAddr          string
	pushAddr          string
	logger            *slog.Logger
	errorHooks        []func(*Error)
	pushCallbacks     []func(Record)
	mirrors           []func(Record) error

	cell      *store.Cell
	extractor extract.Extractor
	metrics   *metrics.Metrics

	mu      sync.Mutex
	started bool
	srv     *server.Server
}

// New creates a new [Relay] with the given options.
//
// Every option has a default:
//   - Upstream URL: ws://127.0.0.1:23333/
//   - Target group: 697375450
//   - Reconnect delay: 3 seconds
//   - Broadcast interval: 500 milliseconds
//   - Pull address: ":2334", push address: ":233"
//
// Returns an error if any option is invalid.
func New(opts ...Option) (*Relay, error) {
	cfg := &relayConfig{
		upstreamURL:       defaultUpstreamURL,
		targetGroup:       defaultTargetGroup,
		reconnectDelay:    feed.DefaultReconnectDelay,
		handshakeTimeout:  feed.DefaultHandshakeTimeout,
		broadcastInterval: broadcast.DefaultInterval,
		pullAddr:          defaultPullAddr,
		pushAddr:          defaultPushAddr,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	// default to slog.Default() if no logger provided
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Relay{
		title:             cfg.title,
		upstreamURL:       cfg.upstreamURL,
		reconnectDelay:    cfg.reconnectDelay,
		handshakeTimeout:  cfg.handshakeTimeout,
		broadcastInterval: cfg.broadcastInterval,
		pullAddr:          cfg.pullAddr,
		pushAddr:          cfg.pushAddr,
		logger:            logger,
		errorHooks:        cfg.errorHooks,
		pushCallbacks:     cfg.pushCallbacks,
		mirrors:           cfg.mirrors,
		cell:              store.NewCell(),
		extractor:         extract.Extractor{GroupID: cfg.targetGroup},
		metrics:           metrics.New(),
	}, nil
}

// Start connects to the upstream feed and serves the pull and push endpoints.
//
// Start is a blocking call that runs until the provided context is cancelled.
// Both listeners are bound before any background task runs; failing to bind
// either is returned as an error. Upstream outages, malformed frames and
// broken subscribers are never fatal: they are reported to the hooks
// registered with [WithErrorHook] and the relay keeps serving the last
// known record.
//
// Returns nil on graceful shutdown. A Relay can be started once.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return errors.New("relay already started")
	}
	r.started = true
	r.mu.Unlock()

	// check if context already cancelled
	if ctx.Err() != nil {
		return nil
	}

	r.logger.Info("relay starting",
		"upstream", r.upstreamURL,
		"target_group", r.extractor.GroupID,
		"broadcast_interval", r.broadcastInterval.String(),
	)

	hook := r.errorHook()
	registry := store.NewRegistry()

	client := feed.NewClient(feed.Config{
		URL:              r.upstreamURL,
		ReconnectDelay:   r.reconnectDelay,
		HandshakeTimeout: r.handshakeTimeout,
		Classify: func(frame []byte) error {
			_, err := r.extractor.Inspect(frame, true)
			return err
		},
		Hook:    hook,
		Metrics: r.metrics,
	}, r.cell, r.logger)

	broadcaster := broadcast.New(r.Latest, registry, broadcast.Config{
		Interval:  r.broadcastInterval,
		Hook:      hook,
		Metrics:   r.metrics,
		Callbacks: r.pushHandlers(hook),
	}, r.logger)

	httpServer := server.NewServer(server.Config{
		PullAddr: r.pullAddr,
		PushAddr: r.pushAddr,
		Title:    r.title,
		Assets:   dashboard.Assets,
		Metrics:  r.metrics,
		Health: func() server.Health {
			h := server.Health{
				UpstreamConnected:      client.Connected(),
				Subscribers:            registry.Len(),
				SubscribersByTransport: registry.CountByTransport(),
			}
			if at := r.cell.UpdatedAt(); !at.IsZero() {
				h.LastFrameAt = &at
			}
			return h
		},
	}, r.Latest, broadcaster, r.logger)

	// bind before starting any task so a bind failure leaves nothing running
	if err := httpServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	r.mu.Lock()
	r.srv = httpServer
	r.mu.Unlock()

	client.Start(ctx)
	broadcaster.Start(ctx)

	<-ctx.Done()

	client.Stop()
	broadcaster.Stop()
	r.logger.Info("relay stopped")
	return nil
}

// Latest returns the record for the most recent upstream frame.
//
// It is recomputed on every call and is safe to call at any time, including
// before [Relay.Start]; before the first frame it returns the empty record.
func (r *Relay) Latest() Record {
	raw, ok := r.cell.Latest()
	return r.extractor.Extract(raw, ok)
}

// PullAddr returns the bound pull listener address, or "" until the relay
// has started listening.
func (r *Relay) PullAddr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.srv == nil {
		return ""
	}
	return r.srv.PullAddr()
}

// PushAddr returns the bound push listener address, or "" until the relay
// has started listening.
func (r *Relay) PushAddr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.srv == nil {
		return ""
	}
	return r.srv.PushAddr()
}

// errorHook routes every reported error to metrics, the log and the user's
// hooks. Connect and write failures are already logged where they occur.
func (r *Relay) errorHook() fault.Hook {
	hooks := []fault.Hook{r.metrics.ObserveError, r.logError}
	for _, h := range r.errorHooks {
		hooks = append(hooks, fault.Hook(h))
	}
	return fault.Chain(hooks...)
}

// pushHandlers returns the push callbacks followed by the mirrors, each
// mirror wrapped so its failures reach hook.
func (r *Relay) pushHandlers(hook fault.Hook) []func(Record) {
	handlers := slices.Clone(r.pushCallbacks)
	for _, m := range r.mirrors {
		handlers = append(handlers, func(rec Record) {
			if err := m(rec); err != nil {
				r.logger.Warn("mirror publish failed", "error", err)
				hook.Report(fault.New(fault.Write, "mirror", err))
			}
		})
	}
	return handlers
}

func (r *Relay) logError(e *Error) {
	switch e.Kind {
	case fault.Parse:
		r.logger.Debug("frame is not a valid message, serving raw text", "op", e.Op, "error", e.Error())
	case fault.FilterMiss:
		r.logger.Debug("frame filtered out", "filter", e.Op)
	}
}
