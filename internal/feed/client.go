package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jpalmerr/danmurelay/internal/fault"
	"github.com/jpalmerr/danmurelay/internal/metrics"
	"github.com/jpalmerr/danmurelay/internal/store"
)

const maxFrameSize = 1 << 20 // 1MB

const (
	// DefaultReconnectDelay is the pause between a failed session and the next dial.
	DefaultReconnectDelay = 3 * time.Second

	// DefaultHandshakeTimeout bounds the websocket opening handshake.
	DefaultHandshakeTimeout = 10 * time.Second
)

// Config configures a [Client].
type Config struct {
	// URL is the upstream websocket address, e.g. ws://127.0.0.1:23333/.
	URL string

	// ReconnectDelay is the fixed wait after any session failure.
	// Zero means DefaultReconnectDelay.
	ReconnectDelay time.Duration

	// HandshakeTimeout bounds the opening handshake.
	// Zero means DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration

	// Classify, if set, is called with every stored frame. A returned
	// *fault.Error is passed to Hook; other errors are ignored.
	Classify func(frame []byte) error

	// Hook receives classified failures. May be nil.
	Hook fault.Hook

	// Metrics records session and frame activity. May be nil.
	Metrics *metrics.Metrics
}

// Client is a reconnecting upstream websocket reader.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Client struct {
	cfg       Config
	store     store.Store
	dialer    *websocket.Dialer
	logger    *slog.Logger
	connected atomic.Bool

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewClient creates a [Client] that writes frames into st.
//
// The client does nothing until [Client.Start] is called.
func NewClient(cfg Config, st store.Store, logger *slog.Logger) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	return &Client{
		cfg:   cfg,
		store: st,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger: logger,
	}
}

// Connected reports whether an upstream session is currently open.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Start runs the connect/read/reconnect loop in a background goroutine.
//
// Start is non-blocking and idempotent. If Stop was called before Start,
// Start is a no-op. If ctx is nil, context.Background() is used.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started || c.stopped {
		c.mu.Unlock()
		return
	}
	c.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		c.run(runCtx)
	}()
}

// Stop closes any open connection and waits for the loop to exit.
//
// Stop is idempotent and safe to call before Start.
func (c *Client) Stop() {
	c.mu.Lock()
	if !c.stopped {
		c.stopped = true
		if c.cancel != nil {
			c.cancel()
		}
	}
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *Client) run(ctx context.Context) {
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return
		}

		c.cfg.Hook.Report(err)
		c.logger.Warn("upstream disconnected",
			"url", c.cfg.URL,
			"error", err.Error(),
			"retry_in", c.cfg.ReconnectDelay.String(),
		)

		timer := time.NewTimer(c.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// session dials once and reads until the connection fails. The returned
// error is always non-nil.
func (c *Client) session(ctx context.Context) *fault.Error {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		c.cfg.Metrics.SessionFailed()
		return fault.New(fault.Connect, "dial", err)
	}
	defer func() { _ = conn.Close() }()

	// unblock ReadMessage on shutdown
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c.connected.Store(true)
	defer c.connected.Store(false)
	c.cfg.Metrics.SessionOpened()
	defer c.cfg.Metrics.SessionClosed()
	c.logger.Info("upstream connected", "url", c.cfg.URL)

	conn.SetReadLimit(maxFrameSize)

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return fault.New(fault.Connect, "read", err)
		}

		c.store.Set(frame)
		c.cfg.Metrics.FrameReceived()
		c.classify(frame)
	}
}

func (c *Client) classify(frame []byte) {
	if c.cfg.Classify == nil {
		return
	}
	var fe *fault.Error
	if errors.As(c.cfg.Classify(frame), &fe) {
		c.cfg.Hook.Report(fe)
	}
}
