// Package broadcast pushes record changes to the relay's push subscribers.
//
// The [Broadcaster] recomputes the current record on a fixed period and
// pushes it only when its text is non-empty and its serialized form differs
// from the last pushed value. Filtered-out frames therefore never cause a
// push, even when their timestamp changes.
package broadcast

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/danmurelay/internal/extract"
	"github.com/jpalmerr/danmurelay/internal/fault"
	"github.com/jpalmerr/danmurelay/internal/metrics"
	"github.com/jpalmerr/danmurelay/internal/store"
)

// DefaultInterval is the period between change checks.
const DefaultInterval = 500 * time.Millisecond

// Source returns the current record. It is called once per tick and once
// per join.
type Source func() extract.Record

// Config configures a [Broadcaster].
type Config struct {
	// Interval is the tick period. Zero means DefaultInterval.
	Interval time.Duration

	// Hook receives a fault.Write error for every failed push. May be nil.
	Hook fault.Hook

	// Metrics records pushes, joins and evictions. May be nil.
	Metrics *metrics.Metrics

	// Callbacks run after each push, in order, with panic recovery.
	Callbacks []func(extract.Record)
}

// Broadcaster fans record changes out to the subscribers of a registry.
//
// Ticks and joins are serialized: a subscriber that joins receives exactly
// one initial record and afterwards only records that differ from it.
type Broadcaster struct {
	source   Source
	registry *store.Registry
	cfg      Config
	logger   *slog.Logger

	pushMu sync.Mutex
	last   []byte

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a [Broadcaster] reading records from source and pushing to
// the subscribers in registry.
func New(source Source, registry *store.Registry, cfg Config, logger *slog.Logger) *Broadcaster {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Broadcaster{
		source:   source,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start begins the tick loop in a background goroutine.
//
// Start is non-blocking and idempotent. If Stop was called before Start,
// Start is a no-op.
func (b *Broadcaster) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started || b.stopped {
		b.mu.Unlock()
		return
	}
	b.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()

		ticker := time.NewTicker(b.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				b.tick()
			}
		}
	}()
}

// Stop halts the tick loop and waits for it to exit. Registered subscribers
// are left in place; their connections end with the HTTP server.
//
// Stop is idempotent and safe to call before Start.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	if !b.stopped {
		b.stopped = true
		if b.cancel != nil {
			b.cancel()
		}
	}
	b.mu.Unlock()

	b.wg.Wait()
}

// Join sends the current record to sub and then registers it.
//
// The initial send does not consult or update the last pushed value, so a
// late joiner always receives the current state. If the initial send fails,
// sub is not registered and the error is returned.
func (b *Broadcaster) Join(sub store.Subscriber) error {
	b.pushMu.Lock()
	defer b.pushMu.Unlock()

	if err := sub.Send(b.source().Marshal()); err != nil {
		b.cfg.Hook.Report(fault.New(fault.Write, "join", err))
		return fmt.Errorf("initial push: %w", err)
	}

	b.registry.Add(sub)
	b.cfg.Metrics.SubscriberJoined(sub.Transport())
	b.logger.Debug("subscriber joined",
		"subscriber", sub.ID(),
		"transport", sub.Transport(),
		"subscribers", b.registry.Len(),
	)
	return nil
}

// Leave unregisters sub and closes it. Safe to call for a subscriber that
// was already evicted.
func (b *Broadcaster) Leave(sub store.Subscriber) {
	if b.registry.Remove(sub.ID()) {
		b.cfg.Metrics.SubscriberLeft(sub.Transport())
		b.logger.Debug("subscriber left",
			"subscriber", sub.ID(),
			"transport", sub.Transport(),
		)
	}
	_ = sub.Close()
}

// tick pushes the current record if it has text and changed since the last
// push. It reports whether a push happened.
func (b *Broadcaster) tick() bool {
	b.pushMu.Lock()

	rec := b.source()
	if rec.Text == "" {
		b.pushMu.Unlock()
		return false
	}

	payload := rec.Marshal()
	if bytes.Equal(payload, b.last) {
		b.pushMu.Unlock()
		return false
	}
	b.last = payload

	subs := b.registry.Snapshot()
	for _, sub := range subs {
		if err := sub.Send(payload); err != nil {
			b.evict(sub, err)
		}
	}
	b.pushMu.Unlock()

	b.cfg.Metrics.Broadcast()
	b.logger.Debug("record pushed", "time", rec.Time, "subscribers", len(subs))

	for _, cb := range b.cfg.Callbacks {
		b.invokeCallbackSafe(cb, rec)
	}
	return true
}

// evict drops a subscriber whose write failed. Other subscribers and the
// upstream are unaffected.
func (b *Broadcaster) evict(sub store.Subscriber, err error) {
	if b.registry.Remove(sub.ID()) {
		b.cfg.Metrics.SubscriberLeft(sub.Transport())
		b.cfg.Metrics.Evicted()
	}
	_ = sub.Close()

	b.cfg.Hook.Report(fault.New(fault.Write, "push", err))
	b.logger.Debug("subscriber evicted",
		"subscriber", sub.ID(),
		"transport", sub.Transport(),
		"error", err.Error(),
	)
}

// invokeCallbackSafe calls a push callback with panic recovery.
// Panics are logged with a correlation ID and do not propagate.
func (b *Broadcaster) invokeCallbackSafe(cb func(extract.Record), rec extract.Record) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("push callback panicked",
				"correlation_id", uuid.NewString(),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	cb(rec)
}
