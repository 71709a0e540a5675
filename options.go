package danmurelay

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"
)

// relayConfig holds mutable state during Relay construction.
type relayConfig struct {
	title             string
	upstreamURL       string
	targetGroup       int64
	reconnectDelay    time.Duration
	handshakeTimeout  time.Duration
	broadcastInterval time.Duration
	pullAddr          string
	pushAddr          string
	logger            *slog.Logger
	errorHooks        []func(*Error)
	pushCallbacks     []func(Record)
	mirrors           []func(Record) error
}

// Option is a function that configures a [Relay] instance during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
type Option func(*relayConfig) error

// WithUpstreamURL sets the websocket URL of the chat event feed.
//
// Defaults to ws://127.0.0.1:23333/. Returns an error unless the URL has a
// ws or wss scheme and a host.
func WithUpstreamURL(raw string) Option {
	return func(cfg *relayConfig) error {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid upstream URL: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("upstream URL must use ws or wss scheme, got %q", u.Scheme)
		}
		if u.Host == "" {
			return errors.New("upstream URL must have a host")
		}
		cfg.upstreamURL = raw
		return nil
	}
}

// WithTargetGroup sets the only group whose messages are relayed.
//
// Defaults to 697375450. Returns an error if id is not positive.
func WithTargetGroup(id int64) Option {
	return func(cfg *relayConfig) error {
		if id <= 0 {
			return fmt.Errorf("target group id must be positive, got %d", id)
		}
		cfg.targetGroup = id
		return nil
	}
}

// WithReconnectDelay sets the pause between a failed upstream session and
// the next dial. Defaults to 3 seconds.
//
// Returns an error if the duration is zero or negative.
func WithReconnectDelay(d time.Duration) Option {
	return func(cfg *relayConfig) error {
		if d <= 0 {
			return errors.New("reconnect delay must be positive")
		}
		cfg.reconnectDelay = d
		return nil
	}
}

// WithHandshakeTimeout bounds the upstream websocket opening handshake.
// Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(cfg *relayConfig) error {
		if d <= 0 {
			return errors.New("handshake timeout must be positive")
		}
		cfg.handshakeTimeout = d
		return nil
	}
}

// WithBroadcastInterval sets how often the current record is checked for
// changes and pushed. Defaults to 500 milliseconds.
//
// Returns an error if the duration is zero or negative.
func WithBroadcastInterval(d time.Duration) Option {
	return func(cfg *relayConfig) error {
		if d <= 0 {
			return errors.New("broadcast interval must be positive")
		}
		cfg.broadcastInterval = d
		return nil
	}
}

// WithPullAddr sets the listen address of the pull listener.
//
// Defaults to ":2334". Both listeners serve every route.
func WithPullAddr(addr string) Option {
	return func(cfg *relayConfig) error {
		if addr == "" {
			return errors.New("pull address cannot be empty")
		}
		cfg.pullAddr = addr
		return nil
	}
}

// WithPushAddr sets the listen address of the push listener.
//
// Defaults to ":233". Binding ports below 1024 usually needs privileges.
func WithPushAddr(addr string) Option {
	return func(cfg *relayConfig) error {
		if addr == "" {
			return errors.New("push address cannot be empty")
		}
		cfg.pushAddr = addr
		return nil
	}
}

// WithTitle sets the title shown by the overlay page. Defaults to "Danmu".
func WithTitle(title string) Option {
	return func(cfg *relayConfig) error {
		cfg.title = title
		return nil
	}
}

// WithLogger sets a custom logger for the relay.
//
// If not provided, [slog.Default] is used. Returns an error if logger is nil.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
//	relay, err := danmurelay.New(danmurelay.WithLogger(logger))
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *relayConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithErrorHook registers a function that receives every non-fatal [Error]:
// upstream connect failures, unparseable or filtered frames and failed
// subscriber writes.
//
// Hooks run synchronously on the goroutine that observed the error and must
// not block. Can be called multiple times. Returns an error if fn is nil.
func WithErrorHook(fn func(*Error)) Option {
	return func(cfg *relayConfig) error {
		if fn == nil {
			return errors.New("error hook cannot be nil")
		}
		cfg.errorHooks = append(cfg.errorHooks, fn)
		return nil
	}
}

// WithPushCallback registers a function invoked with every pushed [Record].
//
// Callbacks run on the broadcaster goroutine after the record has been sent
// to subscribers. A panicking callback is recovered and logged; it does not
// stop the relay. Can be called multiple times. Returns an error if fn is nil.
//
// Example:
//
//	relay, err := danmurelay.New(
//	    danmurelay.WithPushCallback(func(r danmurelay.Record) {
//	        log.Printf("pushed %q", r.Text)
//	    }),
//	)
func WithPushCallback(fn func(Record)) Option {
	return func(cfg *relayConfig) error {
		if fn == nil {
			return errors.New("push callback cannot be nil")
		}
		cfg.pushCallbacks = append(cfg.pushCallbacks, fn)
		return nil
	}
}

// WithMirror registers a function that republishes every pushed [Record]
// elsewhere, such as a message bus.
//
// Mirrors run like push callbacks, after the callbacks registered with
// [WithPushCallback]. A returned error is logged and reported to the error
// hooks as a [KindWrite] error with op "mirror". Can be called multiple
// times. Returns an error if fn is nil.
func WithMirror(fn func(Record) error) Option {
	return func(cfg *relayConfig) error {
		if fn == nil {
			return errors.New("mirror cannot be nil")
		}
		cfg.mirrors = append(cfg.mirrors, fn)
		return nil
	}
}
