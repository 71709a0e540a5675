// Package danmurelay relays live group chat ("danmu") from a OneBot-style
// websocket event feed to stream overlays.
//
// The relay keeps the latest upstream frame, derives a small record from it
// and serves that record two ways: as JSON on request (pull) and over
// websocket or Server-Sent Events whenever it changes (push). Only text
// messages from one configured group produce content.
//
// # Quick Start
//
//	relay, _ := danmurelay.New(
//	    danmurelay.WithUpstreamURL("ws://127.0.0.1:23333/"),
//	    danmurelay.WithTargetGroup(697375450),
//	)
//
//	// Set up graceful shutdown on SIGINT/SIGTERM
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	relay.Start(ctx) // blocks until context is cancelled
//
// # Records
//
// A [Record] is {"text":"...","time":...}. Text is the concatenation of the
// message's text segments, in order. Frames for other groups or other event
// types give an empty text; frames that are not valid JSON give their raw
// text. The record is recomputed from the latest frame on every read, so the
// pull endpoint always reflects the newest frame, even a filtered one.
//
// # Endpoints
//
// Both listeners (":2334" and ":233" by default) serve the same routes:
//
//   - GET /            current record as JSON (also /api/record)
//   - GET /ws          websocket push: current record on connect, then changes
//   - GET /api/sse     the same pushes as Server-Sent Events
//   - GET /overlay     embedded OBS overlay page
//   - GET /healthz     upstream and subscriber state
//   - GET /metrics     Prometheus metrics
//
// A record is pushed only when its text is non-empty and it differs from the
// previous push; changes are checked every broadcast interval.
//
// # Errors
//
// Nothing after startup is fatal. Upstream failures trigger a reconnect
// after a fixed delay, and broken subscribers are dropped. Every such event
// is reported as an [*Error] to hooks registered with [WithErrorHook].
//
// # Architecture
//
//   - internal/feed: upstream websocket client with reconnect loop
//   - internal/extract: frame to record extraction
//   - internal/store: latest-frame cell and subscriber registry
//   - internal/broadcast: change detection and push fan-out
//   - internal/server: HTTP routes and listeners
//   - internal/metrics: Prometheus collectors
//   - internal/mirror: optional NATS publisher, registered by the CLI with WithMirror
//   - dashboard: embedded overlay page
package danmurelay
