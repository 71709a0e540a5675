// Package server provides the relay's HTTP surface.
//
// This package is internal to danmurelay and handles all HTTP concerns:
//
//   - Pull: JSON record at "/" (and "/api/record"), computed fresh per request
//   - Push: websocket at "/ws" and Server-Sent Events at "/api/sse"
//   - Overlay: embedded OBS browser-source page at "/overlay"
//   - Operations: "/healthz" and Prometheus "/metrics"
//
// The same routes are served on two configurable listeners (pull and push).
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests; open push connections are closed
// when the server context ends.
package server
