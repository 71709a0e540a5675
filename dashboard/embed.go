// Package dashboard provides the embedded overlay page for danmurelay.
//
// The page is meant to be added to OBS as a browser source. It subscribes to
// the relay's websocket push endpoint and renders the latest chat line,
// reconnecting when the relay restarts. It is embedded at compile time so the
// relay ships as a single binary.
//
// The server package serves it at "/overlay". Users of the danmurelay
// library should not need to interact with this package directly.
package dashboard

import "embed"

// Assets is an embedded filesystem containing the overlay page.
//
// The filesystem structure is:
//
//	assets/
//	  overlay.html  - Overlay page with inline CSS and JavaScript
//
//go:embed assets/*
var Assets embed.FS
