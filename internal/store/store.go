package store

import "time"

// Store is the latest-frame cell shared between the upstream client (the
// only writer) and the pull and push paths (readers).
//
// Implementations must be safe for concurrent access and must never expose
// a partially updated frame.
type Store interface {
	// Set replaces the latest frame.
	Set(frame []byte)

	// Latest returns a copy of the latest frame. ok is false until the first
	// frame has been stored.
	Latest() (frame []byte, ok bool)

	// UpdatedAt returns when the latest frame was stored, or the zero time.
	UpdatedAt() time.Time
}

// Subscriber is a live push connection.
//
// Send is called from the broadcaster and from the join path; implementations
// serialize their own writes. After Close, Send must return an error.
type Subscriber interface {
	// ID uniquely identifies the subscriber within a [Registry].
	ID() string

	// Transport names the push mechanism, e.g. "websocket" or "sse".
	Transport() string

	// Send writes one serialized record.
	Send(payload []byte) error

	// Close releases the connection. Safe to call more than once.
	Close() error
}
