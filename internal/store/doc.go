// Package store holds the relay's shared in-memory state.
//
// This package is internal to danmurelay and owns the two pieces of state
// that several goroutines touch:
//
//   - [Cell]: the latest raw upstream frame (last write wins, no history)
//   - [Registry]: the set of live push subscribers
//
// Both are safe for concurrent access. Readers always receive copies or
// point-in-time snapshots, never references into live state, so iteration
// never races with mutation.
package store
