// Package fault classifies the non-fatal failures the relay observes.
//
// None of these errors stop the relay. They are reported through a [Hook] so
// that logging, metrics and embedding programs can observe them.
package fault

import "fmt"

// Kind enumerates the failure classes of the relay.
type Kind int

const (
	// Connect covers upstream dial failures, read failures and remote closes.
	Connect Kind = iota + 1

	// Parse means an upstream frame could not be decoded as an event object.
	Parse

	// FilterMiss means a frame decoded but was not a message for the target group.
	FilterMiss

	// Write means a push to a single subscriber (or the mirror) failed.
	Write
)

// String returns the lowercase label used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case Connect:
		return "connect"
	case Parse:
		return "parse"
	case FilterMiss:
		return "filter_miss"
	case Write:
		return "write"
	default:
		return "unknown"
	}
}

// Error is a classified relay failure.
type Error struct {
	Kind Kind

	// Op names what was being attempted, e.g. "dial", "read", "push".
	Op string

	// Err is the underlying cause. May be nil for FilterMiss.
	Err error
}

// New returns an *Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Hook receives every classified failure. Hooks must not block.
type Hook func(*Error)

// Report calls h with e when both are non-nil.
func (h Hook) Report(e *Error) {
	if h == nil || e == nil {
		return
	}
	h(e)
}

// Chain returns a Hook that calls each non-nil hook in order.
func Chain(hooks ...Hook) Hook {
	var live []Hook
	for _, h := range hooks {
		if h != nil {
			live = append(live, h)
		}
	}
	return func(e *Error) {
		for _, h := range live {
			h(e)
		}
	}
}
