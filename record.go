package danmurelay

import (
	"github.com/jpalmerr/danmurelay/internal/extract"
	"github.com/jpalmerr/danmurelay/internal/fault"
)

// Record is the value served by the pull endpoint and pushed to subscribers.
//
// It serializes as {"text":"...","time":...}. Text is empty when no frame
// has arrived or the latest frame was filtered out.
type Record = extract.Record

// Error describes a non-fatal failure observed by the relay. Its Kind says
// which part of the pipeline failed; Op narrows it down (e.g. "dial", "read",
// "group_id", "push").
type Error = fault.Error

// ErrorKind classifies an [Error].
type ErrorKind = fault.Kind

// Error kinds reported to [WithErrorHook].
const (
	// KindConnect is an upstream dial or read failure. The relay reconnects.
	KindConnect ErrorKind = fault.Connect

	// KindParse is a frame that is not valid JSON of the expected shape.
	// The record falls back to the raw frame text.
	KindParse ErrorKind = fault.Parse

	// KindFilterMiss is a well-formed frame that is not a message for the
	// target group. The record text is empty.
	KindFilterMiss ErrorKind = fault.FilterMiss

	// KindWrite is a failed write to a push subscriber or to the NATS mirror.
	KindWrite ErrorKind = fault.Write
)

// ExtractRecord derives the record for a raw upstream frame and target group.
// It is the same pure function the relay applies to its latest frame.
func ExtractRecord(raw []byte, groupID int64) Record {
	return extract.Extractor{GroupID: groupID}.Extract(raw, true)
}
