// Package extract turns raw upstream frames into the record the relay serves.
//
// Frames are OneBot-style event objects:
//
//	{"post_type":"message","message_type":"group","group_id":42,"time":1000,
//	 "message":[{"type":"text","data":{"text":"hi"}}]}
//
// Only group messages for a single configured group carry content; every
// other frame produces an empty record. Extraction never fails: malformed
// frames degrade to their raw text.
package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"strings"

	"github.com/jpalmerr/danmurelay/internal/fault"
)

// Record is the normalized output served by the pull and push endpoints.
type Record struct {
	// Text is the concatenated plain-text segments of the latest matching message.
	Text string `json:"text"`

	// Time is the event's unix timestamp in seconds, or 0 if absent.
	Time int64 `json:"time"`
}

// Marshal encodes the record as compact JSON without HTML escaping, so chat
// text containing <, > or & reaches subscribers verbatim.
func (r Record) Marshal() []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// a struct of a string and an int64 always encodes
	_ = enc.Encode(r)
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
}

var (
	errNotObject   = errors.New("frame is not a JSON object")
	errTrailing    = errors.New("trailing data after JSON value")
	errSegments    = errors.New("message is not an array")
	errSegment     = errors.New("message segment is not an object")
	errSegmentData = errors.New("text segment data is not an object")
	errSegmentText = errors.New("text segment text is not a string")
)

// Extractor maps raw frames to records for one target group.
//
// Extractor is a value type with no hidden state; the same input always
// yields the same record.
type Extractor struct {
	// GroupID is the only group whose messages carry text.
	GroupID int64
}

// Extract returns the record for raw. present is false when no frame has
// been received yet.
func (e Extractor) Extract(raw []byte, present bool) Record {
	rec, _ := e.Inspect(raw, present)
	return rec
}

// Inspect is [Extractor.Extract] that also reports why a frame produced no
// content: a *fault.Error of kind fault.Parse or fault.FilterMiss. The error
// is nil for absent frames and for frames that passed every filter.
func (e Extractor) Inspect(raw []byte, present bool) (Record, error) {
	if !present {
		return Record{}, nil
	}

	obj, err := decodeObject(raw)
	if err != nil {
		return fallback(raw), fault.New(fault.Parse, "decode", err)
	}

	ts := timeField(obj["time"])

	if s, _ := obj["post_type"].(string); s != "message" {
		return Record{Time: ts}, fault.New(fault.FilterMiss, "post_type", nil)
	}
	if s, _ := obj["message_type"].(string); s != "group" {
		return Record{Time: ts}, fault.New(fault.FilterMiss, "message_type", nil)
	}
	if !numberEquals(obj["group_id"], e.GroupID) {
		return Record{Time: ts}, fault.New(fault.FilterMiss, "group_id", nil)
	}

	// a missing message list yields ""
	var text string
	if msg, ok := obj["message"]; ok {
		if text, err = joinText(msg); err != nil {
			return fallback(raw), fault.New(fault.Parse, "message", err)
		}
	}

	return Record{Text: text, Time: ts}, nil
}

func fallback(raw []byte) Record {
	return Record{Text: string(raw)}
}

// decodeObject decodes raw as exactly one JSON object, keeping numbers as
// json.Number so large ids compare exactly.
func decodeObject(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errTrailing
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, errNotObject
	}
	return obj, nil
}

// joinText concatenates data.text of every "text" segment in order.
// A present message that is not an array, null included, is malformed.
func joinText(v any) (string, error) {
	segments, ok := v.([]any)
	if !ok {
		return "", errSegments
	}

	var b strings.Builder
	for _, s := range segments {
		seg, ok := s.(map[string]any)
		if !ok {
			return "", errSegment
		}
		if t, _ := seg["type"].(string); t != "text" {
			continue
		}

		rawData, exists := seg["data"]
		if !exists {
			continue
		}
		data, ok := rawData.(map[string]any)
		if !ok {
			return "", errSegmentData
		}

		rawText, exists := data["text"]
		if !exists {
			continue
		}
		text, ok := rawText.(string)
		if !ok {
			return "", errSegmentText
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

// timeField returns v as whole seconds, or 0 when v is missing, not a number
// or not integral.
func timeField(v any) int64 {
	n, ok := v.(json.Number)
	if !ok {
		return 0
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0
	}
	return int64(f)
}

// numberEquals reports whether v is a JSON number numerically equal to want.
func numberEquals(v any, want int64) bool {
	n, ok := v.(json.Number)
	if !ok {
		return false
	}
	if i, err := n.Int64(); err == nil {
		return i == want
	}
	f, err := n.Float64()
	return err == nil && f == float64(want)
}
