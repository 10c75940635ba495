// Package sse implements the pull-based SSE event reader described in
// spec.md §4.6, generalized from internal/agent/providers/anthropic.go's
// ParseSSEStream handler-callback scanner into a typed iterator.
package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/haasonsaas/claudekit/internal/apierror"
)

// Type is the discriminator on the typed Anthropic message-stream events.
type Type string

const (
	TypeMessageStart      Type = "message_start"
	TypeContentBlockStart Type = "content_block_start"
	TypeContentBlockDelta Type = "content_block_delta"
	TypeContentBlockStop  Type = "content_block_stop"
	TypeMessageDelta      Type = "message_delta"
	TypeMessageStop       Type = "message_stop"
	TypePing              Type = "ping"
	TypeUnknown           Type = "unknown"
)

// Event is one parsed SSE frame. Raw holds the wire-level event name
// (useful when Type is TypeUnknown); Data is the still-unparsed JSON
// payload from the data: field(s).
type Event struct {
	Type Type
	Raw  string
	Data json.RawMessage
}

// DefaultMaxLineBytes bounds a single field line. A data: line beyond
// this is a streaming error rather than a silent truncation.
const DefaultMaxLineBytes = 1 << 20 // 1 MiB

// Reader pulls typed Events off a framed byte stream. It is not safe for
// concurrent use and is single-pass: once Next returns false, the Reader
// is exhausted.
type Reader struct {
	br           *bufio.Reader
	maxLineBytes int
	cur          Event
	err          error
	done         bool
	sawStop      bool
}

// NewReader wraps r. maxLineBytes <= 0 selects DefaultMaxLineBytes.
func NewReader(r io.Reader, maxLineBytes int) *Reader {
	if maxLineBytes <= 0 {
		maxLineBytes = DefaultMaxLineBytes
	}
	return &Reader{br: bufio.NewReader(r), maxLineBytes: maxLineBytes}
}

// Next advances to the next event, returning false at end-of-stream or on
// error (distinguish via Err). End-of-stream without a prior message_stop
// event surfaces as a KindStreaming error on the final Next call.
func (r *Reader) Next() bool {
	if r.done {
		return false
	}

	var eventName string
	var dataLines []string
	sawAnyLine := false

	for {
		line, readErr := r.readLine()
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				if sawAnyLine && (eventName != "" || len(dataLines) > 0) {
					break // flush the trailing event below
				}
				r.done = true
				if !r.sawStop {
					r.err = apierror.New(apierror.KindStreaming, "stream ended before message_stop")
				}
				return false
			}
			r.done = true
			r.err = readErr
			return false
		}

		if line == "" {
			if !sawAnyLine {
				continue // blank separator between events; skip
			}
			break // end of this event's field block
		}
		sawAnyLine = true

		switch {
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// unknown field (id:, retry:, comments) — ignored per spec.md §4.6.
		}
	}

	data := []byte(strings.Join(dataLines, "\n"))
	if len(dataLines) > 0 && !json.Valid(data) {
		r.done = true
		r.err = apierror.New(apierror.KindStreaming, "malformed data: field is not valid JSON")
		return false
	}

	typ := classify(eventName)
	if typ == TypeMessageStop {
		r.sawStop = true
	}
	r.cur = Event{Type: typ, Raw: eventName, Data: json.RawMessage(data)}
	return true
}

// Event returns the event produced by the most recent successful Next call.
func (r *Reader) Event() Event { return r.cur }

// Err returns the terminal error, if Next stopped early because of one.
func (r *Reader) Err() error { return r.err }

func classify(name string) Type {
	switch Type(name) {
	case TypeMessageStart, TypeContentBlockStart, TypeContentBlockDelta,
		TypeContentBlockStop, TypeMessageDelta, TypeMessageStop, TypePing:
		return Type(name)
	default:
		return TypeUnknown
	}
}

// readLine reads one line, stripped of its trailing newline, enforcing
// maxLineBytes. Returns io.EOF once the underlying reader is exhausted
// and no more bytes remain.
func (r *Reader) readLine() (string, error) {
	var buf bytes.Buffer
	for {
		chunk, err := r.br.ReadSlice('\n')
		buf.Write(chunk)
		if buf.Len() > r.maxLineBytes {
			return "", apierror.New(apierror.KindStreaming, "SSE line exceeds maximum length")
		}
		if err == nil {
			line := buf.String()
			return strings.TrimRight(line, "\r\n"), nil
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue // keep accumulating until '\n' or the bound trips
		}
		if errors.Is(err, io.EOF) {
			if buf.Len() == 0 {
				return "", io.EOF
			}
			return strings.TrimRight(buf.String(), "\r\n"), nil
		}
		return "", apierror.Wrap(apierror.KindConnection, err)
	}
}

// MessageStartData, ContentBlockStartData, etc. are the typed payloads
// callers decode Event.Data into once they've switched on Event.Type.

type MessageStartData struct {
	Message json.RawMessage `json:"message"`
}

type ContentBlockStartData struct {
	Index        int             `json:"index"`
	ContentBlock json.RawMessage `json:"content_block"`
}

type ContentBlockDeltaData struct {
	Index int             `json:"index"`
	Delta json.RawMessage `json:"delta"`
}

type TextDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type InputJSONDelta struct {
	Type        string `json:"type"`
	PartialJSON string `json:"partial_json"`
}

type ContentBlockStopData struct {
	Index int `json:"index"`
}

type MessageDeltaData struct {
	Delta struct {
		StopReason   string `json:"stop_reason"`
		StopSequence string `json:"stop_sequence"`
	} `json:"delta"`
	Usage json.RawMessage `json:"usage"`
}
