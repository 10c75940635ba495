package sse

import (
	"strings"
	"testing"

	"github.com/haasonsaas/claudekit/internal/apierror"
)

func TestReader_TypedSequence(t *testing.T) {
	stream := "" +
		"event: message_start\n" +
		"data: {\"message\":{\"id\":\"msg_1\"}}\n\n" +
		"event: content_block_start\n" +
		"data: {\"index\":0,\"content_block\":{\"type\":\"text\",\"text\":\"\"}}\n\n" +
		"event: content_block_delta\n" +
		"data: {\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"Hi\"}}\n\n" +
		"event: content_block_stop\n" +
		"data: {\"index\":0}\n\n" +
		"event: message_delta\n" +
		"data: {\"delta\":{\"stop_reason\":\"end_turn\"},\"usage\":{\"output_tokens\":1}}\n\n" +
		"event: message_stop\n" +
		"data: {}\n\n"

	r := NewReader(strings.NewReader(stream), 0)
	var types []Type
	for r.Next() {
		types = append(types, r.Event().Type)
	}
	if r.Err() != nil {
		t.Fatalf("unexpected error: %v", r.Err())
	}
	want := []Type{TypeMessageStart, TypeContentBlockStart, TypeContentBlockDelta, TypeContentBlockStop, TypeMessageDelta, TypeMessageStop}
	if len(types) != len(want) {
		t.Fatalf("got %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, types[i], want[i])
		}
	}
}

func TestReader_UnknownEventDoesNotTerminate(t *testing.T) {
	stream := "event: some_future_event\ndata: {\"x\":1}\n\n" +
		"event: message_stop\ndata: {}\n\n"

	r := NewReader(strings.NewReader(stream), 0)
	var types []Type
	for r.Next() {
		types = append(types, r.Event().Type)
	}
	if r.Err() != nil {
		t.Fatalf("unexpected error: %v", r.Err())
	}
	if len(types) != 2 || types[0] != TypeUnknown || types[1] != TypeMessageStop {
		t.Fatalf("unexpected sequence: %v", types)
	}
}

func TestReader_MultilineDataConcatenates(t *testing.T) {
	stream := "event: ping\ndata: {\"a\":\ndata: 1}\n\n" +
		"event: message_stop\ndata: {}\n\n"

	r := NewReader(strings.NewReader(stream), 0)
	if !r.Next() {
		t.Fatalf("expected first event, err=%v", r.Err())
	}
	if got, want := string(r.Event().Data), "{\"a\":\n1}"; got != want {
		t.Errorf("Data = %q, want %q", got, want)
	}
}

func TestReader_MalformedDataIsStreamingError(t *testing.T) {
	stream := "event: ping\ndata: not json\n\n"

	r := NewReader(strings.NewReader(stream), 0)
	if r.Next() {
		t.Fatal("expected Next to fail on malformed data")
	}
	if !apierror.Is(r.Err(), apierror.KindStreaming) {
		t.Errorf("expected KindStreaming, got %v", r.Err())
	}
}

func TestReader_EndOfStreamWithoutMessageStopIsStreamingError(t *testing.T) {
	stream := "event: ping\ndata: {}\n\n"

	r := NewReader(strings.NewReader(stream), 0)
	for r.Next() {
	}
	if !apierror.Is(r.Err(), apierror.KindStreaming) {
		t.Errorf("expected KindStreaming at truncated end of stream, got %v", r.Err())
	}
}

func TestReader_LineLengthBound(t *testing.T) {
	huge := strings.Repeat("x", 100)
	stream := "event: ping\ndata: " + huge + "\n\n"

	r := NewReader(strings.NewReader(stream), 10)
	if r.Next() {
		t.Fatal("expected Next to fail once the line exceeds the bound")
	}
	if !apierror.Is(r.Err(), apierror.KindStreaming) {
		t.Errorf("expected KindStreaming, got %v", r.Err())
	}
}
