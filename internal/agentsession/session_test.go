package agentsession

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeFakeSubprocess writes script to an executable file under t.TempDir
// and returns a Command argv invoking it. A script file keeps the
// shell syntax out of the subprocess argv itself, so it passes
// internal/exec's argument-safety validation the way a real agent
// binary's own flags would -- only process.start's own "sh <path>"
// invocation needs validating, not the script body.
func writeFakeSubprocess(t *testing.T, script string) []string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-subprocess.sh")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return []string{"sh", path}
}

// fakeSubprocessScript ignores its stdin and emits a canned assistant
// reply followed by a successful result for the session's first query
// id ("q-1"), deterministic since Session.Query's id counter starts at
// 1. Grounded on the donor's internal/tools/sandbox/executor_test.go,
// which spawns real subprocesses rather than mocking os/exec.
const fakeSubprocessScript = `
printf '{"type":"assistant","session_id":"q-1","message":{"content":"hi there"}}\n'
printf '{"type":"result","subtype":"success","session_id":"q-1","is_error":false,"num_turns":1}\n'
cat >/dev/null
`

func newFakeSession(t *testing.T) *Session {
	t.Helper()
	s := New(Config{
		Process: ProcessConfig{
			Command: writeFakeSubprocess(t, fakeSubprocessScript),
		},
		InterruptTimeout: 200 * time.Millisecond,
		CloseTimeout:     200 * time.Millisecond,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return s
}

func TestSession_QueryReceivesAssistantAndResult(t *testing.T) {
	s := newFakeSession(t)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	}()

	stream, err := s.QueryStr(context.Background(), "hello")
	if err != nil {
		t.Fatalf("QueryStr: %v", err)
	}

	var sawAssistant, sawResult bool
	deadline := time.After(3 * time.Second)
	for i := 0; i < 2; i++ {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for envelopes")
		default:
		}
		if !stream.Next() {
			break
		}
		switch stream.Envelope().(type) {
		case AssistantEnvelope:
			sawAssistant = true
		case ResultEnvelope:
			sawResult = true
		}
	}

	if !sawAssistant {
		t.Errorf("expected an AssistantEnvelope")
	}
	if !sawResult {
		t.Errorf("expected a ResultEnvelope")
	}
}

func TestSession_HistoryRecordsOutgoingQuery(t *testing.T) {
	s := newFakeSession(t)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	}()

	if _, err := s.QueryStr(context.Background(), "hello"); err != nil {
		t.Fatalf("QueryStr: %v", err)
	}

	history := s.History()
	if len(history) != 1 {
		t.Fatalf("len(History()) = %d, want 1", len(history))
	}
	if history[0].Content[0].Text != "hello" {
		t.Errorf("History()[0].Content[0].Text = %q, want %q", history[0].Content[0].Text, "hello")
	}
}

const interruptedSubprocessScript = `
sleep 0.1
printf '{"type":"result","subtype":"interrupted","session_id":"q-1","is_error":false,"num_turns":1}\n'
cat >/dev/null
`

func TestSession_InterruptWaitsForInterruptedResult(t *testing.T) {
	s := New(Config{
		Process: ProcessConfig{
			Command: writeFakeSubprocess(t, interruptedSubprocessScript),
		},
		InterruptTimeout: 2 * time.Second,
		CloseTimeout:     200 * time.Millisecond,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	}()

	if _, err := s.QueryStr(context.Background(), "hello"); err != nil {
		t.Fatalf("QueryStr: %v", err)
	}

	if err := s.Interrupt(context.Background(), "q-1"); err != nil {
		t.Fatalf("Interrupt: %v", err)
	}
}

const successSubprocessScript = `
printf '{"type":"result","subtype":"success","session_id":"q-1","is_error":false,"num_turns":1}\n'
cat >/dev/null
`

func TestSession_InterruptOnAlreadyTerminalQuerySucceeds(t *testing.T) {
	s := New(Config{
		Process: ProcessConfig{
			Command: writeFakeSubprocess(t, successSubprocessScript),
		},
		InterruptTimeout: 2 * time.Second,
		CloseTimeout:     200 * time.Millisecond,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	}()

	if _, err := s.QueryStr(context.Background(), "hello"); err != nil {
		t.Fatalf("QueryStr: %v", err)
	}

	// Give the result a moment to land, so the query is already
	// terminal and dropped by the time Interrupt is called: the bound
	// is trivially satisfied and Interrupt must not error.
	time.Sleep(100 * time.Millisecond)

	if err := s.Interrupt(context.Background(), "q-1"); err != nil {
		t.Fatalf("Interrupt on an already-terminal query: %v", err)
	}
}

func TestSession_QueryOnClosedSessionFails(t *testing.T) {
	s := newFakeSession(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := s.QueryStr(context.Background(), "hello"); err == nil {
		t.Fatalf("expected Query on a closed session to fail")
	}
}
