package agentsession

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haasonsaas/claudekit/internal/apierror"
	"github.com/haasonsaas/claudekit/internal/retry"
	"github.com/haasonsaas/claudekit/pkg/models"
)

// State is the session's connection lifecycle state, per spec.md §4.8's
// reconnect/close narrative.
type State string

const (
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateClosed       State = "closed"
)

// DefaultInterruptTimeout and DefaultCloseTimeout are spec.md §4.8's
// stated defaults.
const (
	DefaultInterruptTimeout = 5 * time.Second
	DefaultCloseTimeout     = 10 * time.Second
)

// Config configures a Session.
type Config struct {
	Process          ProcessConfig
	Evaluator        *Evaluator
	Retry            retry.Config
	InterruptTimeout time.Duration
	CloseTimeout     time.Duration

	// OnReconnectFailure is called (if set) each time a reconnect attempt
	// fails, mainly for logging/observability hooks.
	OnReconnectFailure func(attempt int, err error)
}

// Session owns one subprocess and presents the request/response query
// API of spec.md §4.8. Conversation history is guarded by a single
// mutex (historyMu); appends are the only write operation, per §5.
type Session struct {
	cfg Config
	log func(string, ...any)

	proc *process

	stateMu sync.RWMutex
	state   State

	historyMu sync.Mutex
	history   []models.RequestMessage

	queriesMu sync.Mutex
	queries   map[string]*queryState

	controlMu  sync.Mutex
	pending    map[string]chan ControlResponse
	controlSeq atomic.Int64
	querySeq   atomic.Int64

	writeMu sync.Mutex

	stop chan struct{}
	wg   sync.WaitGroup
}

// queryState tracks one outstanding query. done is closed once the
// query's stream has reached a terminal envelope (a ResultEnvelope or a
// delivered error), so Interrupt can wait for completion without
// stealing envelopes from whoever owns the QueryStream's ch.
type queryState struct {
	ch     chan any
	closed atomic.Bool
	done   chan struct{}
}

// New constructs a Session without starting its subprocess. Call Start
// to spawn it.
func New(cfg Config) *Session {
	if cfg.InterruptTimeout <= 0 {
		cfg.InterruptTimeout = DefaultInterruptTimeout
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = DefaultCloseTimeout
	}
	if cfg.Evaluator == nil {
		cfg.Evaluator = NewEvaluator(ModeDefault, nil, nil, nil)
	}
	return &Session{
		cfg:     cfg,
		proc:    newProcess(cfg.Process),
		state:   StateDisconnected,
		queries: make(map[string]*queryState),
		pending: make(map[string]chan ControlResponse),
		stop:    make(chan struct{}),
	}
}

// Start spawns the subprocess, performs the initialize handshake, and
// launches the read pump.
func (s *Session) Start(ctx context.Context) error {
	if err := s.proc.start(ctx); err != nil {
		return err
	}
	s.setState(StateConnected)
	s.wg.Add(1)
	go s.readPump()
	return nil
}

func (s *Session) setState(st State) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

// State reports the session's current lifecycle state.
func (s *Session) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// QueryStream yields every assistant, stream_event, and terminal result
// envelope addressed to one query, in wire order -- a pull iterator in
// the style of resources.MessageStream (Next/Event/Err/Close).
type QueryStream struct {
	ch  chan any
	cur any
	err error
}

// Next advances to the next envelope, returning false once the query's
// terminal result has been delivered or the channel is closed early by
// a reconnect.
func (q *QueryStream) Next() bool {
	v, ok := <-q.ch
	if !ok {
		return false
	}
	if errVal, isErr := v.(error); isErr {
		q.err = errVal
		return false
	}
	q.cur = v
	if _, isResult := v.(ResultEnvelope); isResult {
		return true
	}
	return true
}

// Envelope returns the envelope most recently yielded by Next: one of
// AssistantEnvelope, StreamEventEnvelope, or ResultEnvelope.
func (q *QueryStream) Envelope() any { return q.cur }

// Err returns the terminal error, if Next stopped because of one.
func (q *QueryStream) Err() error { return q.err }

// Query writes a user envelope built from content and returns a stream
// of the reply envelopes addressed to it, per spec.md §4.8's
// `session.query(messages, …) → QueryStream`.
func (s *Session) Query(ctx context.Context, content []models.ContentBlock, model string) (*QueryStream, error) {
	if s.State() == StateClosed {
		return nil, apierror.New(apierror.KindConnection, "agentsession: session is closed")
	}

	queryID := fmt.Sprintf("q-%d", s.querySeq.Add(1))
	contentJSON, err := json.Marshal(content)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindInvalidRequest, err)
	}

	qs := &queryState{ch: make(chan any, 16), done: make(chan struct{})}
	s.queriesMu.Lock()
	s.queries[queryID] = qs
	s.queriesMu.Unlock()

	env := UserEnvelope{
		Type:      EnvelopeUser,
		SessionID: queryID,
		Message:   EnvelopeMessage{Content: contentJSON, Model: model},
	}
	if err := s.writeLine(env); err != nil {
		s.dropQuery(queryID)
		return nil, err
	}

	s.historyMu.Lock()
	s.history = append(s.history, models.RequestMessage{Role: models.RoleUser, Content: content})
	s.historyMu.Unlock()

	return &QueryStream{ch: qs.ch}, nil
}

// QueryStr is sugar for Query with a single text block, per spec.md
// §4.8's `session.query_str(s)`.
func (s *Session) QueryStr(ctx context.Context, text string) (*QueryStream, error) {
	return s.Query(ctx, []models.ContentBlock{models.NewTextBlock(text)}, "")
}

func (s *Session) dropQuery(queryID string) {
	s.queriesMu.Lock()
	qs, ok := s.queries[queryID]
	if ok {
		delete(s.queries, queryID)
	}
	s.queriesMu.Unlock()
	if ok && qs.closed.CompareAndSwap(false, true) {
		close(qs.ch)
		close(qs.done)
	}
}

func (s *Session) writeLine(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.proc.writeLine(v)
}

// Interrupt sends a control-channel cancel for the given query and
// waits up to InterruptTimeout for its stream to reach a terminal
// envelope, per spec.md §4.8: "the current query's stream must
// terminate ... within a bounded time." It waits on the query's
// completion signal rather than consuming its envelope channel, since
// that channel belongs to whoever holds the query's QueryStream.
func (s *Session) Interrupt(ctx context.Context, queryID string) error {
	s.queriesMu.Lock()
	qs, ok := s.queries[queryID]
	s.queriesMu.Unlock()
	if !ok {
		// Already terminal; the bound is trivially satisfied.
		return nil
	}

	req := ControlCancelRequest{Type: EnvelopeControlCncl, RequestID: queryID}
	if err := s.writeLine(req); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.InterruptTimeout)
	defer cancel()

	select {
	case <-qs.done:
		return nil
	case <-ctx.Done():
		return apierror.New(apierror.KindTimeout, "agentsession: interrupt did not complete in time")
	}
}

// Close sends the `end` control request, awaits a terminal
// acknowledgement up to CloseTimeout, then escalates to SIGTERM and
// (after a grace period) SIGKILL, per spec.md §4.8.
func (s *Session) Close(ctx context.Context) error {
	if s.State() == StateClosed {
		return nil
	}
	s.setState(StateClosed)

	endID := fmt.Sprintf("end-%d", s.controlSeq.Add(1))
	respCh := make(chan ControlResponse, 1)
	s.controlMu.Lock()
	s.pending[endID] = respCh
	s.controlMu.Unlock()

	_ = s.writeLine(ControlRequest{Type: EnvelopeControlReq, RequestID: endID, Subtype: "end"})

	deadline := time.NewTimer(s.cfg.CloseTimeout)
	defer deadline.Stop()
	select {
	case <-respCh:
	case <-deadline.C:
	case <-ctx.Done():
	}

	_ = s.proc.terminate()

	killTimer := time.NewTimer(s.cfg.CloseTimeout)
	defer killTimer.Stop()
	done := make(chan struct{})
	go func() { _ = s.proc.wait(); close(done) }()
	select {
	case <-done:
	case <-killTimer.C:
		_ = s.proc.kill()
	}

	close(s.stop)
	s.queriesMu.Lock()
	ids := make([]string, 0, len(s.queries))
	for id := range s.queries {
		ids = append(ids, id)
	}
	s.queriesMu.Unlock()
	for _, id := range ids {
		s.deliver(id, apierror.New(apierror.KindConnection, "agentsession: session closed"))
		s.dropQuery(id)
	}

	s.wg.Wait()
	return nil
}

// History returns a snapshot of the locally preserved conversation
// history. Per spec.md §4.8, history is preserved locally across
// reconnects but never replayed to the subprocess.
func (s *Session) History() []models.RequestMessage {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	return append([]models.RequestMessage(nil), s.history...)
}

func (s *Session) deliver(queryID string, v any) {
	s.queriesMu.Lock()
	qs, ok := s.queries[queryID]
	s.queriesMu.Unlock()
	if !ok {
		return
	}
	select {
	case qs.ch <- v:
	default:
	}
}

// readPump parses incoming lines and fans them out to queries, the
// control-response waiters, or the permission evaluator, per spec.md
// §4.8's "read pump that parses frames and fans them out." Grounded on
// internal/mcp/transport_stdio.go's readLoop/processLine split.
func (s *Session) readPump() {
	defer s.wg.Done()

	for {
		line, err := s.proc.readLine()
		if err != nil {
			s.handleTransportLoss(err)
			return
		}
		if line == "" {
			continue
		}
		s.processLine(line)
	}
}

func (s *Session) processLine(line string) {
	var head rawEnvelope
	if err := json.Unmarshal([]byte(line), &head); err != nil {
		return
	}

	switch head.Type {
	case EnvelopeAssistant:
		var env AssistantEnvelope
		if json.Unmarshal([]byte(line), &env) == nil {
			s.deliver(env.SessionID, env)
		}
	case EnvelopeResult:
		var env ResultEnvelope
		if json.Unmarshal([]byte(line), &env) == nil {
			s.deliver(env.SessionID, env)
			s.dropQuery(env.SessionID)
		}
	case EnvelopeStreamEvent:
		var env StreamEventEnvelope
		if json.Unmarshal([]byte(line), &env) == nil {
			s.deliver(env.SessionID, env)
		}
	case EnvelopeControlResp:
		var env ControlResponse
		if json.Unmarshal([]byte(line), &env) == nil {
			s.controlMu.Lock()
			ch, ok := s.pending[env.RequestID]
			if ok {
				delete(s.pending, env.RequestID)
			}
			s.controlMu.Unlock()
			if ok {
				ch <- env
			}
		}
	case EnvelopeControlReq:
		var env ControlRequest
		if json.Unmarshal([]byte(line), &env) == nil && env.Subtype == "can_use_tool" {
			go s.handlePermissionCheck(env)
		}
	case EnvelopeSystem:
		// Diagnostic/lifecycle signals are informational; no dispatch
		// target beyond logging.
	}
}

func (s *Session) handlePermissionCheck(env ControlRequest) {
	var req PermissionCheckRequest
	if err := json.Unmarshal(env.Request, &req); err != nil {
		return
	}
	resp, err := s.cfg.Evaluator.Check(context.Background(), req)
	if err != nil {
		resp = PermissionCheckResponse{Allow: false, Reason: err.Error()}
	}
	respJSON, _ := json.Marshal(resp)
	_ = s.writeLine(ControlResponse{Type: EnvelopeControlResp, RequestID: env.RequestID, Response: respJSON})
}

// handleTransportLoss implements spec.md §4.8's reconnect path: the
// session transitions to disconnected, sleeps per the retry policy,
// and re-spawns the subprocess with identical configuration.
// Outstanding queries each receive a single `connection` error and are
// dropped; the second consecutive failure within the retry window
// transitions to closed.
func (s *Session) handleTransportLoss(cause error) {
	if s.State() == StateClosed {
		return
	}
	s.setState(StateDisconnected)

	s.queriesMu.Lock()
	ids := make([]string, 0, len(s.queries))
	for id := range s.queries {
		ids = append(ids, id)
	}
	s.queriesMu.Unlock()
	for _, id := range ids {
		s.deliver(id, apierror.Wrap(apierror.KindConnection, cause))
		s.dropQuery(id)
	}

	cfg := s.cfg.Retry
	if cfg.MaxAttempts <= 0 {
		cfg = retry.DefaultConfig()
	}

	result := retry.Do(context.Background(), cfg, func() error {
		return s.proc.start(context.Background())
	})
	if result.Err != nil {
		if s.cfg.OnReconnectFailure != nil {
			s.cfg.OnReconnectFailure(result.Attempts, result.Err)
		}
		s.setState(StateClosed)
		return
	}

	s.setState(StateConnected)
	s.wg.Add(1)
	go s.readPump()

	initID := fmt.Sprintf("init-%d", s.controlSeq.Add(1))
	_ = s.writeLine(ControlRequest{Type: EnvelopeControlReq, RequestID: initID, Subtype: "initialize"})
}
