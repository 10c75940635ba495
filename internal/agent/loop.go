package agent

import (
	"context"
	"fmt"

	"github.com/haasonsaas/claudekit/internal/observability"
	"github.com/haasonsaas/claudekit/internal/resources"
	"github.com/haasonsaas/claudekit/pkg/models"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxIterations is the turn bound from spec.md §4.7.
const DefaultMaxIterations = 10

// RunnerConfig configures a Runner. A zero value is valid; MaxIterations
// defaults to DefaultMaxIterations.
type RunnerConfig struct {
	// MaxIterations bounds the number of model turns a single Run may
	// take before it gives up with a tool_execution error.
	MaxIterations int

	// Concurrent runs tool invocations within one assistant turn
	// concurrently instead of sequentially. Ordering of the resulting
	// tool_result messages always matches tool_use order regardless,
	// per spec.md §4.7's ordering guarantee.
	Concurrent bool

	// Guard redacts/truncates tool results before they are appended to
	// the conversation or emitted as an event. Zero value is a no-op.
	Guard ToolResultGuard

	// Compactor trims state.Messages before each model turn when the
	// estimated size would exceed its budget. Nil disables compaction.
	Compactor *Compactor

	// OnEvent, if set, receives a RuntimeEvent for every iteration
	// boundary and tool lifecycle transition. It must not block; the
	// runner calls it synchronously on the run's own goroutine.
	OnEvent func(*models.RuntimeEvent)

	// Tracer wraps each iteration and tool invocation in a span when set.
	Tracer *observability.Tracer
}

func (c RunnerConfig) maxIterations() int {
	if c.MaxIterations <= 0 {
		return DefaultMaxIterations
	}
	return c.MaxIterations
}

// Runner implements the tool-execution loop of spec.md §4.7: it calls
// Messages.Create, and for every tool_use block in the response invokes
// the matching registered Tool, appends the results as a user turn, and
// loops — until the model stops asking for tools or MaxIterations is
// reached.
type Runner struct {
	messages *resources.Messages
	registry *ToolRegistry
	config   RunnerConfig
}

// NewRunner builds a Runner over messages (the C5 resource) and registry
// (the C7 tool registry).
func NewRunner(messages *resources.Messages, registry *ToolRegistry, config RunnerConfig) *Runner {
	if registry == nil {
		registry = NewToolRegistry()
	}
	return &Runner{messages: messages, registry: registry, config: config}
}

func (r *Runner) emit(ev *models.RuntimeEvent) {
	if r.config.OnEvent != nil && ev != nil {
		r.config.OnEvent(ev)
	}
}

// Run executes the loop described in spec.md §4.7's pseudocode: it
// copies req, attaches every registered tool's descriptor, and
// alternates model turns with tool execution until the model's response
// contains no tool_use blocks or MaxIterations is exhausted.
//
// On normal completion it returns the terminal assistant Message and the
// full conversation (state.Messages, including the terminal turn) so
// callers can continue the conversation or inspect it. The returned
// conversation always strictly alternates roles starting with the
// caller's first user turn, per spec.md §8.
func (r *Runner) Run(ctx context.Context, req *models.MessageRequest) (*models.Message, []models.RequestMessage, error) {
	state := req.Clone()
	state.Tools = r.registry.DescribeAll()
	maxIter := r.config.maxIterations()

	for iteration := 1; iteration <= maxIter; iteration++ {
		r.emit(models.NewToolEvent(models.EventIterationStart, "", "").WithIteration(iteration))

		if r.config.Compactor != nil {
			state.Messages = r.config.Compactor.Compact(state.Messages)
		}

		iterCtx := ctx
		var span trace.Span
		if r.config.Tracer != nil {
			iterCtx, span = r.config.Tracer.Start(ctx, "agent.model_turn")
		}

		resp, err := r.messages.Create(iterCtx, state)
		if span != nil {
			if err != nil {
				r.config.Tracer.RecordError(span, err)
			}
			span.End()
		}
		if err != nil {
			return nil, nil, &LoopError{Phase: PhaseModelTurn, Iteration: iteration, Cause: err}
		}

		if !resp.HasToolUse() {
			r.emit(models.NewToolEvent(models.EventIterationEnd, "", "").WithIteration(iteration))
			return resp, state.Messages, nil
		}

		assistantContent := append([]models.ContentBlock(nil), resp.Content...)
		state.Messages = append(state.Messages, models.RequestMessage{
			Role:    models.RoleAssistant,
			Content: assistantContent,
		})

		toolUses := make([]models.ContentBlock, 0, len(resp.Content))
		for _, b := range resp.Content {
			if b.Type == models.ContentToolUse {
				toolUses = append(toolUses, b)
			}
		}

		outputs, err := r.executeTools(ctx, toolUses)
		if err != nil {
			return nil, nil, &LoopError{Phase: PhaseExecuteTools, Iteration: iteration, Cause: err}
		}

		state.Messages = append(state.Messages, models.RequestMessage{
			Role:    models.RoleUser,
			Content: outputs,
		})

		r.emit(models.NewToolEvent(models.EventIterationEnd, "", "").WithIteration(iteration))
	}

	return nil, nil, &LoopError{
		Phase:     PhaseExecuteTools,
		Iteration: maxIter,
		Cause:     fmt.Errorf("%w: reached max iterations %d", ErrMaxIterations, maxIter),
	}
}

// RunStreaming behaves identically to Run except that, once the loop is
// about to return the terminal message, it re-issues the same
// conversation with stream=true and returns the event stream instead —
// streaming is confined to the final turn, per spec.md §4.7.
func (r *Runner) RunStreaming(ctx context.Context, req *models.MessageRequest) (*resources.MessageStream, error) {
	state := req.Clone()
	state.Tools = r.registry.DescribeAll()
	maxIter := r.config.maxIterations()

	for iteration := 1; iteration <= maxIter; iteration++ {
		if r.config.Compactor != nil {
			state.Messages = r.config.Compactor.Compact(state.Messages)
		}

		resp, err := r.messages.Create(ctx, state)
		if err != nil {
			return nil, &LoopError{Phase: PhaseModelTurn, Iteration: iteration, Cause: err}
		}

		if !resp.HasToolUse() {
			return r.messages.Stream(ctx, state)
		}

		state.Messages = append(state.Messages, models.RequestMessage{
			Role:    models.RoleAssistant,
			Content: append([]models.ContentBlock(nil), resp.Content...),
		})

		var toolUses []models.ContentBlock
		for _, b := range resp.Content {
			if b.Type == models.ContentToolUse {
				toolUses = append(toolUses, b)
			}
		}

		outputs, err := r.executeTools(ctx, toolUses)
		if err != nil {
			return nil, &LoopError{Phase: PhaseExecuteTools, Iteration: iteration, Cause: err}
		}

		state.Messages = append(state.Messages, models.RequestMessage{Role: models.RoleUser, Content: outputs})
	}

	return nil, &LoopError{
		Phase:     PhaseExecuteTools,
		Iteration: maxIter,
		Cause:     fmt.Errorf("%w: reached max iterations %d", ErrMaxIterations, maxIter),
	}
}

// executeTools runs every tool_use block and returns the ordered
// tool_result content blocks, per spec.md §4.7's per-iteration pseudocode.
// Sequential by default; when Concurrent is set, invocations run
// concurrently but results are reassembled in tool-use order before
// returning, preserving the ordering guarantee of spec.md §5.
func (r *Runner) executeTools(ctx context.Context, toolUses []models.ContentBlock) ([]models.ContentBlock, error) {
	if !r.config.Concurrent || len(toolUses) <= 1 {
		out := make([]models.ContentBlock, len(toolUses))
		for i, tu := range toolUses {
			out[i] = r.invokeOne(ctx, tu)
		}
		return out, nil
	}

	out := make([]models.ContentBlock, len(toolUses))
	done := make(chan struct{}, len(toolUses))
	for i, tu := range toolUses {
		go func(idx int, call models.ContentBlock) {
			out[idx] = r.invokeOne(ctx, call)
			done <- struct{}{}
		}(i, tu)
	}
	for range toolUses {
		<-done
	}
	return out, nil
}

// invokeOne dispatches a single tool_use block, mapping the outcome to a
// tool_result content block per spec.md §4.7: a missing tool or a
// ToolError both become an is_error result and never abort the loop.
func (r *Runner) invokeOne(ctx context.Context, tu models.ContentBlock) models.ContentBlock {
	r.emit(models.NewToolEvent(models.EventToolStarted, tu.Name, tu.ID))

	var span trace.Span
	if r.config.Tracer != nil {
		ctx, span = r.config.Tracer.TraceToolExecution(ctx, tu.Name)
		defer span.End()
	}

	tool, ok := r.registry.Get(tu.Name)
	if !ok {
		msg := fmt.Sprintf("Error: tool '%s' not found", tu.Name)
		r.emit(models.NewToolEvent(models.EventToolFailed, tu.Name, tu.ID).WithMessage(msg))
		return models.NewToolResultBlock(tu.ID, msg, true)
	}

	output, err := tool.Invoke(ctx, tu.Input)
	if err != nil {
		msg := "Error: " + err.Error()
		if span != nil {
			r.config.Tracer.RecordError(span, err)
		}
		r.emit(models.NewToolEvent(models.EventToolFailed, tu.Name, tu.ID).WithMessage(msg))
		return models.NewToolResultBlock(tu.ID, r.config.Guard.apply(tu.Name, msg), true)
	}

	r.emit(models.NewToolEvent(models.EventToolCompleted, tu.Name, tu.ID))
	return models.NewToolResultBlock(tu.ID, r.config.Guard.apply(tu.Name, output.String()), false)
}
