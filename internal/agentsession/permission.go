package agentsession

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
)

// PermissionMode is one of the four session-wide modes from spec.md
// §4.8.
type PermissionMode string

const (
	// ModeDefault requires explicit permission for every tool.
	ModeDefault PermissionMode = "default"
	// ModeAcceptEdits allows tools and permits callback-driven
	// modification of their input.
	ModeAcceptEdits PermissionMode = "accept_edits"
	// ModeBypassPermissions short-circuits every check to allow.
	ModeBypassPermissions PermissionMode = "bypass_permissions"
	// ModePlan denies any tool named in the plan-denylist and allows
	// the rest.
	ModePlan PermissionMode = "plan"
)

// RuleBehavior is the verdict a single PermissionRule contributes.
type RuleBehavior string

const (
	BehaviorAllow RuleBehavior = "allow"
	BehaviorDeny  RuleBehavior = "deny"
	BehaviorAsk   RuleBehavior = "ask"
)

// PermissionRule matches a tool name (supporting the same glob-ish
// patterns as the donor's approval checker: exact, "prefix*", "*suffix",
// and "*") and contributes a behavior when it matches.
type PermissionRule struct {
	Pattern  string
	Behavior RuleBehavior
}

// Callback is invoked when no rule decides the check outright (an
// "ask" match or no match at all), per spec.md §4.8: "ask or no-match
// falls through to the user callback."
type Callback func(ctx context.Context, req PermissionCheckRequest) (PermissionCheckResponse, error)

// Evaluator runs the ordered-rule-then-callback permission check
// described in spec.md §4.8. Grounded on the donor's
// internal/agent/approval.go ApprovalChecker: same "first matching rule
// wins" ordering and pattern matching, generalized from the donor's
// allow/deny/require-approval/safe-bin lists (a fixed five-list shape)
// to an ordered, caller-supplied rule list so any of the four modes can
// be expressed by constructing the right rule list up front.
type Evaluator struct {
	mu           sync.RWMutex
	rules        []PermissionRule
	mode         PermissionMode
	planDenylist map[string]struct{}
	callback     Callback
}

// NewEvaluator builds an Evaluator for mode, with rules consulted in
// order before falling back to mode-specific behavior and then the
// callback. planDenylist only matters when mode is ModePlan.
func NewEvaluator(mode PermissionMode, rules []PermissionRule, planDenylist []string, callback Callback) *Evaluator {
	deny := make(map[string]struct{}, len(planDenylist))
	for _, t := range planDenylist {
		deny[t] = struct{}{}
	}
	return &Evaluator{
		rules:        append([]PermissionRule(nil), rules...),
		mode:         mode,
		planDenylist: deny,
		callback:     callback,
	}
}

// SetRules atomically replaces the rule list. Per spec.md §5, mutations
// are atomic with respect to in-flight checks: a check sees the old or
// the new rule set in its entirety, never a partial mix.
func (e *Evaluator) SetRules(rules []PermissionRule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append([]PermissionRule(nil), rules...)
}

func (e *Evaluator) snapshot() ([]PermissionRule, PermissionMode, map[string]struct{}) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rules, e.mode, e.planDenylist
}

// Check evaluates req against the current mode and rule list.
func (e *Evaluator) Check(ctx context.Context, req PermissionCheckRequest) (PermissionCheckResponse, error) {
	rules, mode, denylist := e.snapshot()

	if mode == ModeBypassPermissions {
		return PermissionCheckResponse{Allow: true}, nil
	}

	if mode == ModePlan {
		if _, denied := denylist[req.Tool]; denied {
			return PermissionCheckResponse{Allow: false, Reason: "tool has side effects; denied under plan mode"}, nil
		}
		return PermissionCheckResponse{Allow: true}, nil
	}

	for _, rule := range rules {
		if !matchesTool(rule.Pattern, req.Tool) {
			continue
		}
		switch rule.Behavior {
		case BehaviorAllow:
			return PermissionCheckResponse{Allow: true, Reason: "matched allow rule: " + rule.Pattern}, nil
		case BehaviorDeny:
			return PermissionCheckResponse{Allow: false, Reason: "matched deny rule: " + rule.Pattern}, nil
		case BehaviorAsk:
			return e.ask(ctx, req, mode)
		}
	}

	return e.ask(ctx, req, mode)
}

func (e *Evaluator) ask(ctx context.Context, req PermissionCheckRequest, mode PermissionMode) (PermissionCheckResponse, error) {
	if mode == ModeAcceptEdits {
		resp, err := e.callbackOrAllow(ctx, req)
		if err != nil {
			return PermissionCheckResponse{}, err
		}
		return resp, nil
	}
	if e.callback == nil {
		return PermissionCheckResponse{Allow: false, Reason: "no callback registered; denying by default"}, nil
	}
	return e.callback(ctx, req)
}

func (e *Evaluator) callbackOrAllow(ctx context.Context, req PermissionCheckRequest) (PermissionCheckResponse, error) {
	if e.callback == nil {
		return PermissionCheckResponse{Allow: true}, nil
	}
	return e.callback(ctx, req)
}

// matchesTool mirrors the donor's matchesPattern: exact match, "*"
// (match all), "prefix*", and "*suffix".
func matchesTool(pattern, tool string) bool {
	if pattern == "" {
		return false
	}
	if pattern == "*" {
		return true
	}
	if pattern == tool {
		return true
	}
	if strings.HasSuffix(pattern, "*") && len(pattern) > 1 {
		prefix := pattern[:len(pattern)-1]
		return strings.HasPrefix(tool, prefix)
	}
	if strings.HasPrefix(pattern, "*") && len(pattern) > 1 {
		suffix := pattern[1:]
		return strings.HasSuffix(tool, suffix)
	}
	return false
}

// ApplyModifiedInput overlays ModifiedInput on top of the original input
// when set, per spec.md §4.8: "modified_input replaces the tool input
// wire-side."
func ApplyModifiedInput(original json.RawMessage, resp PermissionCheckResponse) json.RawMessage {
	if len(resp.ModifiedInput) == 0 {
		return original
	}
	return resp.ModifiedInput
}
