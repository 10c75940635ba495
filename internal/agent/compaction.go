package agent

import "github.com/haasonsaas/claudekit/pkg/models"

// DefaultCompactionBudgetChars is the default character budget a
// Compactor enforces. Characters are a cheap proxy for tokens, matching
// the donor's context-packing heuristic (roughly 4 chars/token).
const DefaultCompactionBudgetChars = 120_000

// Compactor trims the oldest turns of a conversation before a model
// turn whose estimated size would exceed its budget, per SPEC_FULL.md §4
// ("Context-window compaction"). spec.md is silent on this — it is not
// named in the Non-goals — so this is a supplemented feature, not part
// of the closed tool-runner state machine in spec.md §4.7 itself.
//
// Compaction always drops whole turns from the front, never splitting a
// tool_use turn from its tool_result turn, to preserve the invariant
// that a tool_result references a tool_use in the immediately preceding
// assistant message (spec.md §3).
type Compactor struct {
	// BudgetChars is the character budget. Non-positive values fall back
	// to DefaultCompactionBudgetChars.
	BudgetChars int

	// KeepFirst preserves the caller's first message (typically the
	// opening user turn establishing task context) even when trimming.
	KeepFirst bool

	// MinKeepTurns is the minimum number of trailing turns never dropped,
	// regardless of budget. Defaults to 2 (the last assistant/user pair).
	MinKeepTurns int
}

func (c *Compactor) budget() int {
	if c == nil || c.BudgetChars <= 0 {
		return DefaultCompactionBudgetChars
	}
	return c.BudgetChars
}

func (c *Compactor) minKeep() int {
	if c == nil || c.MinKeepTurns <= 0 {
		return 2
	}
	return c.MinKeepTurns
}

func estimateChars(msgs []models.RequestMessage) int {
	total := 0
	for _, m := range msgs {
		for _, b := range m.Content {
			total += len(b.Text) + len(b.Content) + len(b.Thinking) + len(b.Input)
		}
	}
	return total
}

// Compact returns msgs unchanged if it fits the budget, or a trimmed
// copy with the oldest turns dropped (in pairs, to keep tool_use/
// tool_result turns adjacent) otherwise. It never drops below
// MinKeepTurns trailing messages, and never returns an empty slice when
// msgs is non-empty.
func (c *Compactor) Compact(msgs []models.RequestMessage) []models.RequestMessage {
	if c == nil || estimateChars(msgs) <= c.budget() {
		return msgs
	}

	minKeep := c.minKeep()
	if minKeep > len(msgs) {
		minKeep = len(msgs)
	}

	start := 0
	if c.KeepFirst && len(msgs) > 0 {
		start = 1
	}

	trimmed := append([]models.RequestMessage(nil), msgs...)
	for len(trimmed) > minKeep+start && estimateChars(trimmed) > c.budget() {
		trimmed = append(trimmed[:start], trimmed[start+1:]...)
	}
	return trimmed
}
