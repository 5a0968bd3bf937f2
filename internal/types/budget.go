package types

import "sync"

// Budget bounds a single run across three axes: tokens, wall-clock
// seconds and tool calls. Consumption is monotonic; recording a
// negative amount is a no-op. A budget is exceeded as soon as ANY
// counter reaches its ceiling.
type Budget struct {
	mu sync.Mutex

	MaxTokens      int     `json:"max_tokens"`
	MaxTimeSeconds float64 `json:"max_time_seconds"`
	MaxToolCalls   int     `json:"max_tool_calls"`

	TokensUsed    int     `json:"tokens_used"`
	TimeUsed      float64 `json:"time_used"`
	ToolCallsUsed int     `json:"tool_calls_used"`
}

// NewBudget returns a budget with the given ceilings and zero usage.
func NewBudget(maxTokens int, maxTimeSeconds float64, maxToolCalls int) *Budget {
	return &Budget{
		MaxTokens:      maxTokens,
		MaxTimeSeconds: maxTimeSeconds,
		MaxToolCalls:   maxToolCalls,
	}
}

// RecordTokens adds n tokens of usage. Negative n is ignored.
func (b *Budget) RecordTokens(n int) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	b.TokensUsed += n
	b.mu.Unlock()
}

// RecordTime adds seconds of wall-clock usage. Negative values are
// ignored.
func (b *Budget) RecordTime(seconds float64) {
	if seconds <= 0 {
		return
	}
	b.mu.Lock()
	b.TimeUsed += seconds
	b.mu.Unlock()
}

// RecordToolCalls adds n tool invocations. Negative n is ignored.
func (b *Budget) RecordToolCalls(n int) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	b.ToolCallsUsed += n
	b.mu.Unlock()
}

// IsExceeded reports whether any counter has reached its ceiling.
// Reaching the limit exactly counts as exceeded.
func (b *Budget) IsExceeded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.TokensUsed >= b.MaxTokens ||
		b.TimeUsed >= b.MaxTimeSeconds ||
		b.ToolCallsUsed >= b.MaxToolCalls
}

// BudgetSnapshot is a point-in-time copy of a budget's ceilings and
// counters, free of the lock so it can be copied and serialized.
type BudgetSnapshot struct {
	MaxTokens      int     `json:"max_tokens"`
	MaxTimeSeconds float64 `json:"max_time_seconds"`
	MaxToolCalls   int     `json:"max_tool_calls"`

	TokensUsed    int     `json:"tokens_used"`
	TimeUsed      float64 `json:"time_used"`
	ToolCallsUsed int     `json:"tool_calls_used"`
}

// Snapshot returns a copy safe to serialize without holding the lock.
func (b *Budget) Snapshot() BudgetSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BudgetSnapshot{
		MaxTokens:      b.MaxTokens,
		MaxTimeSeconds: b.MaxTimeSeconds,
		MaxToolCalls:   b.MaxToolCalls,
		TokensUsed:     b.TokensUsed,
		TimeUsed:       b.TimeUsed,
		ToolCallsUsed:  b.ToolCallsUsed,
	}
}
