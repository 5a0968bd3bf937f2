package types

import (
	"testing"

	"pgregory.net/rapid"
)

// Budget consumption is monotonic and IsExceeded is equivalent to
// "some counter reached its ceiling", for any interleaving of records.
func TestBudgetMonotonicProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := NewBudget(
			rapid.IntRange(1, 100000).Draw(t, "max_tokens"),
			float64(rapid.IntRange(1, 600).Draw(t, "max_time")),
			rapid.IntRange(1, 100).Draw(t, "max_calls"),
		)
		steps := rapid.IntRange(0, 50).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			prev := b.Snapshot()
			switch rapid.IntRange(0, 2).Draw(t, "kind") {
			case 0:
				b.RecordTokens(rapid.IntRange(-10, 5000).Draw(t, "tokens"))
			case 1:
				b.RecordTime(float64(rapid.IntRange(-10, 100).Draw(t, "seconds")))
			case 2:
				b.RecordToolCalls(rapid.IntRange(-2, 5).Draw(t, "calls"))
			}
			cur := b.Snapshot()
			if cur.TokensUsed < prev.TokensUsed || cur.TimeUsed < prev.TimeUsed || cur.ToolCallsUsed < prev.ToolCallsUsed {
				t.Fatalf("usage decreased: %+v -> %+v", prev, cur)
			}
		}
		snap := b.Snapshot()
		want := snap.TokensUsed >= snap.MaxTokens ||
			snap.TimeUsed >= snap.MaxTimeSeconds ||
			snap.ToolCallsUsed >= snap.MaxToolCalls
		if got := b.IsExceeded(); got != want {
			t.Fatalf("IsExceeded = %v, counters %+v", got, snap)
		}
	})
}
