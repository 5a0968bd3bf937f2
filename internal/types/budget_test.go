package types

import "testing"

func TestBudgetNotExceededWhenFresh(t *testing.T) {
	b := NewBudget(1000, 60, 10)
	if b.IsExceeded() {
		t.Fatalf("fresh budget reported exceeded")
	}
}

func TestBudgetExceededAtExactLimit(t *testing.T) {
	b := NewBudget(1000, 60, 10)
	b.RecordTokens(1000)
	if !b.IsExceeded() {
		t.Fatalf("budget at exact token limit not reported exceeded")
	}
}

func TestBudgetAnyAxisTrips(t *testing.T) {
	cases := []struct {
		name   string
		record func(*Budget)
	}{
		{"tokens", func(b *Budget) { b.RecordTokens(1001) }},
		{"time", func(b *Budget) { b.RecordTime(61) }},
		{"tool_calls", func(b *Budget) { b.RecordToolCalls(10) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := NewBudget(1000, 60, 10)
			tc.record(b)
			if !b.IsExceeded() {
				t.Fatalf("%s over limit not reported exceeded", tc.name)
			}
		})
	}
}

func TestBudgetIgnoresNegativeUsage(t *testing.T) {
	b := NewBudget(1000, 60, 10)
	b.RecordTokens(500)
	b.RecordTokens(-200)
	b.RecordTime(-5)
	b.RecordToolCalls(-1)
	snap := b.Snapshot()
	if snap.TokensUsed != 500 {
		t.Fatalf("TokensUsed = %d, want 500", snap.TokensUsed)
	}
	if snap.TimeUsed != 0 || snap.ToolCallsUsed != 0 {
		t.Fatalf("negative usage mutated counters: time=%v calls=%d", snap.TimeUsed, snap.ToolCallsUsed)
	}
}

func TestBudgetSnapshotIsDetached(t *testing.T) {
	b := NewBudget(1000, 60, 10)
	b.RecordTokens(100)
	snap := b.Snapshot()
	b.RecordTokens(50)
	if snap.TokensUsed != 100 {
		t.Fatalf("snapshot mutated by later usage: TokensUsed = %d", snap.TokensUsed)
	}
	// Snapshots are plain values; copying one must be safe.
	copied := snap
	if copied != snap {
		t.Fatalf("snapshot copy differs: %+v vs %+v", copied, snap)
	}
}

func TestPermissionRanks(t *testing.T) {
	if !PermissionAdmin.Allows(PermissionOperator) {
		t.Fatalf("admin should be allowed operator-gated tools")
	}
	if PermissionGuest.Allows(PermissionOperator) {
		t.Fatalf("guest should not be allowed operator-gated tools")
	}
	if !PermissionOperator.Allows(PermissionOperator) {
		t.Fatalf("equal rank should be allowed")
	}
	if PermissionLevel("bogus").Allows(PermissionGuest) {
		t.Fatalf("unknown level should be denied everything")
	}
}

func TestParseRiskLevel(t *testing.T) {
	if _, err := ParseRiskLevel("nuclear"); err == nil {
		t.Fatalf("expected error for unknown risk level")
	}
	got, err := ParseRiskLevel("  Safe_Write ")
	if err != nil {
		t.Fatalf("ParseRiskLevel: %v", err)
	}
	if got != RiskSafeWrite {
		t.Fatalf("got %q, want %q", got, RiskSafeWrite)
	}
}

func TestPlanRiskiestLevel(t *testing.T) {
	p := &Plan{Actions: []*Action{
		{RiskLevel: RiskReadOnly},
		{RiskLevel: RiskRiskyWrite},
		{RiskLevel: RiskSafeWrite},
	}}
	if got := p.RiskiestLevel(); got != RiskRiskyWrite {
		t.Fatalf("RiskiestLevel = %q, want risky_write", got)
	}
	empty := &Plan{}
	if got := empty.RiskiestLevel(); got != RiskReadOnly {
		t.Fatalf("empty plan RiskiestLevel = %q, want read_only", got)
	}
}
