package policy

import (
	"strings"
	"testing"
	"time"

	"github.com/sentinel-ops/sentinel/internal/types"
)

func TestBudgetPolicyDefaults(t *testing.T) {
	p := NewBudgetPolicy()
	b := p.CreateBudget()
	snap := b.Snapshot()
	if snap.MaxTokens != 100000 || snap.MaxTimeSeconds != 300 || snap.MaxToolCalls != 50 {
		t.Fatalf("unexpected defaults: %+v", snap)
	}
	if p.IsBudgetExceeded(b) {
		t.Fatalf("fresh budget exceeded")
	}
}

func TestRemainingBudgetClampsAtZero(t *testing.T) {
	p := BudgetPolicy{MaxTokens: 100, MaxTimeSeconds: 10, MaxToolCalls: 5}
	b := p.CreateBudget()
	b.RecordTokens(250)
	b.RecordTime(3.5)
	rem := p.RemainingBudget(b)
	if rem.Tokens != 0 {
		t.Fatalf("overdrawn tokens remaining = %d, want 0", rem.Tokens)
	}
	if rem.TimeSeconds != 6 {
		t.Fatalf("time remaining = %d, want 6", rem.TimeSeconds)
	}
	if rem.ToolCalls != 5 {
		t.Fatalf("tool calls remaining = %d, want 5", rem.ToolCalls)
	}
}

func TestRetryPolicyExponentialDelays(t *testing.T) {
	p := NewRetryPolicy()
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
	}
	for _, tc := range cases {
		if got := p.Delay(tc.attempt); got != tc.want {
			t.Fatalf("Delay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
	if !p.ShouldRetry(2) {
		t.Fatalf("attempt 2 of 3 should retry")
	}
	if p.ShouldRetry(3) {
		t.Fatalf("attempt 3 of 3 should not retry")
	}
}

func TestRetryPolicyMaxDelayCap(t *testing.T) {
	p := RetryPolicy{MaxRetries: 10, RetryDelay: time.Second, BackoffMultiplier: 2, MaxDelay: 5 * time.Second}
	if got := p.Delay(6); got != 5*time.Second {
		t.Fatalf("Delay(6) = %v, want cap at 5s", got)
	}
}

func TestRetryPolicyJitterDeterministicAndBounded(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, RetryDelay: time.Second, BackoffMultiplier: 2, Jitter: true}
	a := p.DelayWithJitter(1, "node-x")
	b := p.DelayWithJitter(1, "node-x")
	if a != b {
		t.Fatalf("jitter not deterministic for same seed: %v vs %v", a, b)
	}
	base := p.Delay(1)
	if a < base/2 || a >= base*3/2+time.Millisecond {
		t.Fatalf("jittered delay %v outside [%v, %v)", a, base/2, base*3/2)
	}
	if p.DelayWithJitter(1, "node-y") == a {
		t.Fatalf("different seeds produced identical jitter")
	}
}

func TestApprovalPolicyTable(t *testing.T) {
	pol := NewApprovalPolicy()
	cases := []struct {
		name          string
		plan          *types.Plan
		wantRequires  bool
		wantReasonSub string
	}{
		{
			name:          "read only auto approved",
			plan:          &types.Plan{Actions: []*types.Action{{RiskLevel: types.RiskReadOnly}}},
			wantRequires:  false,
			wantReasonSub: "Auto-approved by policy",
		},
		{
			name:          "safe write gated by default",
			plan:          &types.Plan{Actions: []*types.Action{{RiskLevel: types.RiskSafeWrite}}},
			wantRequires:  true,
			wantReasonSub: "Approved by policy",
		},
		{
			name: "risky write flagged with count",
			plan: &types.Plan{Actions: []*types.Action{
				{RiskLevel: types.RiskRiskyWrite},
				{RiskLevel: types.RiskRiskyWrite},
			}},
			wantRequires:  true,
			wantReasonSub: "2 risky actions",
		},
		{
			name:          "plan flag forces approval",
			plan:          &types.Plan{ApprovalRequired: true},
			wantRequires:  true,
			wantReasonSub: "Approved by policy",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := pol.RequiresApproval(tc.plan); got != tc.wantRequires {
				t.Fatalf("RequiresApproval = %v, want %v", got, tc.wantRequires)
			}
			approved, reason := pol.ApprovePlan(tc.plan)
			if !approved {
				t.Fatalf("ApprovePlan rejected: %s", reason)
			}
			if !strings.Contains(reason, tc.wantReasonSub) {
				t.Fatalf("reason %q missing %q", reason, tc.wantReasonSub)
			}
		})
	}
}

func TestApprovalPolicyToggles(t *testing.T) {
	pol := ApprovalPolicy{AutoApproveReadOnly: false}
	plan := &types.Plan{Actions: []*types.Action{{RiskLevel: types.RiskReadOnly}}}
	if !pol.RequiresApproval(plan) {
		t.Fatalf("read-only should be gated when auto-approve is off")
	}

	pol = ApprovalPolicy{AutoApproveReadOnly: true, AutoApproveSafeWrite: true}
	plan = &types.Plan{Actions: []*types.Action{
		{RiskLevel: types.RiskSafeWrite},
		{RiskLevel: types.RiskRiskyWrite},
	}}
	if pol.RequiresApproval(plan) {
		t.Fatalf("risky approval disabled and safe writes auto-approved; should not gate")
	}
}
