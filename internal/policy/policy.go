// Package policy holds the three orchestration policies: resource
// budgets, retry backoff, and plan approval.
package policy

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/sentinel-ops/sentinel/internal/types"
)

// BudgetPolicy sets the ceilings new budgets are minted with.
type BudgetPolicy struct {
	MaxTokens      int     `json:"max_tokens" yaml:"max_tokens"`
	MaxTimeSeconds float64 `json:"max_time_seconds" yaml:"max_time_seconds"`
	MaxToolCalls   int     `json:"max_tool_calls" yaml:"max_tool_calls"`
}

// NewBudgetPolicy returns the default policy: 100k tokens, 300
// seconds, 50 tool calls.
func NewBudgetPolicy() BudgetPolicy {
	return BudgetPolicy{MaxTokens: 100000, MaxTimeSeconds: 300, MaxToolCalls: 50}
}

// CreateBudget mints a fresh budget with this policy's ceilings.
func (p BudgetPolicy) CreateBudget() *types.Budget {
	return types.NewBudget(p.MaxTokens, p.MaxTimeSeconds, p.MaxToolCalls)
}

func (p BudgetPolicy) IsBudgetExceeded(b *types.Budget) bool {
	return b.IsExceeded()
}

// Remaining is the headroom left on each axis, clamped at zero.
type Remaining struct {
	Tokens      int `json:"tokens"`
	TimeSeconds int `json:"time_seconds"`
	ToolCalls   int `json:"tool_calls"`
}

// RemainingBudget reports headroom. An overdrawn axis reports zero,
// never a negative number.
func (p BudgetPolicy) RemainingBudget(b *types.Budget) Remaining {
	snap := b.Snapshot()
	clamp := func(n int) int {
		if n < 0 {
			return 0
		}
		return n
	}
	return Remaining{
		Tokens:      clamp(snap.MaxTokens - snap.TokensUsed),
		TimeSeconds: clamp(int(snap.MaxTimeSeconds - snap.TimeUsed)),
		ToolCalls:   clamp(snap.MaxToolCalls - snap.ToolCallsUsed),
	}
}

// RetryPolicy computes whether and when to retry a failed operation.
// It is a pure calculator: callers own the actual retry loop.
type RetryPolicy struct {
	MaxRetries        int           `json:"max_retries" yaml:"max_retries"`
	RetryDelay        time.Duration `json:"retry_delay" yaml:"retry_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier" yaml:"backoff_multiplier"`
	MaxDelay          time.Duration `json:"max_delay" yaml:"max_delay"`
	Jitter            bool          `json:"jitter" yaml:"jitter"`
}

// NewRetryPolicy returns the default policy: 3 retries, 1s base delay,
// 2x backoff, no cap and no jitter.
func NewRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, RetryDelay: time.Second, BackoffMultiplier: 2.0}
}

// ShouldRetry reports whether another attempt is allowed after the
// given zero-based attempt count.
func (p RetryPolicy) ShouldRetry(attempt int) bool {
	return attempt < p.MaxRetries
}

// Delay returns base * multiplier^attempt, capped at MaxDelay when
// set. Attempt 0 gets the base delay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := time.Duration(float64(p.RetryDelay) * math.Pow(p.BackoffMultiplier, float64(attempt)))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// DelayWithJitter scales Delay by a deterministic factor in [0.5, 1.5)
// derived from seed, so independent workers retrying the same failure
// spread out without shared randomness.
func (p RetryPolicy) DelayWithJitter(attempt int, seed string) time.Duration {
	d := p.Delay(attempt)
	if !p.Jitter {
		return d
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", seed, attempt)))
	u := binary.BigEndian.Uint64(sum[:8])
	unit := float64(u) / float64(math.MaxUint64)
	return time.Duration(float64(d) * (0.5 + unit))
}

// ApprovalPolicy decides whether a plan may proceed to execution. The
// current mode auto-approves everything; plans containing risky writes
// are approved with the risky action count called out for review.
type ApprovalPolicy struct {
	AutoApproveReadOnly     bool `json:"auto_approve_read_only" yaml:"auto_approve_read_only"`
	AutoApproveSafeWrite    bool `json:"auto_approve_safe_write" yaml:"auto_approve_safe_write"`
	RequireApprovalForRisky bool `json:"require_approval_for_risky" yaml:"require_approval_for_risky"`
}

// NewApprovalPolicy returns the default policy: read-only actions
// auto-approved, safe writes and risky writes gated.
func NewApprovalPolicy() ApprovalPolicy {
	return ApprovalPolicy{AutoApproveReadOnly: true, RequireApprovalForRisky: true}
}

// RequiresApproval reports whether the plan needs an approval step.
// The plan's own flag short-circuits; otherwise each action's risk
// level is checked against the policy toggles.
func (p ApprovalPolicy) RequiresApproval(plan *types.Plan) bool {
	if plan.ApprovalRequired {
		return true
	}
	for _, a := range plan.Actions {
		switch a.RiskLevel {
		case types.RiskRiskyWrite:
			if p.RequireApprovalForRisky {
				return true
			}
		case types.RiskSafeWrite:
			if !p.AutoApproveSafeWrite {
				return true
			}
		case types.RiskReadOnly:
			if !p.AutoApproveReadOnly {
				return true
			}
		}
	}
	return false
}

// ApprovePlan returns the approval decision and a human-readable
// reason. Approval never fails in auto-approve mode; the reason
// distinguishes plans that never needed approval from those waved
// through, and flags risky actions for later human review.
func (p ApprovalPolicy) ApprovePlan(plan *types.Plan) (bool, string) {
	if !p.RequiresApproval(plan) {
		return true, "Auto-approved by policy"
	}

	risky := 0
	for _, a := range plan.Actions {
		if a.RiskLevel == types.RiskRiskyWrite {
			risky++
		}
	}
	if risky > 0 && p.RequireApprovalForRisky {
		return true, fmt.Sprintf("Auto-approved - %d risky actions flagged for review", risky)
	}
	return true, "Approved by policy"
}
