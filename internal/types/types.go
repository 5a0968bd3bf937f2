// Package types holds the core data model shared by every stage of the
// incident response pipeline: tasks, evidence, plans, tool results and
// the resource budget that bounds a single run.
package types

import (
	"fmt"
	"strings"
	"time"
)

// RiskLevel classifies how dangerous a tool or planned action is.
type RiskLevel string

const (
	RiskReadOnly   RiskLevel = "read_only"
	RiskSafeWrite  RiskLevel = "safe_write"
	RiskRiskyWrite RiskLevel = "risky_write"
)

// ParseRiskLevel normalizes a free-form risk string. Unrecognized values
// are an error so misconfigured tools fail loudly at registration.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch RiskLevel(strings.ToLower(strings.TrimSpace(s))) {
	case RiskReadOnly:
		return RiskReadOnly, nil
	case RiskSafeWrite:
		return RiskSafeWrite, nil
	case RiskRiskyWrite:
		return RiskRiskyWrite, nil
	}
	return "", fmt.Errorf("unknown risk level %q", s)
}

// PermissionLevel orders callers by privilege. Higher ranks may invoke
// tools gated at lower ranks.
type PermissionLevel string

const (
	PermissionGuest    PermissionLevel = "guest"
	PermissionOperator PermissionLevel = "operator"
	PermissionAdmin    PermissionLevel = "admin"
)

// Rank returns the privilege ordinal: guest=1, operator=2, admin=3.
// Unknown levels rank 0 and are therefore denied everything.
func (p PermissionLevel) Rank() int {
	switch p {
	case PermissionGuest:
		return 1
	case PermissionOperator:
		return 2
	case PermissionAdmin:
		return 3
	}
	return 0
}

// Allows reports whether a caller at level p may invoke a tool that
// requires the given level.
func (p PermissionLevel) Allows(required PermissionLevel) bool {
	return p.Rank() >= required.Rank()
}

func ParsePermissionLevel(s string) (PermissionLevel, error) {
	switch PermissionLevel(strings.ToLower(strings.TrimSpace(s))) {
	case PermissionGuest:
		return PermissionGuest, nil
	case PermissionOperator:
		return PermissionOperator, nil
	case PermissionAdmin:
		return PermissionAdmin, nil
	}
	return "", fmt.Errorf("unknown permission level %q", s)
}

// TaskStatus tracks a task through the pipeline.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskTriaged   TaskStatus = "triaged"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Task is the normalized unit of work the orchestrator operates on,
// regardless of whether it arrived as an alert, a ticket, a chat
// message or a scheduled check.
type Task struct {
	TaskID      string         `json:"task_id"`
	Source      string         `json:"source"`
	Goal        string         `json:"goal"`
	Symptoms    map[string]any `json:"symptoms"`
	Context     map[string]any `json:"context,omitempty"`
	Constraints map[string]any `json:"constraints,omitempty"`
	RiskLevel   RiskLevel      `json:"risk_level"`
	Status      TaskStatus     `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	Budget      *Budget        `json:"budget"`
}

// Evidence is a single observation gathered during investigation,
// tagged with the tool that produced it and how much to trust it.
type Evidence struct {
	Source     string         `json:"source"`
	Timestamp  time.Time      `json:"timestamp"`
	Data       map[string]any `json:"data"`
	Confidence float64        `json:"confidence"`
	Notes      string         `json:"notes,omitempty"`
}

// Action is one step of a remediation plan. Executed, ExecutionTime,
// Result and Error are filled in by the executor.
type Action struct {
	ToolName         string         `json:"tool_name"`
	Args             map[string]any `json:"args"`
	Description      string         `json:"description,omitempty"`
	RiskLevel        RiskLevel      `json:"risk_level"`
	RequiresApproval bool           `json:"requires_approval"`
	DryRun           bool           `json:"dry_run"`
	Executed         bool           `json:"executed"`
	ExecutionTime    *time.Time     `json:"execution_time,omitempty"`
	Result           map[string]any `json:"result,omitempty"`
	Error            string         `json:"error,omitempty"`
}

// Plan is the output of the planning stage: what we believe is wrong
// and what we propose to do about it.
type Plan struct {
	Hypotheses               []string  `json:"hypotheses"`
	Actions                  []*Action `json:"actions"`
	ExpectedEffect           string    `json:"expected_effect"`
	Risks                    []string  `json:"risks,omitempty"`
	RollbackPlan             []*Action `json:"rollback_plan,omitempty"`
	ApprovalRequired         bool      `json:"approval_required"`
	Confidence               float64   `json:"confidence"`
	EstimatedDurationSeconds int       `json:"estimated_duration_seconds"`
}

// RiskiestLevel returns the highest risk level across the plan's
// actions, defaulting to read_only for an empty plan.
func (p *Plan) RiskiestLevel() RiskLevel {
	level := RiskReadOnly
	rank := func(r RiskLevel) int {
		switch r {
		case RiskRiskyWrite:
			return 3
		case RiskSafeWrite:
			return 2
		default:
			return 1
		}
	}
	for _, a := range p.Actions {
		if rank(a.RiskLevel) > rank(level) {
			level = a.RiskLevel
		}
	}
	return level
}

// ToolResult is the uniform envelope every registry call returns.
// Errors are carried in-band: a failed call is a result with
// Success=false, not a Go error.
type ToolResult struct {
	Success  bool           `json:"success"`
	Data     map[string]any `json:"data,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Report is the final artifact of a run.
type Report struct {
	TaskID              string         `json:"task_id"`
	Summary             string         `json:"summary"`
	RootCauseHypotheses []string       `json:"root_cause_hypotheses"`
	RecommendedActions  []string       `json:"recommended_actions"`
	Evidence            []Evidence     `json:"evidence"`
	Plan                *Plan          `json:"plan,omitempty"`
	Metrics             map[string]any `json:"metrics"`
	Errors              []string       `json:"errors,omitempty"`
	Status              string         `json:"status"`
	GeneratedAt         time.Time      `json:"generated_at"`
}
