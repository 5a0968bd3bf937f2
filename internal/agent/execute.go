package agent

import (
	"context"
	"time"

	"github.com/sentinel-ops/sentinel/internal/tools"
	"github.com/sentinel-ops/sentinel/internal/types"
)

// ExecutorInput is the execution agent's structured input.
type ExecutorInput struct {
	Plan             *types.Plan
	CallerPermission types.PermissionLevel
	DryRun           bool
}

// ExecutorOutput reports per-action results and aggregate counts.
type ExecutorOutput struct {
	ExecutedActions      []*types.Action `json:"executed_actions"`
	SuccessCount         int             `json:"success_count"`
	FailureCount         int             `json:"failure_count"`
	TotalDurationSeconds float64         `json:"total_duration_seconds"`
}

// Executor runs a plan's actions through the tool registry. Every call
// goes through the registry so permission checks, the dry-run gate and
// the audit log apply uniformly; the executor never invokes a tool
// handler directly.
type Executor struct {
	base
}

func NewExecutor(registry *tools.Registry) *Executor {
	return &Executor{base{name: "executor-agent", registry: registry}}
}

// Run executes each action in order. An action marked dry-run keeps
// that marking even when the executor itself runs live, so a plan can
// stage risky actions as simulations inside an otherwise real run.
func (a *Executor) Run(ctx context.Context, in ExecutorInput) (ExecutorOutput, error) {
	caller := in.CallerPermission
	if caller == "" {
		caller = types.PermissionOperator
	}

	out := ExecutorOutput{}
	start := time.Now()

	for _, action := range in.Plan.Actions {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}

		dryRun := in.DryRun || action.DryRun
		result := a.registry.Call(action.ToolName, action.Args, caller, dryRun)

		now := time.Now()
		action.Executed = true
		action.ExecutionTime = &now
		action.DryRun = dryRun
		action.Result = result.Data
		if result.Success {
			action.Error = ""
			out.SuccessCount++
		} else {
			action.Error = result.Error
			out.FailureCount++
		}
		out.ExecutedActions = append(out.ExecutedActions, action)
	}

	out.TotalDurationSeconds = time.Since(start).Seconds()
	return out, nil
}
