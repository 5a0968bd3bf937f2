package orchestrate

import (
	"fmt"

	"github.com/sentinel-ops/sentinel/internal/types"
)

// BudgetExceededError aborts a workflow when the task's budget runs
// out between stages. It carries the usage snapshot at abort time.
type BudgetExceededError struct {
	Usage types.BudgetSnapshot
}

func (e *BudgetExceededError) Error() string {
	u := e.Usage
	return fmt.Sprintf("Budget exceeded: %d/%d tokens, %.1f/%.1fs time, %d/%d tool calls",
		u.TokensUsed, u.MaxTokens, u.TimeUsed, u.MaxTimeSeconds, u.ToolCallsUsed, u.MaxToolCalls)
}

// StageFailedError reports which pipeline stage failed and why.
type StageFailedError struct {
	Stage  string
	Reason string
}

func (e *StageFailedError) Error() string {
	return fmt.Sprintf("Node '%s' failed: %s", e.Stage, e.Reason)
}

// NoReportError is returned when the workflow completes without the
// report stage producing output.
type NoReportError struct{}

func (e *NoReportError) Error() string { return "no report generated" }
