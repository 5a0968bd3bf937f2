// Package orchestrate drives the full incident workflow:
// detect, triage, investigate, plan, approve, execute, verify, report.
// The stages form a linear graph; the run loop checks the task budget
// before every stage and aborts with a typed error when it runs out.
package orchestrate

import (
	"context"
	"fmt"
	"time"

	"github.com/sentinel-ops/sentinel/internal/agent"
	"github.com/sentinel-ops/sentinel/internal/graph"
	"github.com/sentinel-ops/sentinel/internal/llm"
	"github.com/sentinel-ops/sentinel/internal/policy"
	"github.com/sentinel-ops/sentinel/internal/tools"
	"github.com/sentinel-ops/sentinel/internal/trace"
	"github.com/sentinel-ops/sentinel/internal/types"
	"github.com/sentinel-ops/sentinel/internal/verify"
)

// Options configures an Orchestrator. Zero-value fields get the
// conservative defaults: operator permission, dry-run execution,
// mock verification, no tracing.
type Options struct {
	BudgetPolicy     *policy.BudgetPolicy
	RetryPolicy      *policy.RetryPolicy
	ApprovalPolicy   *policy.ApprovalPolicy
	CallerPermission types.PermissionLevel
	Tracer           trace.Sink
	RealVerification bool
	LiveExecution    bool
}

// Orchestrator wires the agents, policies, verifier and trace sink
// into one workflow graph and runs tasks through it.
type Orchestrator struct {
	client   llm.Client
	registry *tools.Registry
	tracer   trace.Sink

	budgetPolicy   *policy.BudgetPolicy
	retryPolicy    *policy.RetryPolicy
	approvalPolicy *policy.ApprovalPolicy
	caller         types.PermissionLevel
	liveExecution  bool

	verifier     *verify.Verifier
	triage       *agent.Triage
	investigator *agent.Investigation
	planner      *agent.Planner
	executor     *agent.Executor

	graph *graph.Graph
}

func New(client llm.Client, registry *tools.Registry, opts Options) (*Orchestrator, error) {
	if opts.BudgetPolicy == nil {
		bp := policy.NewBudgetPolicy()
		opts.BudgetPolicy = &bp
	}
	if opts.RetryPolicy == nil {
		rp := policy.NewRetryPolicy()
		opts.RetryPolicy = &rp
	}
	if opts.ApprovalPolicy == nil {
		ap := policy.NewApprovalPolicy()
		opts.ApprovalPolicy = &ap
	}
	if opts.CallerPermission == "" {
		opts.CallerPermission = types.PermissionOperator
	}
	if opts.Tracer == nil {
		opts.Tracer = trace.Nop{}
	}

	o := &Orchestrator{
		client:         client,
		registry:       registry,
		tracer:         opts.Tracer,
		budgetPolicy:   opts.BudgetPolicy,
		retryPolicy:    opts.RetryPolicy,
		approvalPolicy: opts.ApprovalPolicy,
		caller:         opts.CallerPermission,
		liveExecution:  opts.LiveExecution,
		verifier:       verify.New(registry, opts.CallerPermission, opts.RealVerification),
		triage:         agent.NewTriage(client, registry),
		investigator:   agent.NewInvestigation(client, registry),
		planner:        agent.NewPlanner(client, registry),
		executor:       agent.NewExecutor(registry),
	}
	if err := o.buildGraph(); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Orchestrator) buildGraph() error {
	g := graph.New()

	nodes := []struct {
		name        string
		handler     graph.Handler
		description string
	}{
		{"detect", o.nodeDetect, "Standardize input to Task"},
		{"triage", o.nodeTriage, "Classify and assess risk"},
		{"investigate", o.nodeInvestigate, "Gather evidence"},
		{"plan", o.nodePlan, "Generate execution plan"},
		{"approve", o.nodeApprove, "Approval check"},
		{"execute", o.nodeExecute, "Execute plan"},
		{"verify", o.nodeVerify, "Verify outcome"},
		{"report", o.nodeReport, "Generate report"},
	}
	for _, n := range nodes {
		if err := g.AddNode(n.name, n.handler, n.description); err != nil {
			return err
		}
	}

	order := []string{"detect", "triage", "investigate", "plan", "approve", "execute", "verify", "report"}
	for i := 0; i < len(order)-1; i++ {
		if err := g.AddEdge(order[i], order[i+1], nil); err != nil {
			return err
		}
	}

	o.graph = g
	return nil
}

// Run executes the workflow for a task and returns the final report.
// The task's budget is checked before every stage; stage wall time is
// charged after each stage completes.
func (o *Orchestrator) Run(ctx context.Context, task *types.Task) (*types.Report, error) {
	workflowSpan := o.tracer.StartSpan("orchestrator", "workflow", "", task.Goal,
		map[string]any{"task_id": task.TaskID, "source": task.Source})

	ec := graph.NewContext(task.TaskID)
	ec.Set("task", task)
	ec.Set("permission", o.caller)
	ec.Set("workflow_span", workflowSpan)

	report, err := o.runGraph(ctx, task, ec)
	if err != nil {
		o.tracer.EndSpan(workflowSpan, "failed", err.Error(), "", nil)
		return nil, err
	}

	o.tracer.EndSpan(workflowSpan, "success", "", report.Summary, map[string]any{
		"execution_path": ec.Path(),
		"total_time":     task.Budget.Snapshot().TimeUsed,
	})
	return report, nil
}

func (o *Orchestrator) runGraph(ctx context.Context, task *types.Task, ec *graph.Context) (*types.Report, error) {
	current := "detect"
	for current != "" {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if task.Budget != nil && task.Budget.IsExceeded() {
			return nil, &BudgetExceededError{Usage: task.Budget.Snapshot()}
		}

		nodeStart := time.Now()
		ok, _, errMsg := o.graph.ExecuteNode(ctx, current, ec)
		if task.Budget != nil {
			task.Budget.RecordTime(time.Since(nodeStart).Seconds())
		}
		if !ok {
			return nil, &StageFailedError{Stage: current, Reason: errMsg}
		}

		next := o.graph.NextNodes(current, ec)
		if len(next) == 0 {
			break
		}
		current = next[0]
	}

	result, ok := ec.NodeResult("report")
	if !ok {
		return nil, &NoReportError{}
	}
	report, ok := result.(*types.Report)
	if !ok {
		return nil, &NoReportError{}
	}
	return report, nil
}

func (o *Orchestrator) spanStart(component, name string, ec *graph.Context) string {
	parent := ec.GetString("workflow_span", "")
	return o.tracer.StartSpan(component, name, parent, "", nil)
}

// nodeDetect is a passthrough: ingestion already normalized the input
// into a Task before the workflow started.
func (o *Orchestrator) nodeDetect(ctx context.Context, ec *graph.Context) (any, error) {
	span := o.spanStart("orchestrator", "detect", ec)
	task := taskFrom(ec)
	o.tracer.EndSpan(span, "success", "", "", nil)
	return task, nil
}

func (o *Orchestrator) nodeTriage(ctx context.Context, ec *graph.Context) (any, error) {
	span := o.spanStart("agent", "triage", ec)
	task := taskFrom(ec)

	out, err := o.triage.Run(ctx, agent.TriageInput{Task: task})
	if err != nil {
		o.tracer.EndSpan(span, "failed", err.Error(), "", nil)
		return nil, err
	}

	task.RiskLevel = out.RiskLevel
	task.Status = types.TaskTriaged
	chargeTokens(task, out.TokensUsed)

	o.tracer.EndSpan(span, "success", "", out.Reasoning, map[string]any{
		"severity":   out.Severity,
		"category":   out.Category,
		"risk_level": string(out.RiskLevel),
	})
	return out, nil
}

func (o *Orchestrator) nodeInvestigate(ctx context.Context, ec *graph.Context) (any, error) {
	span := o.spanStart("agent", "investigate", ec)
	task := taskFrom(ec)

	out, err := o.investigator.Run(ctx, agent.InvestigationInput{Task: task, CallerPermission: o.caller})
	if err != nil {
		o.tracer.EndSpan(span, "failed", err.Error(), "", nil)
		return nil, err
	}

	if task.Budget != nil {
		task.Budget.RecordToolCalls(out.ToolCallsMade)
	}
	chargeTokens(task, out.TokensUsed)
	ec.Set("evidence", out.Evidence)

	o.tracer.EndSpan(span, "success", "", "", map[string]any{
		"evidence_count": len(out.Evidence),
		"tool_calls":     out.ToolCallsMade,
		"confidence":     out.Confidence,
	})
	return out, nil
}

func (o *Orchestrator) nodePlan(ctx context.Context, ec *graph.Context) (any, error) {
	span := o.spanStart("agent", "plan", ec)
	task := taskFrom(ec)
	evidence := evidenceFrom(ec)

	out, err := o.planner.Run(ctx, agent.PlannerInput{Task: task, Evidence: evidence})
	if err != nil {
		o.tracer.EndSpan(span, "failed", err.Error(), "", nil)
		return nil, err
	}

	chargeTokens(task, out.TokensUsed)
	ec.Set("plan", out.Plan)

	o.tracer.EndSpan(span, "success", "", out.Reasoning, map[string]any{
		"hypotheses_count":  len(out.Plan.Hypotheses),
		"actions_count":     len(out.Plan.Actions),
		"approval_required": out.Plan.ApprovalRequired,
	})
	return out, nil
}

func (o *Orchestrator) nodeApprove(ctx context.Context, ec *graph.Context) (any, error) {
	span := o.spanStart("policy", "approve", ec)

	plan := planFrom(ec)
	if plan == nil {
		o.tracer.EndSpan(span, "failed", "No plan to approve", "", nil)
		return nil, fmt.Errorf("no plan to approve")
	}

	approved, reason := o.approvalPolicy.ApprovePlan(plan)
	decision := map[string]any{"approved": approved, "reason": reason}
	ec.Set("approval", decision)

	o.tracer.EndSpan(span, "success", "", reason, decision)
	return decision, nil
}

func (o *Orchestrator) nodeExecute(ctx context.Context, ec *graph.Context) (any, error) {
	span := o.spanStart("agent", "execute", ec)

	approved := false
	if decision, ok := ec.Get("approval"); ok {
		if m, ok := decision.(map[string]any); ok {
			approved, _ = m["approved"].(bool)
		}
	}
	if !approved {
		o.tracer.EndSpan(span, "skipped", "Plan not approved", "", nil)
		return map[string]any{"status": "skipped", "reason": "Plan not approved"}, nil
	}

	out, err := o.executor.Run(ctx, agent.ExecutorInput{
		Plan:             planFrom(ec),
		CallerPermission: o.caller,
		DryRun:           !o.liveExecution,
	})
	if err != nil {
		o.tracer.EndSpan(span, "failed", err.Error(), "", nil)
		return nil, err
	}

	if task := taskFrom(ec); task.Budget != nil {
		task.Budget.RecordToolCalls(len(out.ExecutedActions))
	}

	o.tracer.EndSpan(span, "success", "", "", map[string]any{
		"success_count": out.SuccessCount,
		"failure_count": out.FailureCount,
	})
	return out, nil
}

// nodeVerify never fails the workflow: verifier errors are folded
// into an "error" status result so the report stage still runs.
func (o *Orchestrator) nodeVerify(ctx context.Context, ec *graph.Context) (any, error) {
	span := o.spanStart("orchestrator", "verify", ec)
	task := taskFrom(ec)

	result := func() (r verify.Result) {
		defer func() {
			if rec := recover(); rec != nil {
				r = verify.Result{
					Verified: false,
					Status:   "error",
					Checks:   []verify.Check{},
					Notes:    fmt.Sprintf("Verification failed with error: %v", rec),
				}
			}
		}()
		return o.verifier.Verify(task)
	}()

	if task.Budget != nil {
		task.Budget.RecordToolCalls(result.ToolCallsMade)
	}
	ec.Set("verification", result)

	status := "success"
	if result.Status == "error" {
		status = "failed"
	}
	o.tracer.EndSpan(span, status, "", result.Notes, map[string]any{
		"verified": result.Verified,
		"status":   result.Status,
	})
	return result, nil
}

func (o *Orchestrator) nodeReport(ctx context.Context, ec *graph.Context) (any, error) {
	span := o.spanStart("orchestrator", "report", ec)
	task := taskFrom(ec)

	var triageOut agent.TriageOutput
	if v, ok := ec.NodeResult("triage"); ok {
		triageOut, _ = v.(agent.TriageOutput)
	}
	var invOut agent.InvestigationOutput
	if v, ok := ec.NodeResult("investigate"); ok {
		invOut, _ = v.(agent.InvestigationOutput)
	}
	var execOut agent.ExecutorOutput
	executed := false
	if v, ok := ec.NodeResult("execute"); ok {
		execOut, executed = v.(agent.ExecutorOutput)
	}
	var verification verify.Result
	if v, ok := ec.NodeResult("verify"); ok {
		verification, _ = v.(verify.Result)
	}

	evidence := evidenceFrom(ec)
	plan := planFrom(ec)

	var recommendations []string
	hypotheses := []string{}
	actionsPlanned := 0
	if plan != nil {
		hypotheses = plan.Hypotheses
		actionsPlanned = len(plan.Actions)
		for _, action := range plan.Actions {
			desc, _ := action.Args["description"].(string)
			if desc == "" {
				desc = action.ToolName
			}
			recommendations = append(recommendations, fmt.Sprintf("[%s] %s", action.RiskLevel, desc))
		}
	}

	status := "success"
	if !verification.Verified && executed && execOut.FailureCount > 0 {
		status = "partial"
	}

	usage := types.BudgetSnapshot{}
	if task.Budget != nil {
		usage = task.Budget.Snapshot()
	}
	metrics := map[string]any{
		"tokens_used":      usage.TokensUsed,
		"time_used":        usage.TimeUsed,
		"tool_calls_used":  usage.ToolCallsUsed,
		"evidence_count":   len(evidence),
		"actions_planned":  actionsPlanned,
		"actions_executed": execOut.SuccessCount,
	}

	report := &types.Report{
		TaskID:              task.TaskID,
		Summary:             buildSummary(task, triageOut, invOut, verification),
		RootCauseHypotheses: hypotheses,
		RecommendedActions:  recommendations,
		Evidence:            evidence,
		Plan:                plan,
		Metrics:             metrics,
		Status:              status,
		GeneratedAt:         time.Now().UTC(),
	}

	task.Status = types.TaskCompleted

	o.tracer.EndSpan(span, "success", "", "", map[string]any{"report_status": status})
	return report, nil
}

func buildSummary(task *types.Task, triage agent.TriageOutput, inv agent.InvestigationOutput, verification verify.Result) string {
	severity := triage.Severity
	if severity == "" {
		severity = "unknown"
	}
	category := triage.Category
	if category == "" {
		category = "unknown"
	}

	summary := fmt.Sprintf("Task %s: %s\n\n", task.TaskID, task.Goal)
	summary += fmt.Sprintf("Severity: %s, Category: %s\n\n", severity, category)

	if len(inv.KeyFindings) > 0 {
		summary += "Key Findings:\n"
		findings := inv.KeyFindings
		if len(findings) > 3 {
			findings = findings[:3]
		}
		for _, f := range findings {
			summary += fmt.Sprintf("- %s\n", f)
		}
	}

	if verification.Verified {
		summary += "\nVerification: Issue appears to be resolved."
	} else {
		summary += "\nVerification: Issue requires further monitoring."
	}
	return summary
}

func taskFrom(ec *graph.Context) *types.Task {
	v, _ := ec.Get("task")
	task, _ := v.(*types.Task)
	return task
}

func planFrom(ec *graph.Context) *types.Plan {
	v, _ := ec.Get("plan")
	plan, _ := v.(*types.Plan)
	return plan
}

func evidenceFrom(ec *graph.Context) []types.Evidence {
	v, _ := ec.Get("evidence")
	evidence, _ := v.([]types.Evidence)
	return evidence
}

func chargeTokens(task *types.Task, n int) {
	if task.Budget != nil {
		task.Budget.RecordTokens(n)
	}
}
