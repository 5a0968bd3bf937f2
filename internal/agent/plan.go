package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/sentinel-ops/sentinel/internal/llm"
	"github.com/sentinel-ops/sentinel/internal/tools"
	"github.com/sentinel-ops/sentinel/internal/types"
)

// PlannerInput is the planner agent's structured input.
type PlannerInput struct {
	Task     *types.Task
	Evidence []types.Evidence
}

// PlannerOutput is the generated plan plus the model's reasoning.
type PlannerOutput struct {
	Plan       *types.Plan `json:"plan"`
	Reasoning  string      `json:"reasoning"`
	TokensUsed int         `json:"tokens_used"`
}

// Planner turns evidence into a remediation plan: hypotheses, actions
// with risk levels, rollback steps and an approval flag.
type Planner struct {
	base
}

func NewPlanner(client llm.Client, registry *tools.Registry) *Planner {
	return &Planner{base{name: "planner-agent", client: client, registry: registry}}
}

const plannerSystemPrompt = `You are an operations planning agent for datacenter infrastructure.

Based on investigation evidence, generate a remediation plan that includes:
1. Hypotheses about the root cause
2. Recommended actions (with risk levels)
3. Expected effect of the plan
4. Identified risks
5. Whether approval is required

Prefer read_only or safe_write actions. Avoid risky_write unless critical.

Output valid JSON with fields:
- hypotheses: list[str]
- recommended_actions: list[{action_type, target, description, risk}]
- expected_effect: str
- risks: list[str]
- approval_required: bool`

type rawPlan struct {
	Hypotheses         []string `json:"hypotheses"`
	RecommendedActions []struct {
		ActionType  string `json:"action_type"`
		Target      string `json:"target"`
		Description string `json:"description"`
		Risk        string `json:"risk"`
	} `json:"recommended_actions"`
	ExpectedEffect   string   `json:"expected_effect"`
	Risks            []string `json:"risks"`
	ApprovalRequired bool     `json:"approval_required"`
	Reasoning        string   `json:"reasoning"`
}

func (a *Planner) Run(ctx context.Context, in PlannerInput) (PlannerOutput, error) {
	raw := a.generate(ctx, in)

	plan := a.parsePlan(raw.rawPlan)
	plan.RollbackPlan = rollbackFor(plan)

	reasoning := raw.Reasoning
	if reasoning == "" {
		reasoning = "Plan generated based on evidence analysis and operational best practices."
	}
	return PlannerOutput{Plan: plan, Reasoning: reasoning, TokensUsed: raw.tokens}, nil
}

type generated struct {
	rawPlan
	tokens int
}

func (a *Planner) generate(ctx context.Context, in PlannerInput) generated {
	var evidenceSummary strings.Builder
	for _, e := range in.Evidence {
		fmt.Fprintf(&evidenceSummary, "Evidence from %s (confidence: %.2f):\n%s\n\n", e.Source, e.Confidence, marshalIndent(e.Data))
	}

	userMessage := fmt.Sprintf(`Task: %s

Symptoms:
%s

Constraints:
%s

Investigation Evidence:
%s
Generate a remediation plan.`,
		in.Task.Goal, marshalIndent(in.Task.Symptoms), marshalIndent(in.Task.Constraints), evidenceSummary.String())

	resp, err := a.client.Generate(ctx, []llm.Message{{Role: "user", Content: userMessage}}, plannerSystemPrompt)
	if err != nil {
		return generated{rawPlan: fallbackPlan()}
	}
	var raw rawPlan
	if err := decodeJSON(resp.Content, &raw); err != nil {
		return generated{rawPlan: fallbackPlan(), tokens: resp.TokensUsed}
	}
	return generated{rawPlan: raw, tokens: resp.TokensUsed}
}

func fallbackPlan() rawPlan {
	return rawPlan{
		Hypotheses: []string{"Unable to determine root cause, needs manual investigation"},
		RecommendedActions: []struct {
			ActionType  string `json:"action_type"`
			Target      string `json:"target"`
			Description string `json:"description"`
			Risk        string `json:"risk"`
		}{
			{ActionType: "query_metrics", Target: "all", Description: "Continue monitoring for pattern changes", Risk: "READ_ONLY"},
		},
		ExpectedEffect:   "N/A",
		Risks:            []string{"Insufficient evidence for automated action"},
		ApprovalRequired: false,
	}
}

// parsePlan converts the model's plan into the typed form. Proposed
// actions naming a registered tool get their args validated against
// the tool's schema; a mismatch is recorded as a plan risk so the
// approval step sees it.
func (a *Planner) parsePlan(raw rawPlan) *types.Plan {
	actions := make([]*types.Action, 0, len(raw.RecommendedActions))
	risks := append([]string(nil), raw.Risks...)

	for _, ra := range raw.RecommendedActions {
		riskStr := normalizeRisk(ra.Risk)
		risk, err := types.ParseRiskLevel(riskStr)
		if err != nil {
			risk = types.RiskReadOnly
		}
		toolName := ra.ActionType
		if toolName == "" {
			toolName = "unknown"
		}
		args := map[string]any{
			"target":      ra.Target,
			"description": ra.Description,
		}
		if ra.Target != "" {
			args["service"] = ra.Target
		}

		if spec := a.registry.Get(toolName); spec != nil {
			if err := spec.ValidateArgs(args); err != nil {
				risks = append(risks, fmt.Sprintf("Action %s has arguments that fail schema validation: %v", toolName, err))
			}
		}

		actions = append(actions, &types.Action{
			ToolName:         toolName,
			Args:             args,
			Description:      ra.Description,
			RiskLevel:        risk,
			RequiresApproval: risk != types.RiskReadOnly,
			DryRun:           true,
		})
	}

	confidence := 0.3
	if len(raw.Hypotheses) > 0 {
		confidence = 0.7
	}

	return &types.Plan{
		Hypotheses:               raw.Hypotheses,
		Actions:                  actions,
		ExpectedEffect:           raw.ExpectedEffect,
		Risks:                    risks,
		ApprovalRequired:         raw.ApprovalRequired,
		Confidence:               confidence,
		EstimatedDurationSeconds: len(actions) * 30,
	}
}

// rollbackFor generates a rollback step for each risky write in the
// forward plan.
func rollbackFor(plan *types.Plan) []*types.Action {
	var rollback []*types.Action
	for _, action := range plan.Actions {
		if action.RiskLevel != types.RiskRiskyWrite {
			continue
		}
		rollback = append(rollback, &types.Action{
			ToolName:         "rollback_" + action.ToolName,
			Args:             map[string]any{"original_action": action.ToolName},
			RiskLevel:        types.RiskRiskyWrite,
			RequiresApproval: true,
			DryRun:           true,
		})
	}
	return rollback
}
