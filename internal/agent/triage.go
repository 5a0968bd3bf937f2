package agent

import (
	"context"
	"fmt"

	"github.com/sentinel-ops/sentinel/internal/llm"
	"github.com/sentinel-ops/sentinel/internal/tools"
	"github.com/sentinel-ops/sentinel/internal/types"
)

// TriageInput is the triage agent's structured input.
type TriageInput struct {
	Task *types.Task
}

// TriageOutput classifies a task and routes it.
type TriageOutput struct {
	Severity                   string          `json:"severity"`
	Category                   string          `json:"category"`
	RiskLevel                  types.RiskLevel `json:"risk_level"`
	RecommendedRoute           string          `json:"recommended_route"`
	Reasoning                  string          `json:"reasoning"`
	EstimatedInvestigationTime int             `json:"estimated_investigation_time"`
	PriorityScore              float64         `json:"priority_score"`
	TokensUsed                 int             `json:"tokens_used"`
}

// Triage classifies incoming tasks: severity, category, risk level and
// workflow route.
type Triage struct {
	base
}

func NewTriage(client llm.Client, registry *tools.Registry) *Triage {
	return &Triage{base{name: "triage-agent", client: client, registry: registry}}
}

const triageSystemPrompt = `You are a datacenter operations triage agent.

Your responsibilities:
1. Analyze incoming tasks (alerts, tickets, questions)
2. Classify severity, category, and risk level
3. Determine the appropriate workflow route
4. Estimate investigation time

Classification guidelines:
- Severity: low (informational), medium (degraded service), high (outage), critical (multi-service outage)
- Category: performance, availability, resource, security, configuration, etc.
- Risk Level: read_only (investigation only), safe_write (low-risk actions), risky_write (high-risk actions)

Output valid JSON with fields: severity, category, risk_level, recommended_route, reasoning, estimated_investigation_time, priority_score (0.0-1.0).`

// Run triages a task. A response that fails to parse yields the
// conservative default classification rather than an error; the
// task's risk level is updated in place on success.
func (a *Triage) Run(ctx context.Context, in TriageInput) (TriageOutput, error) {
	task := in.Task
	userMessage := fmt.Sprintf(`Triage the following task:

Task ID: %s
Source: %s
Goal: %s

Symptoms:
%s

Context:
%s

Constraints:
%s

Provide triage assessment in JSON format.`,
		task.TaskID, task.Source, task.Goal,
		marshalIndent(task.Symptoms), marshalIndent(task.Context), marshalIndent(task.Constraints))

	resp, err := a.client.Generate(ctx, []llm.Message{{Role: "user", Content: userMessage}}, triageSystemPrompt)
	if err != nil {
		return a.fallback(fmt.Sprintf("LLM call failed: %v. Using conservative defaults.", err), 0), nil
	}

	var raw struct {
		Severity                   string  `json:"severity"`
		Category                   string  `json:"category"`
		RiskLevel                  string  `json:"risk_level"`
		RecommendedRoute           string  `json:"recommended_route"`
		Reasoning                  string  `json:"reasoning"`
		EstimatedInvestigationTime int     `json:"estimated_investigation_time"`
		PriorityScore              float64 `json:"priority_score"`
	}
	if err := decodeJSON(resp.Content, &raw); err != nil {
		return a.fallback(fmt.Sprintf("Failed to parse LLM response: %v. Using conservative defaults.", err), resp.TokensUsed), nil
	}

	risk, err := types.ParseRiskLevel(normalizeRisk(raw.RiskLevel))
	if err != nil {
		risk = types.RiskReadOnly
	}
	out := TriageOutput{
		Severity:                   raw.Severity,
		Category:                   raw.Category,
		RiskLevel:                  risk,
		RecommendedRoute:           raw.RecommendedRoute,
		Reasoning:                  raw.Reasoning,
		EstimatedInvestigationTime: raw.EstimatedInvestigationTime,
		PriorityScore:              raw.PriorityScore,
		TokensUsed:                 resp.TokensUsed,
	}
	if out.Severity == "" {
		out.Severity = "medium"
	}
	if out.RecommendedRoute == "" {
		out.RecommendedRoute = "investigate_and_plan"
	}

	task.RiskLevel = out.RiskLevel
	return out, nil
}

func (a *Triage) fallback(reason string, tokens int) TriageOutput {
	return TriageOutput{
		Severity:                   "medium",
		Category:                   "unknown",
		RiskLevel:                  types.RiskReadOnly,
		RecommendedRoute:           "investigate_and_plan",
		Reasoning:                  reason,
		EstimatedInvestigationTime: 180,
		PriorityScore:              0.5,
		TokensUsed:                 tokens,
	}
}
