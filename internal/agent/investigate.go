package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sentinel-ops/sentinel/internal/llm"
	"github.com/sentinel-ops/sentinel/internal/tools"
	"github.com/sentinel-ops/sentinel/internal/types"
)

// InvestigationInput is the investigation agent's structured input.
type InvestigationInput struct {
	Task             *types.Task
	CallerPermission types.PermissionLevel
}

// InvestigationOutput is the evidence gathered plus the analysis of it.
type InvestigationOutput struct {
	Evidence      []types.Evidence `json:"evidence"`
	KeyFindings   []string         `json:"key_findings"`
	Confidence    float64          `json:"confidence"`
	NextSteps     []string         `json:"next_steps"`
	ToolCallsMade int              `json:"tool_calls_made"`
	TokensUsed    int              `json:"tokens_used"`
}

// Investigation gathers evidence with read-only tools. In ReAct mode
// the model picks each next tool call; otherwise a fixed rule-based
// tool sequence runs. Either way the collected evidence is analyzed
// into key findings at the end.
type Investigation struct {
	base
	UseReactMode  bool
	MaxIterations int
}

func NewInvestigation(client llm.Client, registry *tools.Registry) *Investigation {
	return &Investigation{
		base:          base{name: "investigation-agent", client: client, registry: registry},
		UseReactMode:  true,
		MaxIterations: 5,
	}
}

func (a *Investigation) Run(ctx context.Context, in InvestigationInput) (InvestigationOutput, error) {
	perm := in.CallerPermission
	if perm == "" {
		perm = types.PermissionOperator
	}

	var evidence []types.Evidence
	var thinkTokens int
	if a.UseReactMode {
		evidence, thinkTokens = a.reactInvestigation(ctx, in.Task, perm)
	} else {
		evidence = a.ruleBasedInvestigation(in.Task, perm)
	}

	analysis, analysisTokens := a.analyzeEvidence(ctx, in.Task, evidence)

	return InvestigationOutput{
		Evidence:      evidence,
		KeyFindings:   analysis.KeyFindings,
		Confidence:    analysis.Confidence,
		NextSteps:     analysis.NextSteps,
		ToolCallsMade: len(evidence),
		TokensUsed:    thinkTokens + analysisTokens,
	}, nil
}

type reactDecision struct {
	Reasoning  string         `json:"reasoning"`
	ShouldStop bool           `json:"should_stop"`
	ToolName   string         `json:"tool_name"`
	ToolArgs   map[string]any `json:"tool_args"`
}

// reactInvestigation runs the think/act/observe loop. Each iteration
// the model either names the next tool or stops; failed tool calls
// become low-confidence evidence instead of aborting the loop.
func (a *Investigation) reactInvestigation(ctx context.Context, task *types.Task, perm types.PermissionLevel) ([]types.Evidence, int) {
	var evidence []types.Evidence
	tokens := 0

	for iteration := 0; iteration < a.MaxIterations; iteration++ {
		decision, used := a.thinkNextAction(ctx, task, evidence)
		tokens += used
		if decision.ShouldStop || decision.ToolName == "" {
			break
		}

		result := a.registry.Call(decision.ToolName, decision.ToolArgs, perm, false)
		ev := types.Evidence{
			Source:    decision.ToolName,
			Timestamp: time.Now(),
			Notes:     decision.Reasoning,
		}
		if result.Success {
			ev.Data = result.Data
			ev.Confidence = 0.8
		} else {
			ev.Data = map[string]any{"error": result.Error}
			ev.Confidence = 0.1
			ev.Notes = fmt.Sprintf("Tool call failed: %s", result.Error)
		}
		evidence = append(evidence, ev)
	}
	return evidence, tokens
}

func (a *Investigation) thinkNextAction(ctx context.Context, task *types.Task, evidence []types.Evidence) (reactDecision, int) {
	systemPrompt := fmt.Sprintf(`You are an investigation agent for datacenter operations.

Your task is to collect evidence by calling tools iteratively (ReAct pattern).

Available tools:
%s

For each iteration, output JSON with:
{
  "reasoning": "Why I need this information...",
  "should_stop": false,
  "tool_name": "query_metrics",
  "tool_args": {"service": "auth-service", "metric": "cpu_percent", "aggregation": "max"}
}

When you have enough evidence, set should_stop=true and omit tool_name/tool_args.

Guidelines:
1. Start with topology and change history
2. Then query relevant metrics based on symptoms
3. Check logs for errors
4. Stop when you have sufficient evidence to form hypotheses`, a.formatTools())

	userMessage := fmt.Sprintf(`Task: %s

Symptoms:
%s

Evidence collected so far (%d items):
%s

What should I do next?`, task.Goal, marshalIndent(task.Symptoms), len(evidence), formatEvidenceNotes(evidence))

	resp, err := a.client.Generate(ctx, []llm.Message{{Role: "user", Content: userMessage}}, systemPrompt)
	if err != nil {
		return reactDecision{Reasoning: fmt.Sprintf("LLM call failed: %v", err), ShouldStop: true}, 0
	}
	var decision reactDecision
	if err := decodeJSON(resp.Content, &decision); err != nil {
		return reactDecision{Reasoning: "Failed to parse LLM response", ShouldStop: true}, resp.TokensUsed
	}
	return decision, resp.TokensUsed
}

// ruleBasedInvestigation is the fixed fallback sequence: topology,
// change history, symptom-relevant metrics, then error logs.
func (a *Investigation) ruleBasedInvestigation(task *types.Task, perm types.PermissionLevel) []types.Evidence {
	service := "auth-service"
	if s, ok := task.Symptoms["service"].(string); ok && s != "" {
		service = s
	}
	symptomsText := strings.ToLower(fmt.Sprintf("%v", task.Symptoms))

	type call struct {
		tool  string
		args  map[string]any
		notes string
	}
	calls := []call{
		{"query_topology", map[string]any{"service": service}, "Get service topology and dependencies"},
		{"get_change_history", map[string]any{"service": service, "since_hours": 24}, "Check recent changes (deployments, config)"},
	}
	if strings.Contains(symptomsText, "cpu") || strings.Contains(symptomsText, "latency") {
		calls = append(calls,
			call{"query_metrics", map[string]any{"service": service, "metric": "cpu_percent", "aggregation": "max"}, "Check CPU metrics"},
			call{"query_metrics", map[string]any{"service": service, "metric": "request_latency_p99", "aggregation": "max"}, "Check latency metrics"},
		)
	}
	calls = append(calls, call{"query_logs", map[string]any{"service": service, "level": "ERROR", "limit": 50}, "Check error logs"})

	var evidence []types.Evidence
	for _, c := range calls {
		result := a.registry.Call(c.tool, c.args, perm, false)
		ev := types.Evidence{Source: c.tool, Timestamp: time.Now(), Notes: c.notes}
		if result.Success {
			ev.Data = result.Data
			ev.Confidence = 0.8
		} else {
			ev.Data = map[string]any{"error": result.Error}
			ev.Confidence = 0.1
			ev.Notes = fmt.Sprintf("Tool call failed: %s", result.Error)
		}
		evidence = append(evidence, ev)
	}
	return evidence
}

type evidenceAnalysis struct {
	KeyFindings []string `json:"key_findings"`
	Confidence  float64  `json:"confidence"`
	NextSteps   []string `json:"next_steps"`
}

func (a *Investigation) analyzeEvidence(ctx context.Context, task *types.Task, evidence []types.Evidence) (evidenceAnalysis, int) {
	systemPrompt := `You are an investigation analyst for datacenter operations.

Analyze the collected evidence and provide:
1. Key findings (list of important observations)
2. Confidence level (0.0-1.0)
3. Recommended next steps

Output valid JSON with fields: key_findings, confidence, next_steps.`

	var sb strings.Builder
	for _, e := range evidence {
		fmt.Fprintf(&sb, "Evidence from %s:\n%s\nNotes: %s\n\n", e.Source, marshalIndent(e.Data), e.Notes)
	}

	userMessage := fmt.Sprintf(`Task: %s

Symptoms:
%s

Evidence collected:
%s
Analyze this evidence and provide structured findings.`, task.Goal, marshalIndent(task.Symptoms), sb.String())

	resp, err := a.client.Generate(ctx, []llm.Message{{Role: "user", Content: userMessage}}, systemPrompt)
	if err != nil {
		return a.fallbackAnalysis(evidence), 0
	}
	var analysis evidenceAnalysis
	if err := decodeJSON(resp.Content, &analysis); err != nil {
		return a.fallbackAnalysis(evidence), resp.TokensUsed
	}
	return analysis, resp.TokensUsed
}

// fallbackAnalysis distills findings from the evidence notes when the
// model's analysis is unusable.
func (a *Investigation) fallbackAnalysis(evidence []types.Evidence) evidenceAnalysis {
	var findings []string
	for _, e := range evidence {
		if e.Confidence > 0.5 && e.Notes != "" {
			findings = append(findings, e.Notes)
		}
		if len(findings) == 5 {
			break
		}
	}
	return evidenceAnalysis{
		KeyFindings: findings,
		Confidence:  0.6,
		NextSteps:   []string{"Generate remediation plan based on findings"},
	}
}

func (a *Investigation) formatTools() string {
	var sb strings.Builder
	for _, spec := range a.registry.List(tools.ListFilter{}) {
		fmt.Fprintf(&sb, "- %s: %s\n", spec.Name, spec.Description)
		fmt.Fprintf(&sb, "  Args: %s\n", marshalIndent(spec.InputSchema))
	}
	return sb.String()
}

func formatEvidenceNotes(evidence []types.Evidence) string {
	if len(evidence) == 0 {
		return "(No evidence collected yet)"
	}
	var sb strings.Builder
	for i, e := range evidence {
		fmt.Fprintf(&sb, "%d. %s: %s\n", i+1, e.Source, e.Notes)
	}
	return sb.String()
}
