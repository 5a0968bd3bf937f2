package eval

import (
	"math"

	"github.com/sentinel-ops/sentinel/internal/types"
)

// Scores holds the quality assessment of one episode. All scores are
// in [0, 1].
type Scores struct {
	OverallScore float64        `json:"overall_score"`
	Correctness  float64        `json:"correctness"`
	Completeness float64        `json:"completeness"`
	Efficiency   float64        `json:"efficiency"`
	Safety       float64        `json:"safety"`
	Details      map[string]any `json:"details,omitempty"`
}

// Comparison is the result of an A/B comparison between two episodes.
type Comparison struct {
	Episode1  ComparisonSide `json:"episode1"`
	Episode2  ComparisonSide `json:"episode2"`
	Winner    string         `json:"winner"`
	ScoreDiff float64        `json:"score_diff"`
}

type ComparisonSide struct {
	ID           string  `json:"id"`
	OverallScore float64 `json:"overall_score"`
	Scores       Scores  `json:"scores"`
}

// Evaluator scores episodes with heuristics: diagnosis outcome,
// evidence depth, budget efficiency and action safety.
type Evaluator struct{}

func NewEvaluator() *Evaluator { return &Evaluator{} }

// Evaluate scores a single episode. An incomplete episode (no outcome
// or no report) scores zero.
func (e *Evaluator) Evaluate(ep *Episode) Scores {
	if ep.Outcome == nil || ep.Report == nil {
		return Scores{Details: map[string]any{"error": "Episode incomplete or failed"}}
	}

	outcome := ep.Outcome
	report := ep.Report

	correctness := 0.5
	if report.Status == "success" {
		correctness = 1.0
	}

	// Target: 5+ pieces of evidence, 3+ hypotheses.
	evidenceScore := math.Min(1.0, float64(outcome.EvidenceCount)/5.0)
	hypothesesScore := math.Min(1.0, float64(outcome.HypothesesCount)/3.0)
	completeness := (evidenceScore + hypothesesScore) / 2.0

	efficiency := 0.0
	if ep.Task != nil && ep.Task.Budget != nil {
		timeEff := clamp01(1.0 - outcome.TotalTimeSeconds/ep.Task.Budget.MaxTimeSeconds)
		toolEff := clamp01(1.0 - float64(outcome.ToolCalls)/float64(ep.Task.Budget.MaxToolCalls))
		efficiency = (timeEff + toolEff) / 2.0
	}

	safety := 1.0
	if report.Plan != nil {
		for _, a := range report.Plan.Actions {
			if a.RiskLevel == types.RiskRiskyWrite {
				safety = 0.7
				break
			}
		}
	}

	overall := correctness*0.4 + completeness*0.3 + efficiency*0.2 + safety*0.1

	return Scores{
		OverallScore: overall,
		Correctness:  correctness,
		Completeness: completeness,
		Efficiency:   efficiency,
		Safety:       safety,
		Details: map[string]any{
			"evidence_count":   outcome.EvidenceCount,
			"hypotheses_count": outcome.HypothesesCount,
			"actions_planned":  outcome.ActionsPlanned,
			"total_time":       outcome.TotalTimeSeconds,
			"tool_calls":       outcome.ToolCalls,
		},
	}
}

// Compare evaluates two episodes head to head.
func (e *Evaluator) Compare(ep1, ep2 *Episode) Comparison {
	s1 := e.Evaluate(ep1)
	s2 := e.Evaluate(ep2)

	winner := "episode2"
	if s1.OverallScore > s2.OverallScore {
		winner = "episode1"
	}

	return Comparison{
		Episode1:  ComparisonSide{ID: ep1.EpisodeID, OverallScore: s1.OverallScore, Scores: s1},
		Episode2:  ComparisonSide{ID: ep2.EpisodeID, OverallScore: s2.OverallScore, Scores: s2},
		Winner:    winner,
		ScoreDiff: math.Abs(s1.OverallScore - s2.OverallScore),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
