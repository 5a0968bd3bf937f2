package eval

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sentinel-ops/sentinel/internal/types"
)

func sampleTask(id string) *types.Task {
	return &types.Task{
		TaskID: id,
		Source: "alert",
		Goal:   "Investigate latency",
		Budget: types.NewBudget(50000, 180, 20),
	}
}

func sampleReport(id, status string) *types.Report {
	return &types.Report{
		TaskID:              id,
		Status:              status,
		RootCauseHypotheses: []string{"deployment regression", "cache saturation", "connection pool exhaustion"},
		Metrics: map[string]any{
			"tokens_used":      1200,
			"time_used":        18.0,
			"tool_calls_used":  5,
			"evidence_count":   5,
			"actions_planned":  2,
			"actions_executed": 2,
		},
	}
}

func TestFromExecution(t *testing.T) {
	task := sampleTask("ep-1")
	ep := FromExecution(task, sampleReport("ep-1", "success"), "runs/ep-1/trace.jsonl", map[string]any{"provider": "mock"})

	if ep.EpisodeID != "ep-1" {
		t.Fatalf("episode id = %q", ep.EpisodeID)
	}
	o := ep.Outcome
	if !o.Success || o.ReportStatus != "success" {
		t.Fatalf("outcome = %+v", o)
	}
	if o.TokensUsed != 1200 || o.ToolCalls != 5 || o.EvidenceCount != 5 {
		t.Fatalf("outcome metrics = %+v", o)
	}
	if o.HypothesesCount != 3 {
		t.Fatalf("hypotheses = %d", o.HypothesesCount)
	}
	if o.TotalTimeSeconds != 18.0 {
		t.Fatalf("time = %v", o.TotalTimeSeconds)
	}
}

func TestEvaluateFullMarks(t *testing.T) {
	ep := FromExecution(sampleTask("ep-2"), sampleReport("ep-2", "success"), "", nil)
	scores := NewEvaluator().Evaluate(ep)

	if scores.Correctness != 1.0 {
		t.Fatalf("correctness = %v", scores.Correctness)
	}
	if scores.Completeness != 1.0 {
		t.Fatalf("completeness = %v", scores.Completeness)
	}
	if scores.Safety != 1.0 {
		t.Fatalf("safety = %v", scores.Safety)
	}
	if scores.OverallScore <= 0.8 || scores.OverallScore > 1.0 {
		t.Fatalf("overall = %v", scores.OverallScore)
	}
}

func TestEvaluatePenalizesRiskyActions(t *testing.T) {
	report := sampleReport("ep-3", "success")
	report.Plan = &types.Plan{Actions: []*types.Action{
		{ToolName: "restart_service", RiskLevel: types.RiskRiskyWrite},
	}}
	ep := FromExecution(sampleTask("ep-3"), report, "", nil)
	scores := NewEvaluator().Evaluate(ep)
	if scores.Safety != 0.7 {
		t.Fatalf("safety = %v, want 0.7", scores.Safety)
	}
}

func TestEvaluateIncompleteEpisode(t *testing.T) {
	scores := NewEvaluator().Evaluate(&Episode{EpisodeID: "broken"})
	if scores.OverallScore != 0 {
		t.Fatalf("overall = %v, want 0", scores.OverallScore)
	}
	if scores.Details["error"] == nil {
		t.Fatalf("details = %v", scores.Details)
	}
}

func TestCompare(t *testing.T) {
	good := FromExecution(sampleTask("ep-good"), sampleReport("ep-good", "success"), "", nil)
	bad := FromExecution(sampleTask("ep-bad"), sampleReport("ep-bad", "partial"), "", nil)

	cmp := NewEvaluator().Compare(good, bad)
	if cmp.Winner != "episode1" {
		t.Fatalf("winner = %q", cmp.Winner)
	}
	if cmp.ScoreDiff <= 0 {
		t.Fatalf("score diff = %v", cmp.ScoreDiff)
	}
}

func TestSaveAndLoadEpisodes(t *testing.T) {
	root := t.TempDir()

	ep1 := FromExecution(sampleTask("ep-a"), sampleReport("ep-a", "success"), "", nil)
	if _, err := ep1.Save(filepath.Join(root, "run-a")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	ep2 := FromExecution(sampleTask("ep-b"), sampleReport("ep-b", "partial"), "", nil)
	if _, err := ep2.Save(filepath.Join(root, "nested", "run-b")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// Malformed file is skipped, not fatal.
	junk := filepath.Join(root, "junk")
	if err := os.MkdirAll(junk, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(junk, "episode.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	episodes, err := LoadEpisodes(root)
	if err != nil {
		t.Fatalf("LoadEpisodes: %v", err)
	}
	if len(episodes) != 2 {
		t.Fatalf("loaded %d episodes, want 2", len(episodes))
	}
	ids := map[string]bool{}
	for _, ep := range episodes {
		ids[ep.EpisodeID] = true
	}
	if !ids["ep-a"] || !ids["ep-b"] {
		t.Fatalf("ids = %v", ids)
	}
}
