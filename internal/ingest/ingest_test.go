package ingest

import (
	"strings"
	"testing"
)

func TestIngestUnknownSource(t *testing.T) {
	if _, err := Ingest(map[string]any{}, "email"); err == nil {
		t.Fatal("expected error for unknown source")
	}
}

func TestAlertFromAlertmanagerWebhook(t *testing.T) {
	raw := map[string]any{
		"alerts": []any{
			map[string]any{
				"labels": map[string]any{
					"alertname": "HighLatency",
					"service":   "auth-service",
					"severity":  "high",
				},
				"annotations": map[string]any{
					"summary": "Diagnose high latency and recommend remediation",
				},
			},
		},
		"commonLabels": map[string]any{"alertname": "HighLatency"},
		"receiver":     "sentinel",
	}
	task, err := Ingest(raw, SourceAlert)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if task.Source != "alert" {
		t.Fatalf("source = %q", task.Source)
	}
	if task.Goal != "Diagnose high latency and recommend remediation" {
		t.Fatalf("goal = %q", task.Goal)
	}
	if task.Symptoms["service"] != "auth-service" || task.Symptoms["alertname"] != "HighLatency" {
		t.Fatalf("symptoms = %v", task.Symptoms)
	}
	if task.Context["receiver"] != "sentinel" {
		t.Fatalf("context = %v", task.Context)
	}
	if !strings.HasPrefix(task.TaskID, "alert-") {
		t.Fatalf("task id = %q", task.TaskID)
	}
	if task.Budget.MaxTokens != 50000 || task.Budget.MaxTimeSeconds != 180 || task.Budget.MaxToolCalls != 20 {
		t.Fatalf("default budget = %+v", task.Budget)
	}
}

func TestAlertFallsBackToAlertName(t *testing.T) {
	raw := map[string]any{
		"commonLabels": map[string]any{"alertname": "DiskFull"},
	}
	task, err := Ingest(raw, SourceAlert)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if task.Goal != "DiskFull" {
		t.Fatalf("goal = %q", task.Goal)
	}
}

func TestBudgetOverride(t *testing.T) {
	raw := map[string]any{
		"commonLabels": map[string]any{"alertname": "X"},
		"budget": map[string]any{
			"max_tokens":     float64(1000),
			"max_tool_calls": 5,
		},
	}
	task, err := Ingest(raw, SourceAlert)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if task.Budget.MaxTokens != 1000 || task.Budget.MaxToolCalls != 5 {
		t.Fatalf("budget = %+v", task.Budget)
	}
	// Unspecified ceilings keep their defaults.
	if task.Budget.MaxTimeSeconds != 180 {
		t.Fatalf("max time = %v", task.Budget.MaxTimeSeconds)
	}
}

func TestTicketUsesExternalID(t *testing.T) {
	raw := map[string]any{
		"key":         "OPS-1234",
		"title":       "auth-service returning 500s",
		"description": "Spike in 5xx after the 14:20 deploy",
		"priority":    "P1",
		"project":     "OPS",
		"labels":      []any{"incident"},
	}
	task, err := Ingest(raw, SourceTicket)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if task.TaskID != "OPS-1234" {
		t.Fatalf("task id = %q", task.TaskID)
	}
	if task.Goal != "auth-service returning 500s" {
		t.Fatalf("goal = %q", task.Goal)
	}
	if task.Symptoms["priority"] != "P1" {
		t.Fatalf("symptoms = %v", task.Symptoms)
	}
	if task.Context["project"] != "OPS" {
		t.Fatalf("context = %v", task.Context)
	}
}

func TestTicketDefaults(t *testing.T) {
	task, err := Ingest(map[string]any{}, SourceTicket)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if task.Goal != "Resolve ticket" {
		t.Fatalf("goal = %q", task.Goal)
	}
	if !strings.HasPrefix(task.TaskID, "ticket-") {
		t.Fatalf("task id = %q", task.TaskID)
	}
}

func TestChatExtractsMessage(t *testing.T) {
	raw := map[string]any{
		"text":    "why is auth-service slow?",
		"user":    "sam",
		"channel": "#ops",
	}
	task, err := Ingest(raw, SourceChat)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if task.Symptoms["message"] != "why is auth-service slow?" {
		t.Fatalf("symptoms = %v", task.Symptoms)
	}
	if task.Symptoms["user"] != "sam" {
		t.Fatalf("symptoms = %v", task.Symptoms)
	}
	if task.Context["channel"] != "#ops" {
		t.Fatalf("context = %v", task.Context)
	}
	if _, ok := task.Context["text"]; ok {
		t.Fatal("message field leaked into context")
	}
	if !strings.HasPrefix(task.Goal, "Answer or act on: why is auth-service slow?") {
		t.Fatalf("goal = %q", task.Goal)
	}
}

func TestChatClipsLongGoal(t *testing.T) {
	long := strings.Repeat("x", 500)
	task, err := Ingest(map[string]any{"message": long}, SourceChat)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(task.Goal) != len("Answer or act on: ")+200 {
		t.Fatalf("goal length = %d", len(task.Goal))
	}
}

func TestCronJob(t *testing.T) {
	raw := map[string]any{
		"job_name": "nightly-capacity-check",
		"cron":     "0 2 * * *",
		"args":     map[string]any{"scope": "all"},
		"owner":    "ops",
	}
	task, err := Ingest(raw, SourceCron)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if task.Goal != "Run scheduled job: nightly-capacity-check" {
		t.Fatalf("goal = %q", task.Goal)
	}
	if task.Symptoms["schedule"] != "0 2 * * *" {
		t.Fatalf("symptoms = %v", task.Symptoms)
	}
	if task.Context["owner"] != "ops" {
		t.Fatalf("context = %v", task.Context)
	}
}

func TestTaskIDsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		task, err := Ingest(map[string]any{"message": "hi"}, SourceChat)
		if err != nil {
			t.Fatalf("Ingest: %v", err)
		}
		if seen[task.TaskID] {
			t.Fatalf("duplicate task id %q", task.TaskID)
		}
		seen[task.TaskID] = true
	}
}
