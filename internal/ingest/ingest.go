// Package ingest normalizes raw inputs from different sources into
// tasks. Input shapes are deliberately loose: known fields are pulled
// into the task and the remainder lands in symptoms or context.
package ingest

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sentinel-ops/sentinel/internal/types"
)

// Sources accepted by Ingest.
const (
	SourceAlert  = "alert"
	SourceTicket = "ticket"
	SourceChat   = "chat"
	SourceCron   = "cron"
)

type normalizer func(raw map[string]any) *types.Task

var normalizers = map[string]normalizer{
	SourceAlert:  normalizeAlert,
	SourceTicket: normalizeTicket,
	SourceChat:   normalizeChat,
	SourceCron:   normalizeCron,
}

// Ingest converts a raw JSON-like payload from a webhook, API or CLI
// into a normalized task.
func Ingest(raw map[string]any, source string) (*types.Task, error) {
	n, ok := normalizers[source]
	if !ok {
		return nil, fmt.Errorf("unknown source %q: must be one of alert, ticket, chat, cron", source)
	}
	return n(raw), nil
}

func newTaskID(prefix string) string {
	return prefix + "-" + ulid.Make().String()
}

func defaultBudget() *types.Budget {
	return types.NewBudget(50000, 180, 20)
}

// budgetFrom returns the default budget with any ceilings in
// raw["budget"] overriding it.
func budgetFrom(raw map[string]any) *types.Budget {
	b := defaultBudget()
	override, ok := raw["budget"].(map[string]any)
	if !ok {
		return b
	}
	if v, ok := asInt(override["max_tokens"]); ok {
		b.MaxTokens = v
	}
	if v, ok := asFloat(override["max_time_seconds"]); ok {
		b.MaxTimeSeconds = v
	}
	if v, ok := asInt(override["max_tool_calls"]); ok {
		b.MaxToolCalls = v
	}
	return b
}

// normalizeAlert handles Prometheus Alertmanager and PagerDuty style
// webhook payloads: labels and annotations become symptoms.
func normalizeAlert(raw map[string]any) *types.Task {
	first := raw
	if alerts, ok := raw["alerts"].([]any); ok && len(alerts) > 0 {
		if m, ok := alerts[0].(map[string]any); ok {
			first = m
		}
	}

	labels, ok := first["labels"].(map[string]any)
	if !ok {
		if labels, ok = raw["commonLabels"].(map[string]any); !ok {
			labels = first
		}
	}
	annotations, ok := first["annotations"].(map[string]any)
	if !ok {
		if annotations, ok = raw["commonAnnotations"].(map[string]any); !ok {
			annotations = map[string]any{}
		}
	}

	symptoms := map[string]any{}
	for k, v := range labels {
		symptoms[k] = v
	}
	for k, v := range annotations {
		symptoms[k] = v
	}

	context := map[string]any{}
	for _, key := range []string{"receiver", "groupLabels", "externalURL"} {
		if v, ok := raw[key]; ok && v != nil {
			context[key] = v
		}
	}

	goal := stringOr(annotations["summary"], "")
	if goal == "" {
		goal = stringOr(symptoms["alertname"], "Investigate alert")
	}

	return newTask(raw, "alert", SourceAlert, symptoms, context, goal)
}

// normalizeTicket handles Jira and ServiceNow style tickets.
func normalizeTicket(raw map[string]any) *types.Task {
	title := firstString(raw, "title", "summary", "subject")
	desc := firstString(raw, "description", "body", "content", "text")

	symptoms := map[string]any{}
	setIfNotEmpty(symptoms, "title", title)
	setIfNotEmpty(symptoms, "description", desc)
	for _, key := range []string{"priority", "status", "assignee"} {
		if v, ok := raw[key]; ok && v != nil {
			symptoms[key] = v
		}
	}

	context := map[string]any{}
	if v, ok := raw["project"]; ok && v != nil {
		context["project"] = v
	}
	if v, ok := raw["labels"]; ok && v != nil {
		context["labels"] = v
	} else if v, ok := raw["tags"]; ok && v != nil {
		context["labels"] = v
	}
	if v := firstString(raw, "created", "createdAt"); v != "" {
		context["created"] = v
	}
	if v := firstString(raw, "updated", "updatedAt"); v != "" {
		context["updated"] = v
	}

	goal := firstString(raw, "goal")
	if goal == "" {
		goal = title
	}
	if goal == "" {
		goal = "Resolve ticket"
	}

	task := newTask(raw, "ticket", SourceTicket, symptoms, context, goal)
	if id := firstString(raw, "task_id", "id", "key"); id != "" {
		task.TaskID = id
	}
	return task
}

// normalizeChat handles free-form requests from chat integrations.
func normalizeChat(raw map[string]any) *types.Task {
	message := firstString(raw, "message", "query", "text", "question", "prompt", "content", "body")

	symptoms := map[string]any{"message": message}
	if v := firstString(raw, "user", "userId"); v != "" {
		symptoms["user"] = v
	}

	skip := map[string]bool{
		"message": true, "query": true, "text": true, "question": true,
		"prompt": true, "content": true, "body": true,
		"task_id": true, "budget": true, "constraints": true, "goal": true,
	}
	context := map[string]any{}
	for k, v := range raw {
		if !skip[k] {
			context[k] = v
		}
	}

	goal := firstString(raw, "goal")
	if goal == "" {
		goal = "Answer or act on: " + clip(message, 200)
	}

	return newTask(raw, "chat", SourceChat, symptoms, context, goal)
}

// normalizeCron handles scheduled job triggers.
func normalizeCron(raw map[string]any) *types.Task {
	job := firstString(raw, "job", "job_name", "name")
	symptoms := map[string]any{"job": job}
	if v := firstString(raw, "schedule", "cron"); v != "" {
		symptoms["schedule"] = v
	}
	if v, ok := raw["params"]; ok && v != nil {
		symptoms["params"] = v
	} else if v, ok := raw["args"]; ok && v != nil {
		symptoms["params"] = v
	}

	skip := map[string]bool{
		"task_id": true, "budget": true, "constraints": true, "goal": true,
		"job": true, "job_name": true, "name": true,
		"schedule": true, "cron": true, "params": true, "args": true,
	}
	context := map[string]any{}
	for k, v := range raw {
		if !skip[k] {
			context[k] = v
		}
	}

	goal := firstString(raw, "goal")
	if goal == "" {
		if job == "" {
			job = "cron"
		}
		goal = "Run scheduled job: " + job
	}

	return newTask(raw, "cron", SourceCron, symptoms, context, goal)
}

func newTask(raw map[string]any, idPrefix, source string, symptoms, context map[string]any, goal string) *types.Task {
	taskID := firstString(raw, "task_id")
	if taskID == "" {
		taskID = newTaskID(idPrefix)
	}
	constraints, _ := raw["constraints"].(map[string]any)

	return &types.Task{
		TaskID:      taskID,
		Source:      source,
		Goal:        goal,
		Symptoms:    symptoms,
		Context:     context,
		Constraints: constraints,
		RiskLevel:   types.RiskReadOnly,
		Status:      types.TaskPending,
		CreatedAt:   time.Now().UTC(),
		Budget:      budgetFrom(raw),
	}
}

func firstString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := raw[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func stringOr(v any, def string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}

func setIfNotEmpty(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
