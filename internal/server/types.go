package server

import (
	"time"

	"github.com/sentinel-ops/sentinel/internal/types"
)

// SubmitTaskRequest is the POST /tasks request body. The payload is the
// raw event from the upstream system (Alertmanager webhook, ticket,
// chat message, cron trigger) and is normalized by the ingest package.
type SubmitTaskRequest struct {
	// Source names the normalizer: alert, ticket, chat or cron. Required.
	Source string `json:"source"`

	// Payload is the raw event body. Required.
	Payload map[string]any `json:"payload"`
}

// RunStatus is returned by GET /tasks/{id}.
type RunStatus struct {
	TaskID        string        `json:"task_id"`
	Source        string        `json:"source"`
	Goal          string        `json:"goal"`
	State         string        `json:"state"`
	StartedAt     time.Time     `json:"started_at"`
	CurrentStage  string        `json:"current_stage,omitempty"`
	LastEvent     string        `json:"last_event,omitempty"`
	LastEventAt   *time.Time    `json:"last_event_at,omitempty"`
	FailureReason string        `json:"failure_reason,omitempty"`
	Report        *types.Report `json:"report,omitempty"`
}

// ErrorResponse is a standard error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
