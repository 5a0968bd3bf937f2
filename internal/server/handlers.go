package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sentinel-ops/sentinel/internal/ingest"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"runs":   len(s.registry.List()),
	})
}

func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	var req SubmitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	if req.Source == "" {
		writeError(w, http.StatusBadRequest, "source is required (alert, ticket, chat or cron)")
		return
	}
	if req.Payload == nil {
		writeError(w, http.StatusBadRequest, "payload is required")
		return
	}
	if s.config.Runner == nil {
		writeError(w, http.StatusServiceUnavailable, "server has no workflow runner configured")
		return
	}

	task, err := ingest.Ingest(req.Payload, req.Source)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("ingest failed: %v", err))
		return
	}

	broadcaster := NewBroadcaster()
	ctx, cancel := context.WithCancelCause(s.baseCtx)

	rs := &RunState{
		TaskID:      task.TaskID,
		Source:      task.Source,
		Goal:        task.Goal,
		Broadcaster: broadcaster,
		Cancel:      cancel,
		StartedAt:   time.Now().UTC(),
	}

	if err := s.registry.Register(task.TaskID, rs); err != nil {
		cancel(nil)
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	// Launch the workflow in a background goroutine.
	go func() {
		defer broadcaster.Close()
		report, err := s.config.Runner(ctx, task, newEventSink(broadcaster))
		rs.SetResult(report, err)
		if err != nil {
			s.logger.Printf("run %s failed: %v", task.TaskID, err)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"task_id": task.TaskID,
		"status":  "accepted",
	})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "task_id is required")
		return
	}

	rs, ok := s.registry.Get(taskID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("task %s not found", taskID))
		return
	}

	writeJSON(w, http.StatusOK, rs.Status())
}

func (s *Server) handleTaskEvents(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "task_id is required")
		return
	}

	rs, ok := s.registry.Get(taskID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("task %s not found", taskID))
		return
	}

	WriteSSE(w, r, rs.Broadcaster)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "task_id is required")
		return
	}

	rs, ok := s.registry.Get(taskID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("task %s not found", taskID))
		return
	}

	rs.Cancel(fmt.Errorf("canceled via HTTP API"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "canceling"})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
