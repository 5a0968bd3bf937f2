package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sentinel-ops/sentinel/internal/types"
)

// RunState tracks a single running or completed workflow.
type RunState struct {
	TaskID      string
	Source      string
	Goal        string
	Broadcaster *Broadcaster
	Cancel      context.CancelCauseFunc
	StartedAt   time.Time

	mu     sync.Mutex
	report *types.Report
	err    error
	done   bool
}

// SetResult records the terminal outcome of the workflow.
func (rs *RunState) SetResult(report *types.Report, err error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.report = report
	rs.err = err
	rs.done = true
}

// Status returns the current run status for the HTTP API.
func (rs *RunState) Status() RunStatus {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	status := RunStatus{
		TaskID:    rs.TaskID,
		Source:    rs.Source,
		Goal:      rs.Goal,
		State:     "running",
		StartedAt: rs.StartedAt,
	}
	if rs.done {
		if rs.err != nil {
			status.State = "failed"
			status.FailureReason = rs.err.Error()
		} else {
			status.State = "completed"
			status.Report = rs.report
		}
	}

	// Extract the current stage from the latest trace events.
	if !rs.done && rs.Broadcaster != nil {
		history := rs.Broadcaster.History()
		for i := len(history) - 1; i >= 0; i-- {
			ev := history[i]
			if ev["event"] != "span_start" {
				continue
			}
			if name, ok := ev["name"].(string); ok && name != "" && name != "workflow" {
				status.CurrentStage = name
				break
			}
		}
		if len(history) > 0 {
			last := history[len(history)-1]
			if evt, ok := last["event"].(string); ok {
				status.LastEvent = evt
			}
			if ts, ok := last["ts"].(string); ok {
				if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
					status.LastEventAt = &t
				}
			}
		}
	}
	return status
}

// RunRegistry tracks all workflow runs managed by this server instance.
type RunRegistry struct {
	mu   sync.RWMutex
	runs map[string]*RunState
}

// NewRunRegistry creates a new empty registry.
func NewRunRegistry() *RunRegistry {
	return &RunRegistry{
		runs: make(map[string]*RunState),
	}
}

// Register adds a run to the registry. Returns error if the ID already exists.
func (r *RunRegistry) Register(taskID string, rs *RunState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[taskID]; exists {
		return fmt.Errorf("task %s already exists", taskID)
	}
	r.runs[taskID] = rs
	return nil
}

// Get returns a run by task ID, or nil and false if not found.
func (r *RunRegistry) Get(taskID string) (*RunState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rs, ok := r.runs[taskID]
	return rs, ok
}

// List returns all task IDs.
func (r *RunRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.runs))
	for id := range r.runs {
		ids = append(ids, id)
	}
	return ids
}

// CancelAll cancels all running workflows with the given reason.
func (r *RunRegistry) CancelAll(reason string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rs := range r.runs {
		if rs.Cancel != nil {
			rs.Cancel(fmt.Errorf("%s", reason))
		}
	}
}
