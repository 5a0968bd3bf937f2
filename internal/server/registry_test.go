package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sentinel-ops/sentinel/internal/types"
)

func newTestRunState(taskID string) (*RunState, context.Context) {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &RunState{
		TaskID:      taskID,
		Source:      "alert",
		Goal:        "Investigate alert",
		Broadcaster: NewBroadcaster(),
		Cancel:      cancel,
		StartedAt:   time.Now().UTC(),
	}, ctx
}

func TestRunRegistryRegisterAndGet(t *testing.T) {
	r := NewRunRegistry()
	rs, _ := newTestRunState("task-1")

	if err := r.Register("task-1", rs); err != nil {
		t.Fatalf("register: %v", err)
	}
	got, ok := r.Get("task-1")
	if !ok || got.TaskID != "task-1" {
		t.Fatalf("expected task-1, got %v (ok=%v)", got, ok)
	}
}

func TestRunRegistryDuplicateRegister(t *testing.T) {
	r := NewRunRegistry()
	rs, _ := newTestRunState("task-1")

	if err := r.Register("task-1", rs); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register("task-1", rs); err == nil {
		t.Fatal("expected error on duplicate register")
	}
}

func TestRunRegistryGetNotFound(t *testing.T) {
	r := NewRunRegistry()
	if _, ok := r.Get("missing"); ok {
		t.Fatal("expected miss for unknown task id")
	}
}

func TestRunRegistryCancelAll(t *testing.T) {
	r := NewRunRegistry()
	rs1, ctx1 := newTestRunState("task-1")
	rs2, ctx2 := newTestRunState("task-2")
	r.Register("task-1", rs1)
	r.Register("task-2", rs2)

	r.CancelAll("shutdown")

	for i, ctx := range []context.Context{ctx1, ctx2} {
		select {
		case <-ctx.Done():
		default:
			t.Fatalf("context %d not canceled", i+1)
		}
	}
	if cause := context.Cause(ctx1); cause == nil || cause.Error() != "shutdown" {
		t.Fatalf("expected cancel cause 'shutdown', got %v", cause)
	}
}

func TestRunStateStatusRunning(t *testing.T) {
	rs, _ := newTestRunState("task-1")

	sink := newEventSink(rs.Broadcaster)
	wf := sink.StartSpan("orchestrator", "workflow", "", "", nil)
	sink.StartSpan("orchestrator", "investigate", wf, "", nil)

	status := rs.Status()
	if status.State != "running" {
		t.Fatalf("expected running, got %s", status.State)
	}
	if status.CurrentStage != "investigate" {
		t.Fatalf("expected current stage investigate, got %q", status.CurrentStage)
	}
	if status.LastEvent != "span_start" {
		t.Fatalf("expected last event span_start, got %q", status.LastEvent)
	}
	if status.LastEventAt == nil {
		t.Fatal("expected last event timestamp")
	}
}

func TestRunStateStatusCompleted(t *testing.T) {
	rs, _ := newTestRunState("task-1")
	rs.SetResult(&types.Report{TaskID: "task-1", Status: "success"}, nil)

	status := rs.Status()
	if status.State != "completed" {
		t.Fatalf("expected completed, got %s", status.State)
	}
	if status.Report == nil || status.Report.Status != "success" {
		t.Fatalf("expected report in status, got %v", status.Report)
	}
	if status.CurrentStage != "" {
		t.Fatalf("completed run should not report a current stage, got %q", status.CurrentStage)
	}
}

func TestRunStateStatusFailed(t *testing.T) {
	rs, _ := newTestRunState("task-1")
	rs.SetResult(nil, errors.New("budget exceeded"))

	status := rs.Status()
	if status.State != "failed" {
		t.Fatalf("expected failed, got %s", status.State)
	}
	if status.FailureReason != "budget exceeded" {
		t.Fatalf("unexpected failure reason %q", status.FailureReason)
	}
}
