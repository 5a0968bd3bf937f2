package trace

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func TestRecorderSpanLifecycle(t *testing.T) {
	r, err := NewRecorder(t.TempDir())
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	id := r.StartSpan("orchestrator", "workflow", "", "task abc", map[string]any{"task_id": "abc"})
	if id == "" {
		t.Fatalf("StartSpan returned empty id")
	}
	r.EndSpan(id, "success", "", "report ready", map[string]any{"stages": 8})

	spans := r.Spans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	s := spans[0]
	if s.Status != "success" || s.EndTime == nil {
		t.Fatalf("span not closed: %+v", s)
	}
	if s.Metadata["task_id"] != "abc" || s.Metadata["stages"] != 8 {
		t.Fatalf("metadata not merged: %v", s.Metadata)
	}
}

func TestRecorderWritesJSONL(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRecorder(dir)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	id := r.StartSpan("tool", "query_metrics", "", "", nil)
	r.RecordEvent("tool", "call", "query_metrics invoked", id, nil)
	r.EndSpan(id, "failed", "timeout", "", nil)

	f, err := os.Open(r.Path())
	if err != nil {
		t.Fatalf("open trace file: %v", err)
	}
	defer f.Close()

	var types []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("invalid JSONL line %q: %v", sc.Text(), err)
		}
		types = append(types, rec["type"].(string))
	}
	want := []string{"span_start", "event", "span_end"}
	if len(types) != len(want) {
		t.Fatalf("got %d records, want %d", len(types), len(want))
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("record %d type = %q, want %q", i, types[i], want[i])
		}
	}
}

func TestEndUnknownSpanRecordsWarning(t *testing.T) {
	r, err := NewRecorder(t.TempDir())
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	r.EndSpan("no-such-span", "success", "", "", nil)
	events := r.Events()
	if len(events) != 1 || events[0].EventType != "warning" {
		t.Fatalf("expected a warning event, got %+v", events)
	}
}

func TestSummaryTruncation(t *testing.T) {
	r, err := NewRecorder(t.TempDir())
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	long := strings.Repeat("x", 2000)
	id := r.StartSpan("agent", "investigate", "", long, nil)
	s := r.Spans()[0]
	if len(s.InputSummary) > summaryLimit+len("... (truncated)") {
		t.Fatalf("input summary not truncated: %d chars", len(s.InputSummary))
	}
	if !strings.HasSuffix(s.InputSummary, "(truncated)") {
		t.Fatalf("truncated summary missing marker")
	}
	r.EndSpan(id, "success", "", "", nil)
}

func TestMetricsCounters(t *testing.T) {
	r, err := NewRecorder(t.TempDir())
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	a := r.StartSpan("agent", "triage", "", "", nil)
	b := r.StartSpan("tool", "query_logs", a, "", nil)
	r.EndSpan(b, "success", "", "", nil)
	r.EndSpan(a, "failed", "llm error", "", nil)
	r.RecordEvent("orchestrator", "budget", "tokens recorded", "", nil)

	m := r.GetMetrics()
	if m.TotalSpans != 2 || m.TotalEvents != 1 {
		t.Fatalf("metrics = %+v", m)
	}
	if m.SpansByComponent["agent"] != 1 || m.SpansByComponent["tool"] != 1 {
		t.Fatalf("spans by component = %v", m.SpansByComponent)
	}
	if m.SpansByStatus["success"] != 1 || m.SpansByStatus["failed"] != 1 {
		t.Fatalf("spans by status = %v", m.SpansByStatus)
	}
}
