// Package trace records spans and point-in-time events for a run as
// JSONL. Recording is best effort: a failed write never fails the
// operation being traced.
package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sink receives spans and events from the pipeline. Implementations
// must be safe for concurrent use and must never return errors to the
// caller; tracing is observability, not control flow.
type Sink interface {
	StartSpan(component, name, parentSpanID, inputSummary string, metadata map[string]any) string
	EndSpan(spanID, status, errMsg, outputSummary string, metadata map[string]any)
	RecordEvent(component, eventType, message, spanID string, metadata map[string]any) string
}

// Span is one unit of work with a start and an end.
type Span struct {
	SpanID        string         `json:"span_id"`
	ParentSpanID  string         `json:"parent_span_id,omitempty"`
	Component     string         `json:"component"`
	Name          string         `json:"name"`
	StartTime     time.Time      `json:"start_time"`
	EndTime       *time.Time     `json:"end_time,omitempty"`
	Status        string         `json:"status"`
	Error         string         `json:"error,omitempty"`
	InputSummary  string         `json:"input_summary,omitempty"`
	OutputSummary string         `json:"output_summary,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Event is a point-in-time observation, optionally tied to a span.
type Event struct {
	EventID   string         `json:"event_id"`
	SpanID    string         `json:"span_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Component string         `json:"component"`
	EventType string         `json:"event_type"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Metrics aggregates counters across a recorder's lifetime.
type Metrics struct {
	TotalSpans       int            `json:"total_spans"`
	TotalEvents      int            `json:"total_events"`
	SpansByComponent map[string]int `json:"spans_by_component"`
	SpansByStatus    map[string]int `json:"spans_by_status"`
}

const summaryLimit = 500

// Recorder writes spans and events to <dir>/trace.jsonl and keeps
// them in memory for inspection after the run.
type Recorder struct {
	mu     sync.Mutex
	path   string
	spans  map[string]*Span
	order  []string
	events []Event

	metrics Metrics
}

// NewRecorder creates the output directory if needed. Directory
// creation is the one failure surfaced to the caller; everything after
// is best effort.
func NewRecorder(dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create trace dir: %w", err)
	}
	return &Recorder{
		path:  filepath.Join(dir, "trace.jsonl"),
		spans: map[string]*Span{},
		metrics: Metrics{
			SpansByComponent: map[string]int{},
			SpansByStatus:    map[string]int{},
		},
	}, nil
}

func (r *Recorder) StartSpan(component, name, parentSpanID, inputSummary string, metadata map[string]any) string {
	span := &Span{
		SpanID:       uuid.NewString(),
		ParentSpanID: parentSpanID,
		Component:    component,
		Name:         name,
		StartTime:    time.Now(),
		Status:       "running",
		InputSummary: truncate(inputSummary),
		Metadata:     metadata,
	}

	r.mu.Lock()
	r.spans[span.SpanID] = span
	r.order = append(r.order, span.SpanID)
	r.metrics.TotalSpans++
	r.metrics.SpansByComponent[component]++
	r.mu.Unlock()

	r.writeRecord(map[string]any{"type": "span_start", "span": span})
	return span.SpanID
}

func (r *Recorder) EndSpan(spanID, status, errMsg, outputSummary string, metadata map[string]any) {
	r.mu.Lock()
	span, ok := r.spans[spanID]
	if !ok {
		r.mu.Unlock()
		r.RecordEvent("tracer", "warning", fmt.Sprintf("attempted to end unknown span: %s", spanID), "", nil)
		return
	}
	end := time.Now()
	span.EndTime = &end
	span.Status = status
	span.Error = errMsg
	span.OutputSummary = truncate(outputSummary)
	if metadata != nil {
		if span.Metadata == nil {
			span.Metadata = map[string]any{}
		}
		for k, v := range metadata {
			span.Metadata[k] = v
		}
	}
	r.metrics.SpansByStatus[status]++
	r.mu.Unlock()

	r.writeRecord(map[string]any{"type": "span_end", "span": span})
}

func (r *Recorder) RecordEvent(component, eventType, message, spanID string, metadata map[string]any) string {
	ev := Event{
		EventID:   uuid.NewString(),
		SpanID:    spanID,
		Timestamp: time.Now(),
		Component: component,
		EventType: eventType,
		Message:   message,
		Metadata:  metadata,
	}

	r.mu.Lock()
	r.events = append(r.events, ev)
	r.metrics.TotalEvents++
	r.mu.Unlock()

	r.writeRecord(map[string]any{"type": "event", "event": ev})
	return ev.EventID
}

// Spans returns all spans in start order.
func (r *Recorder) Spans() []Span {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Span, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.spans[id])
	}
	return out
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) GetMetrics() Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := Metrics{
		TotalSpans:       r.metrics.TotalSpans,
		TotalEvents:      r.metrics.TotalEvents,
		SpansByComponent: map[string]int{},
		SpansByStatus:    map[string]int{},
	}
	for k, v := range r.metrics.SpansByComponent {
		m.SpansByComponent[k] = v
	}
	for k, v := range r.metrics.SpansByStatus {
		m.SpansByStatus[k] = v
	}
	return m
}

// Path returns the trace file location.
func (r *Recorder) Path() string { return r.path }

func (r *Recorder) writeRecord(record map[string]any) {
	data, err := json.Marshal(record)
	if err != nil {
		return
	}
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.Write(append(data, '\n'))
}

func truncate(s string) string {
	if len(s) <= summaryLimit {
		return s
	}
	return s[:summaryLimit] + "... (truncated)"
}

// Nop discards everything. Useful when tracing is disabled.
type Nop struct{}

func (Nop) StartSpan(component, name, parentSpanID, inputSummary string, metadata map[string]any) string {
	return ""
}
func (Nop) EndSpan(spanID, status, errMsg, outputSummary string, metadata map[string]any) {}
func (Nop) RecordEvent(component, eventType, message, spanID string, metadata map[string]any) string {
	return ""
}
