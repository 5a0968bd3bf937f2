// Package eval records completed runs as episodes and scores them.
// Episodes are self-contained JSON files, so a directory of runs can
// be re-scored or A/B compared long after the fact.
package eval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/sentinel-ops/sentinel/internal/types"
)

// Outcome summarizes how an episode's execution went.
type Outcome struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	TotalTimeSeconds float64 `json:"total_time_seconds"`
	TokensUsed       int     `json:"tokens_used"`
	ToolCalls        int     `json:"tool_calls"`

	EvidenceCount   int `json:"evidence_count"`
	HypothesesCount int `json:"hypotheses_count"`
	ActionsPlanned  int `json:"actions_planned"`
	ActionsExecuted int `json:"actions_executed"`

	ReportStatus string `json:"report_status"`
}

// Episode is the complete record of one task execution: input task,
// produced report, outcome summary and a pointer to the trace file.
type Episode struct {
	EpisodeID string    `json:"episode_id"`
	CreatedAt time.Time `json:"created_at"`

	Task    *types.Task   `json:"task"`
	Report  *types.Report `json:"report,omitempty"`
	Outcome *Outcome      `json:"outcome,omitempty"`

	TraceFile string         `json:"trace_file,omitempty"`
	Config    map[string]any `json:"config,omitempty"`
	Tags      []string       `json:"tags,omitempty"`
}

// FromExecution builds an episode from a finished run, deriving the
// outcome from the report's metrics.
func FromExecution(task *types.Task, report *types.Report, traceFile string, config map[string]any) *Episode {
	outcome := &Outcome{
		Success:          report.Status == "success",
		TotalTimeSeconds: metricFloat(report.Metrics, "time_used"),
		TokensUsed:       metricInt(report.Metrics, "tokens_used"),
		ToolCalls:        metricInt(report.Metrics, "tool_calls_used"),
		EvidenceCount:    metricInt(report.Metrics, "evidence_count"),
		HypothesesCount:  len(report.RootCauseHypotheses),
		ActionsPlanned:   metricInt(report.Metrics, "actions_planned"),
		ActionsExecuted:  metricInt(report.Metrics, "actions_executed"),
		ReportStatus:     report.Status,
	}
	if len(report.Errors) > 0 {
		outcome.Error = report.Errors[0]
	}

	return &Episode{
		EpisodeID: task.TaskID,
		CreatedAt: time.Now().UTC(),
		Task:      task,
		Report:    report,
		Outcome:   outcome,
		TraceFile: traceFile,
		Config:    config,
	}
}

// Save writes the episode as episode.json inside dir.
func (e *Episode) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create episode dir: %w", err)
	}
	path := filepath.Join(dir, "episode.json")
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal episode: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write episode: %w", err)
	}
	return path, nil
}

// LoadEpisode reads a single episode file.
func LoadEpisode(path string) (*Episode, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read episode: %w", err)
	}
	var ep Episode
	if err := json.Unmarshal(data, &ep); err != nil {
		return nil, fmt.Errorf("parse episode %s: %w", path, err)
	}
	return &ep, nil
}

// LoadEpisodes finds every episode.json under root, at any depth.
// Unreadable or malformed files are skipped.
func LoadEpisodes(root string) ([]*Episode, error) {
	pattern := filepath.Join(root, "**", "episode.json")
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob episodes: %w", err)
	}
	var episodes []*Episode
	for _, path := range matches {
		ep, err := LoadEpisode(path)
		if err != nil {
			continue
		}
		episodes = append(episodes, ep)
	}
	return episodes, nil
}

func metricInt(metrics map[string]any, key string) int {
	switch v := metrics[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func metricFloat(metrics map[string]any, key string) float64 {
	switch v := metrics[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}
