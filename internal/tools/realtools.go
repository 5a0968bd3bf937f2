package tools

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sentinel-ops/sentinel/internal/types"
)

// DataSources configures the live monitoring backends the real tools
// query: Prometheus for metrics, Loki for logs.
type DataSources struct {
	PrometheusURL string
	LokiURL       string
	Timeout       time.Duration
}

type realTools struct {
	cfg    DataSources
	client *http.Client
}

// RegisterRealTools registers query_metrics and query_logs backed by
// live Prometheus and Loki endpoints. Backend failures are returned
// in-band inside the result data, matching the mock tools' shape, so
// the investigation loop can treat a dead backend as low-confidence
// evidence instead of aborting.
func RegisterRealTools(r *Registry, cfg DataSources) error {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	rt := &realTools{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}

	specs := []*ToolSpec{
		{
			Name:        "query_metrics",
			Description: "Query metrics from Prometheus for a service",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"service":     map[string]any{"type": "string", "description": "Service name"},
					"metric":      map[string]any{"type": "string", "description": "Metric name (cpu_percent, memory_percent, etc.)"},
					"start_time":  map[string]any{"type": "string", "description": "Start time (ISO format, optional)"},
					"end_time":    map[string]any{"type": "string", "description": "End time (ISO format, optional)"},
					"aggregation": map[string]any{"type": "string", "description": "Aggregation method (avg, max, min)", "default": "avg"},
				},
				"required": []any{"service", "metric"},
			},
			RiskLevel:          types.RiskReadOnly,
			PermissionRequired: types.PermissionGuest,
			Handler:            rt.queryMetrics,
			Tags:               []string{"metrics", "monitoring", "prometheus"},
		},
		{
			Name:        "query_logs",
			Description: "Query logs from Loki for a service",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"service": map[string]any{"type": "string", "description": "Service name"},
					"level":   map[string]any{"type": "string", "description": "Log level (ERROR, WARN, INFO)", "default": "ERROR"},
					"limit":   map[string]any{"type": "integer", "description": "Maximum entries to return", "default": 100},
					"since":   map[string]any{"type": "string", "description": "Start time (ISO format, optional)"},
				},
				"required": []any{"service"},
			},
			RiskLevel:          types.RiskReadOnly,
			PermissionRequired: types.PermissionGuest,
			Handler:            rt.queryLogs,
			Tags:               []string{"logs", "monitoring", "loki"},
		},
	}
	for _, spec := range specs {
		if err := r.Register(spec); err != nil {
			return err
		}
	}
	return nil
}

// promQL maps the abstract metric names used throughout the pipeline
// to concrete PromQL. Unmapped metrics query the name as-is.
func promQL(service, metric string) string {
	switch metric {
	case "cpu_percent":
		return fmt.Sprintf(`avg(rate(container_cpu_usage_seconds_total{service=%q}[5m])) * 100`, service)
	case "memory_percent":
		return fmt.Sprintf(`avg(container_memory_usage_bytes{service=%q} / container_spec_memory_limit_bytes{service=%q}) * 100`, service, service)
	case "request_latency_p99":
		return fmt.Sprintf(`histogram_quantile(0.99, rate(http_request_duration_seconds_bucket{service=%q}[5m])) * 1000`, service)
	case "qps":
		return fmt.Sprintf(`sum(rate(http_requests_total{service=%q}[5m]))`, service)
	}
	return fmt.Sprintf(`%s{service=%q}`, metric, service)
}

func (rt *realTools) queryMetrics(args map[string]any) (map[string]any, error) {
	service, _ := args["service"].(string)
	metric, _ := args["metric"].(string)
	aggregation := stringArg(args, "aggregation", "avg")

	end := time.Now()
	start := end.Add(-time.Hour)
	if s, ok := args["start_time"].(string); ok && s != "" {
		if t, err := parseISOTime(s); err == nil {
			start = t
		}
	}
	if s, ok := args["end_time"].(string); ok && s != "" {
		if t, err := parseISOTime(s); err == nil {
			end = t
		}
	}

	params := url.Values{}
	params.Set("query", promQL(service, metric))
	params.Set("start", strconv.FormatInt(start.Unix(), 10))
	params.Set("end", strconv.FormatInt(end.Unix(), 10))
	params.Set("step", "60s")

	base := map[string]any{"service": service, "metric": metric, "data": []map[string]any{}}

	var resp struct {
		Status string `json:"status"`
		Error  string `json:"error"`
		Data   struct {
			Result []struct {
				Values [][2]any `json:"values"`
			} `json:"result"`
		} `json:"data"`
	}
	if err := rt.getJSON(rt.cfg.PrometheusURL+"/api/v1/query_range?"+params.Encode(), &resp); err != nil {
		base["error"] = fmt.Sprintf("Failed to query Prometheus: %v", err)
		return base, nil
	}
	if resp.Status != "success" {
		base["error"] = fmt.Sprintf("Prometheus query failed: %s", resp.Error)
		return base, nil
	}

	var data []map[string]any
	var values []float64
	for _, result := range resp.Data.Result {
		for _, pair := range result.Values {
			ts := toFloat(pair[0])
			raw, _ := pair[1].(string)
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				continue
			}
			data = append(data, map[string]any{
				"timestamp": time.Unix(int64(ts), 0).UTC().Format(time.RFC3339),
				"value":     v,
			})
			values = append(values, v)
		}
	}
	if len(data) == 0 {
		base["message"] = fmt.Sprintf("No data found for %s.%s", service, metric)
		return base, nil
	}

	base["data"] = data
	base["data_points"] = len(data)
	base["aggregation"] = map[string]any{aggregation: aggregate(values, aggregation)}
	return base, nil
}

func (rt *realTools) queryLogs(args map[string]any) (map[string]any, error) {
	service, _ := args["service"].(string)
	level := stringArg(args, "level", "ERROR")
	limit := intArg(args, "limit", 100)

	since := time.Now().Add(-time.Hour)
	if s, ok := args["since"].(string); ok && s != "" {
		if t, err := parseISOTime(s); err == nil {
			since = t
		}
	}

	logql := fmt.Sprintf(`{service=%q}`, service)
	if level != "" {
		logql += fmt.Sprintf(` |= %q`, level)
	}

	params := url.Values{}
	params.Set("query", logql)
	params.Set("start", strconv.FormatInt(since.UnixNano(), 10))
	params.Set("end", strconv.FormatInt(time.Now().UnixNano(), 10))
	params.Set("limit", strconv.Itoa(limit))
	params.Set("direction", "backward")

	base := map[string]any{"service": service, "level": level, "logs": []map[string]any{}, "total_entries": 0}

	var resp struct {
		Status string `json:"status"`
		Error  string `json:"error"`
		Data   struct {
			Result []struct {
				Values [][2]string `json:"values"`
			} `json:"result"`
		} `json:"data"`
	}
	if err := rt.getJSON(rt.cfg.LokiURL+"/loki/api/v1/query_range?"+params.Encode(), &resp); err != nil {
		base["error"] = fmt.Sprintf("Failed to query Loki: %v", err)
		return base, nil
	}
	if resp.Status != "success" {
		base["error"] = fmt.Sprintf("Loki query failed: %s", resp.Error)
		return base, nil
	}

	var logs []map[string]any
	for _, stream := range resp.Data.Result {
		for _, entry := range stream.Values {
			ns, err := strconv.ParseInt(entry[0], 10, 64)
			if err != nil {
				continue
			}
			line := entry[1]
			entryLevel, message := level, line
			var structured map[string]any
			if json.Unmarshal([]byte(line), &structured) == nil {
				if l, ok := structured["level"].(string); ok && l != "" {
					entryLevel = l
				}
				if m, ok := structured["message"].(string); ok && m != "" {
					message = m
				}
			}
			logs = append(logs, map[string]any{
				"timestamp": time.Unix(0, ns).UTC().Format(time.RFC3339),
				"level":     entryLevel,
				"message":   message,
				"count":     1,
			})
		}
	}
	if len(logs) > limit {
		logs = logs[:limit]
	}
	if logs == nil {
		logs = []map[string]any{}
	}

	base["logs"] = logs
	base["total_entries"] = len(logs)
	return base, nil
}

func (rt *realTools) getJSON(rawURL string, out any) error {
	resp, err := rt.client.Get(rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body[:min(len(body), 200)])))
	}
	return json.Unmarshal(body, out)
}

func parseISOTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

func aggregate(values []float64, how string) float64 {
	if len(values) == 0 {
		return 0
	}
	switch how {
	case "max":
		out := values[0]
		for _, v := range values[1:] {
			if v > out {
				out = v
			}
		}
		return out
	case "min":
		out := values[0]
		for _, v := range values[1:] {
			if v < out {
				out = v
			}
		}
		return out
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
