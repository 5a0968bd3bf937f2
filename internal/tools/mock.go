package tools

import (
	"fmt"

	"github.com/sentinel-ops/sentinel/internal/types"
)

// Canned datacenter state for demos and tests: auth-service is
// degraded with a CPU and latency spike shortly after a deployment,
// pointing at redis-cache connection timeouts.

var mockMetricsDB = map[string]map[string][]map[string]any{
	"auth-service": {
		"cpu_percent": {
			{"timestamp": "2024-01-20T14:15:00Z", "value": 35.2},
			{"timestamp": "2024-01-20T14:20:00Z", "value": 38.1},
			{"timestamp": "2024-01-20T14:23:00Z", "value": 95.7},
			{"timestamp": "2024-01-20T14:25:00Z", "value": 94.3},
			{"timestamp": "2024-01-20T14:30:00Z", "value": 92.8},
		},
		"memory_percent": {
			{"timestamp": "2024-01-20T14:15:00Z", "value": 62.1},
			{"timestamp": "2024-01-20T14:30:00Z", "value": 68.5},
		},
		"request_latency_p99": {
			{"timestamp": "2024-01-20T14:15:00Z", "value": 120.0},
			{"timestamp": "2024-01-20T14:20:00Z", "value": 135.0},
			{"timestamp": "2024-01-20T14:23:00Z", "value": 850.0},
			{"timestamp": "2024-01-20T14:30:00Z", "value": 780.0},
		},
		"qps": {
			{"timestamp": "2024-01-20T14:15:00Z", "value": 1250.0},
			{"timestamp": "2024-01-20T14:30:00Z", "value": 1200.0},
		},
	},
	"redis-cache": {
		"cpu_percent": {
			{"timestamp": "2024-01-20T14:15:00Z", "value": 15.2},
			{"timestamp": "2024-01-20T14:30:00Z", "value": 18.3},
		},
		"memory_percent": {
			{"timestamp": "2024-01-20T14:15:00Z", "value": 45.1},
			{"timestamp": "2024-01-20T14:30:00Z", "value": 47.2},
		},
	},
}

var mockLogsDB = map[string][]map[string]any{
	"auth-service": {
		{"timestamp": "2024-01-20T14:23:15Z", "level": "ERROR", "message": "Connection timeout to redis-cache:6379", "count": 45},
		{"timestamp": "2024-01-20T14:24:30Z", "level": "WARN", "message": "High CPU usage detected: 95.7%", "count": 1},
		{"timestamp": "2024-01-20T14:25:00Z", "level": "ERROR", "message": "Failed to acquire lock: timeout", "count": 23},
	},
	"redis-cache": {
		{"timestamp": "2024-01-20T14:22:00Z", "level": "INFO", "message": "Connected clients: 125", "count": 1},
	},
}

var mockTopology = map[string]any{
	"services": []map[string]any{
		{
			"name": "auth-service", "type": "application", "replicas": 3,
			"version": "v2.3.1", "dependencies": []string{"redis-cache", "postgres-db"},
			"health_status": "degraded",
		},
		{
			"name": "redis-cache", "type": "cache", "replicas": 2,
			"version": "7.0.5", "dependencies": []string{},
			"health_status": "healthy",
		},
		{
			"name": "postgres-db", "type": "database", "replicas": 1,
			"version": "14.5", "dependencies": []string{},
			"health_status": "healthy",
		},
	},
	"connections": []map[string]any{
		{"from": "auth-service", "to": "redis-cache", "protocol": "redis", "port": 6379},
		{"from": "auth-service", "to": "postgres-db", "protocol": "postgresql", "port": 5432},
	},
}

var mockChangeHistory = []map[string]any{
	{
		"timestamp": "2024-01-20T14:20:00Z", "type": "deployment", "service": "auth-service",
		"from_version": "v2.3.0", "to_version": "v2.3.1", "author": "deploy-bot",
		"description": "Release v2.3.1: Added connection pooling optimization", "status": "completed",
	},
	{
		"timestamp": "2024-01-20T10:15:00Z", "type": "config_change", "service": "redis-cache",
		"parameter": "maxmemory", "from_value": "2GB", "to_value": "4GB",
		"author": "ops-team", "status": "completed",
	},
	{
		"timestamp": "2024-01-19T16:30:00Z", "type": "deployment", "service": "postgres-db",
		"from_version": "14.4", "to_version": "14.5", "author": "dba-team",
		"description": "Security patch update", "status": "completed",
	},
}

func mockQueryMetrics(args map[string]any) (map[string]any, error) {
	service, _ := args["service"].(string)
	metric, _ := args["metric"].(string)
	aggregation := stringArg(args, "aggregation", "avg")

	data := mockMetricsDB[service][metric]
	if len(data) == 0 {
		return map[string]any{
			"service": service,
			"metric":  metric,
			"data":    []map[string]any{},
			"message": fmt.Sprintf("No data found for %s.%s", service, metric),
		}, nil
	}

	var sum, max, min float64
	for i, point := range data {
		v := toFloat(point["value"])
		sum += v
		if i == 0 || v > max {
			max = v
		}
		if i == 0 || v < min {
			min = v
		}
	}
	var agg float64
	switch aggregation {
	case "max":
		agg = max
	case "min":
		agg = min
	default:
		aggregation = "avg"
		agg = sum / float64(len(data))
	}

	return map[string]any{
		"service":     service,
		"metric":      metric,
		"data":        data,
		"aggregation": map[string]any{aggregation: agg},
		"data_points": len(data),
	}, nil
}

func mockQueryLogs(args map[string]any) (map[string]any, error) {
	service, _ := args["service"].(string)
	level := stringArg(args, "level", "ERROR")
	limit := intArg(args, "limit", 100)

	var logs []map[string]any
	for _, entry := range mockLogsDB[service] {
		if level != "" && entry["level"] != level {
			continue
		}
		logs = append(logs, entry)
		if len(logs) >= limit {
			break
		}
	}
	if logs == nil {
		logs = []map[string]any{}
	}

	return map[string]any{
		"service":       service,
		"level":         level,
		"logs":          logs,
		"total_entries": len(logs),
	}, nil
}

func mockQueryTopology(args map[string]any) (map[string]any, error) {
	service, _ := args["service"].(string)
	if service == "" {
		return mockTopology, nil
	}

	services := mockTopology["services"].([]map[string]any)
	var match map[string]any
	for _, s := range services {
		if s["name"] == service {
			match = s
			break
		}
	}
	if match == nil {
		names := make([]string, 0, len(services))
		for _, s := range services {
			names = append(names, s["name"].(string))
		}
		return map[string]any{
			"error":              fmt.Sprintf("Service %q not found", service),
			"available_services": names,
		}, nil
	}

	var related []map[string]any
	for _, conn := range mockTopology["connections"].([]map[string]any) {
		if conn["from"] == service || conn["to"] == service {
			related = append(related, conn)
		}
	}
	return map[string]any{"service": match, "connections": related}, nil
}

func mockChangeHistoryHandler(args map[string]any) (map[string]any, error) {
	service, _ := args["service"].(string)
	changeType, _ := args["change_type"].(string)
	sinceHours := intArg(args, "since_hours", 24)

	var changes []map[string]any
	for _, c := range mockChangeHistory {
		if service != "" && c["service"] != service {
			continue
		}
		if changeType != "" && c["type"] != changeType {
			continue
		}
		changes = append(changes, c)
	}
	if changes == nil {
		changes = []map[string]any{}
	}

	return map[string]any{
		"changes":     changes,
		"total_count": len(changes),
		"filter": map[string]any{
			"service":     orAll(service),
			"type":        orAll(changeType),
			"since_hours": sinceHours,
		},
	}, nil
}

func mockRestartService(args map[string]any) (map[string]any, error) {
	service, _ := args["service"].(string)
	return map[string]any{
		"service": service,
		"action":  "restart",
		"status":  "restarted",
		"message": fmt.Sprintf("Rolling restart of %s completed", service),
	}, nil
}

func mockScaleService(args map[string]any) (map[string]any, error) {
	service, _ := args["service"].(string)
	replicas := intArg(args, "replicas", 1)
	return map[string]any{
		"service":  service,
		"action":   "scale",
		"replicas": replicas,
		"status":   "scaled",
	}, nil
}

// RegisterMockTools registers the canned demo tools: four read-only
// query tools plus two write tools for exercising the dry-run gate and
// permission checks.
func RegisterMockTools(r *Registry) error {
	specs := []*ToolSpec{
		{
			Name:        "query_metrics",
			Description: "Query metrics (CPU, memory, latency, etc.) for a service",
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
			Handler:            mockQueryMetrics,
			Tags:               []string{"metrics", "monitoring", "read-only"},
		},
		{
			Name:        "query_logs",
			Description: "Query logs for a service with filtering",
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
			Handler:            mockQueryLogs,
			Tags:               []string{"logs", "monitoring", "read-only"},
		},
		{
			Name:        "query_topology",
			Description: "Query service topology and dependencies",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"service": map[string]any{"type": "string", "description": "Service name (optional, returns full topology if empty)"},
				},
			},
			RiskLevel:          types.RiskReadOnly,
			PermissionRequired: types.PermissionGuest,
			Handler:            mockQueryTopology,
			Tags:               []string{"topology", "architecture", "read-only"},
		},
		{
			Name:        "get_change_history",
			Description: "Get change history (deployments, config changes, etc.)",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"service":     map[string]any{"type": "string", "description": "Service name (optional filter)"},
					"change_type": map[string]any{"type": "string", "description": "Change type (deployment, config_change, etc.)"},
					"since_hours": map[string]any{"type": "integer", "description": "Look back window in hours", "default": 24},
				},
			},
			RiskLevel:          types.RiskReadOnly,
			PermissionRequired: types.PermissionGuest,
			Handler:            mockChangeHistoryHandler,
			Tags:               []string{"change", "history", "audit", "read-only"},
		},
		{
			Name:        "restart_service",
			Description: "Rolling restart of a service's replicas",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"service": map[string]any{"type": "string", "description": "Service name"},
					"reason":  map[string]any{"type": "string", "description": "Why the restart is needed"},
				},
				"required": []any{"service"},
			},
			RiskLevel:          types.RiskRiskyWrite,
			PermissionRequired: types.PermissionOperator,
			Handler:            mockRestartService,
			Tags:               []string{"remediation", "write"},
		},
		{
			Name:        "scale_service",
			Description: "Change a service's replica count",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"service":  map[string]any{"type": "string", "description": "Service name"},
					"replicas": map[string]any{"type": "integer", "description": "Target replica count"},
				},
				"required": []any{"service", "replicas"},
			},
			RiskLevel:          types.RiskSafeWrite,
			PermissionRequired: types.PermissionOperator,
			Handler:            mockScaleService,
			Tags:               []string{"remediation", "write"},
		},
	}

	for _, spec := range specs {
		if err := r.Register(spec); err != nil {
			return err
		}
	}
	return nil
}

func stringArg(args map[string]any, key, def string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return def
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}

func orAll(s string) string {
	if s == "" {
		return "all"
	}
	return s
}
