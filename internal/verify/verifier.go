// Package verify checks whether a remediation actually fixed anything
// by re-querying metrics and error logs through the tool registry and
// comparing them against threshold rules.
package verify

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sentinel-ops/sentinel/internal/tools"
	"github.com/sentinel-ops/sentinel/internal/types"
)

// Rule is one threshold check for a metric.
type Rule struct {
	Metric      string  `json:"metric"`
	Threshold   float64 `json:"threshold"`
	Operator    string  `json:"operator"`
	Description string  `json:"description"`
}

// Check is one verification probe's outcome. Kept schemaless because
// metric checks and log checks carry different fields.
type Check map[string]any

// Result is the verifier's overall verdict.
type Result struct {
	Verified      bool    `json:"verified"`
	Status        string  `json:"status"`
	Checks        []Check `json:"checks"`
	Notes         string  `json:"notes"`
	ToolCallsMade int     `json:"tool_calls_made"`
}

// defaultRules covers the metrics the mock and Prometheus tools expose.
var defaultRules = map[string]Rule{
	"cpu_percent": {
		Metric: "cpu_percent", Threshold: 80.0, Operator: "lt",
		Description: "CPU usage should be below 80%",
	},
	"memory_percent": {
		Metric: "memory_percent", Threshold: 85.0, Operator: "lt",
		Description: "Memory usage should be below 85%",
	},
	"request_latency_p99": {
		Metric: "request_latency_p99", Threshold: 200.0, Operator: "lt",
		Description: "P99 latency should be below 200ms",
	},
}

const errorLogThreshold = 5

// Verifier re-queries the monitoring tools after execution. With
// UseReal disabled it returns a canned pass, the behavior wanted in
// offline demos.
type Verifier struct {
	Registry *tools.Registry
	Caller   types.PermissionLevel
	UseReal  bool
}

func New(registry *tools.Registry, caller types.PermissionLevel, useReal bool) *Verifier {
	if caller == "" {
		caller = types.PermissionOperator
	}
	return &Verifier{Registry: registry, Caller: caller, UseReal: useReal}
}

// Verify checks whether the task's symptoms are gone. The symptom's
// service name anchors every query; without one verification cannot
// run and reports status "unknown".
func (v *Verifier) Verify(task *types.Task) Result {
	if !v.UseReal {
		return mockResult()
	}

	service, _ := task.Symptoms["service"].(string)
	if service == "" {
		return Result{
			Verified: false,
			Status:   "unknown",
			Checks:   []Check{},
			Notes:    "No service specified for verification",
		}
	}

	metrics := metricsToCheck(task)

	var checks []Check
	calls := 0
	allPassed := true
	for _, metric := range metrics {
		check := v.checkMetric(service, metric)
		calls++
		checks = append(checks, check)
		if check["passed"] != true {
			allPassed = false
		}
	}

	logCheck := v.checkErrorLogs(service)
	calls++
	checks = append(checks, logCheck)
	if logCheck["passed"] != true {
		allPassed = false
	}

	if allPassed {
		return Result{
			Verified:      true,
			Status:        "improved",
			Checks:        checks,
			Notes:         "All verification checks passed. Issue appears to be resolved.",
			ToolCallsMade: calls,
		}
	}

	failed := 0
	for _, c := range checks {
		if c["passed"] != true {
			failed++
		}
	}
	status := "unchanged"
	if float64(failed) > float64(len(checks))/2 {
		status = "degraded"
	}
	return Result{
		Verified:      false,
		Status:        status,
		Checks:        checks,
		Notes:         fmt.Sprintf("%d of %d checks failed. Issue may not be fully resolved.", failed, len(checks)),
		ToolCallsMade: calls,
	}
}

// metricsToCheck derives which metrics to verify from the symptoms:
// the symptom's own metric when a rule covers it, plus any metric the
// alert name hints at. Order is deterministic, duplicates removed.
func metricsToCheck(task *types.Task) []string {
	var out []string
	seen := map[string]bool{}
	add := func(m string) {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}

	metricName, _ := task.Symptoms["metric"].(string)
	if _, ok := defaultRules[metricName]; ok {
		add(metricName)
	}

	alertName, _ := task.Symptoms["alert_name"].(string)
	hint := strings.ToLower(alertName + " " + metricName)
	if strings.Contains(hint, "cpu") {
		add("cpu_percent")
	}
	if strings.Contains(hint, "latency") {
		add("request_latency_p99")
	}
	if strings.Contains(hint, "memory") {
		add("memory_percent")
	}
	return out
}

func (v *Verifier) checkMetric(service, metricName string) Check {
	rule, ok := defaultRules[metricName]
	if !ok {
		return Check{
			"type":    "metric",
			"metric":  metricName,
			"passed":  true,
			"message": fmt.Sprintf("No verification rule defined for %s", metricName),
		}
	}

	end := time.Now()
	start := end.Add(-5 * time.Minute)
	res := v.Registry.Call("query_metrics", map[string]any{
		"service":     service,
		"metric":      metricName,
		"start_time":  start.UTC().Format(time.RFC3339),
		"end_time":    end.UTC().Format(time.RFC3339),
		"aggregation": "avg",
	}, v.Caller, false)

	if !res.Success {
		return Check{
			"type": "metric", "metric": metricName, "passed": false,
			"message":       fmt.Sprintf("Failed to query %s: %s", metricName, res.Error),
			"current_value": nil, "threshold": rule.Threshold,
		}
	}
	if errMsg, bad := res.Data["error"].(string); bad {
		return Check{
			"type": "metric", "metric": metricName, "passed": false,
			"message":       fmt.Sprintf("Failed to query %s: %s", metricName, errMsg),
			"current_value": nil, "threshold": rule.Threshold,
		}
	}

	current := 0.0
	if agg, ok := res.Data["aggregation"].(map[string]any); ok {
		current = toFloat(agg["avg"])
	}
	passed := evaluateThreshold(current, rule.Threshold, rule.Operator)

	return Check{
		"type": "metric", "metric": metricName, "passed": passed,
		"message":       rule.Description,
		"current_value": current,
		"threshold":     rule.Threshold,
		"operator":      rule.Operator,
	}
}

func (v *Verifier) checkErrorLogs(service string) Check {
	since := time.Now().Add(-5 * time.Minute)
	res := v.Registry.Call("query_logs", map[string]any{
		"service": service,
		"level":   "ERROR",
		"limit":   10,
		"since":   since.UTC().Format(time.RFC3339),
	}, v.Caller, false)

	if !res.Success {
		return Check{
			"type": "logs", "passed": false,
			"message":     fmt.Sprintf("Failed to query logs: %s", res.Error),
			"error_count": nil,
		}
	}
	if errMsg, bad := res.Data["error"].(string); bad {
		return Check{
			"type": "logs", "passed": false,
			"message":     fmt.Sprintf("Failed to query logs: %s", errMsg),
			"error_count": nil,
		}
	}

	errorCount := int(toFloat(res.Data["total_entries"]))
	// Under one error per minute over the window counts as quiet.
	passed := errorCount < errorLogThreshold

	return Check{
		"type": "logs", "passed": passed,
		"message":     fmt.Sprintf("Error log count: %d in last 5 minutes", errorCount),
		"error_count": errorCount,
		"threshold":   errorLogThreshold,
	}
}

func evaluateThreshold(value, threshold float64, operator string) bool {
	switch operator {
	case "lt":
		return value < threshold
	case "gt":
		return value > threshold
	case "eq":
		return math.Abs(value-threshold) < 0.01
	case "le":
		return value <= threshold
	case "ge":
		return value >= threshold
	}
	return false
}

func mockResult() Result {
	return Result{
		Verified: true,
		Status:   "improved",
		Checks: []Check{{
			"type":    "mock",
			"passed":  true,
			"message": "Mock verification",
		}},
		Notes: "Mock verification: symptoms appear to be resolved (simulated)",
	}
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
