package verify

import (
	"strings"
	"testing"

	"github.com/sentinel-ops/sentinel/internal/tools"
	"github.com/sentinel-ops/sentinel/internal/types"
)

func newRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	if err := tools.RegisterMockTools(r); err != nil {
		t.Fatalf("RegisterMockTools: %v", err)
	}
	return r
}

func TestMockModeAlwaysVerifies(t *testing.T) {
	v := New(newRegistry(t), types.PermissionOperator, false)
	res := v.Verify(&types.Task{Symptoms: map[string]any{"service": "auth-service"}})
	if !res.Verified || res.Status != "improved" {
		t.Fatalf("mock mode got verified=%v status=%q", res.Verified, res.Status)
	}
	if len(res.Checks) != 1 || res.Checks[0]["type"] != "mock" {
		t.Fatalf("mock mode checks = %v", res.Checks)
	}
}

func TestNoServiceIsUnknown(t *testing.T) {
	v := New(newRegistry(t), types.PermissionOperator, true)
	res := v.Verify(&types.Task{Symptoms: map[string]any{"metric": "cpu_percent"}})
	if res.Verified || res.Status != "unknown" {
		t.Fatalf("got verified=%v status=%q, want unverified unknown", res.Verified, res.Status)
	}
	if res.Notes != "No service specified for verification" {
		t.Fatalf("notes = %q", res.Notes)
	}
}

func TestHealthyServicePasses(t *testing.T) {
	v := New(newRegistry(t), types.PermissionOperator, true)
	res := v.Verify(&types.Task{Symptoms: map[string]any{
		"service":    "redis-cache",
		"metric":     "cpu_percent",
		"alert_name": "HighCPU",
	}})
	if !res.Verified || res.Status != "improved" {
		t.Fatalf("got verified=%v status=%q notes=%q", res.Verified, res.Status, res.Notes)
	}
	// cpu metric check plus the error-log check.
	if len(res.Checks) != 2 {
		t.Fatalf("checks = %d, want 2", len(res.Checks))
	}
	if res.ToolCallsMade != 2 {
		t.Fatalf("tool calls = %d, want 2", res.ToolCallsMade)
	}
}

func TestLatencySpikeStillFailing(t *testing.T) {
	v := New(newRegistry(t), types.PermissionOperator, true)
	res := v.Verify(&types.Task{Symptoms: map[string]any{
		"service":    "auth-service",
		"metric":     "request_latency_p99",
		"alert_name": "HighLatency",
	}})
	if res.Verified {
		t.Fatal("expected verification failure for degraded service")
	}
	// latency average is well above 200ms, error logs stay under the
	// threshold, so exactly one of two checks fails.
	if res.Status != "unchanged" {
		t.Fatalf("status = %q, want unchanged", res.Status)
	}
	if !strings.Contains(res.Notes, "1 of 2 checks failed") {
		t.Fatalf("notes = %q", res.Notes)
	}
}

// newCannedRegistry registers query_metrics/query_logs handlers that
// return fixed averages per metric and a fixed error-log count.
func newCannedRegistry(t *testing.T, averages map[string]float64, errorEntries int) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	err := r.Register(&tools.ToolSpec{
		Name:               "query_metrics",
		Description:        "canned metric averages",
		RiskLevel:          types.RiskReadOnly,
		PermissionRequired: types.PermissionGuest,
		Handler: func(args map[string]any) (map[string]any, error) {
			metric, _ := args["metric"].(string)
			return map[string]any{
				"aggregation": map[string]any{"avg": averages[metric]},
			}, nil
		},
	})
	if err != nil {
		t.Fatalf("register query_metrics: %v", err)
	}
	err = r.Register(&tools.ToolSpec{
		Name:               "query_logs",
		Description:        "canned error logs",
		RiskLevel:          types.RiskReadOnly,
		PermissionRequired: types.PermissionGuest,
		Handler: func(args map[string]any) (map[string]any, error) {
			return map[string]any{"total_entries": errorEntries}, nil
		},
	})
	if err != nil {
		t.Fatalf("register query_logs: %v", err)
	}
	return r
}

func TestNoisyErrorLogsFailTheLogCheck(t *testing.T) {
	r := newCannedRegistry(t, map[string]float64{"cpu_percent": 40}, 7)
	v := New(r, types.PermissionOperator, true)
	res := v.Verify(&types.Task{Symptoms: map[string]any{
		"service":    "auth-service",
		"metric":     "cpu_percent",
		"alert_name": "HighCPU",
	}})

	if res.Verified {
		t.Fatal("expected verification failure on noisy error logs")
	}
	// Only the log check fails, so the overall status stays unchanged.
	if res.Status != "unchanged" {
		t.Fatalf("status = %q, want unchanged", res.Status)
	}
	var logCheck Check
	for _, c := range res.Checks {
		if c["type"] == "logs" {
			logCheck = c
		}
	}
	if logCheck == nil {
		t.Fatalf("no log check in %v", res.Checks)
	}
	if logCheck["passed"] != false || logCheck["error_count"] != 7 {
		t.Fatalf("log check = %v", logCheck)
	}
	if !strings.Contains(res.Notes, "1 of 2 checks failed") {
		t.Fatalf("notes = %q", res.Notes)
	}
}

func TestMajorityFailuresReportDegraded(t *testing.T) {
	r := newCannedRegistry(t, map[string]float64{
		"cpu_percent":         95.7,
		"request_latency_p99": 850,
	}, 12)
	v := New(r, types.PermissionOperator, true)
	res := v.Verify(&types.Task{Symptoms: map[string]any{
		"service":    "auth-service",
		"metric":     "cpu_percent",
		"alert_name": "HighCPUAndLatency",
	}})

	if res.Verified {
		t.Fatal("expected verification failure when everything is on fire")
	}
	if res.Status != "degraded" {
		t.Fatalf("status = %q, want degraded", res.Status)
	}
	if !strings.Contains(res.Notes, "3 of 3 checks failed") {
		t.Fatalf("notes = %q", res.Notes)
	}
	if res.ToolCallsMade != 3 {
		t.Fatalf("tool calls = %d, want 3", res.ToolCallsMade)
	}
}

func TestMetricsToCheckDedupesAndOrders(t *testing.T) {
	task := &types.Task{Symptoms: map[string]any{
		"metric":     "cpu_percent",
		"alert_name": "HighCPUAndLatency",
	}}
	got := metricsToCheck(task)
	want := []string{"cpu_percent", "request_latency_p99"}
	if len(got) != len(want) {
		t.Fatalf("metrics = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("metrics = %v, want %v", got, want)
		}
	}
}

func TestEvaluateThreshold(t *testing.T) {
	cases := []struct {
		value, threshold float64
		op               string
		want             bool
	}{
		{79.9, 80, "lt", true},
		{80.0, 80, "lt", false},
		{81.0, 80, "gt", true},
		{80.005, 80, "eq", true},
		{80.5, 80, "eq", false},
		{80.0, 80, "le", true},
		{80.0, 80, "ge", true},
		{80.0, 80, "bogus", false},
	}
	for _, c := range cases {
		if got := evaluateThreshold(c.value, c.threshold, c.op); got != c.want {
			t.Fatalf("evaluateThreshold(%v, %v, %q) = %v, want %v", c.value, c.threshold, c.op, got, c.want)
		}
	}
}

func TestUnknownMetricRulePasses(t *testing.T) {
	v := New(newRegistry(t), types.PermissionOperator, true)
	check := v.checkMetric("auth-service", "qps")
	if check["passed"] != true {
		t.Fatalf("check without rule should pass, got %v", check)
	}
}
