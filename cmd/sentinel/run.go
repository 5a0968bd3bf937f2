package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/sentinel-ops/sentinel/internal/config"
	"github.com/sentinel-ops/sentinel/internal/eval"
	"github.com/sentinel-ops/sentinel/internal/ingest"
	"github.com/sentinel-ops/sentinel/internal/llm"
	"github.com/sentinel-ops/sentinel/internal/orchestrate"
	"github.com/sentinel-ops/sentinel/internal/policy"
	"github.com/sentinel-ops/sentinel/internal/tools"
	"github.com/sentinel-ops/sentinel/internal/trace"
	"github.com/sentinel-ops/sentinel/internal/types"
)

type runFlags struct {
	scenario      string
	input         string
	source        string
	message       string
	outputDir     string
	configPath    string
	useRealTools  bool
	prometheusURL string
	lokiURL       string
	execute       bool
}

func newRunCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a workflow from a scenario, an input file or a chat message",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.scenario, "scenario", "", "demo scenario: latency-spike or cpu-thrash")
	cmd.Flags().StringVar(&flags.input, "input", "", "input JSON file, or '-' for stdin (requires --source)")
	cmd.Flags().StringVar(&flags.source, "source", "", "source type for --input: alert, ticket, chat or cron")
	cmd.Flags().StringVar(&flags.message, "message", "", "free-form question, run as a chat task")
	cmd.Flags().StringVar(&flags.outputDir, "output-dir", "", "output directory (default ./runs/<timestamp>)")
	cmd.Flags().StringVar(&flags.configPath, "config", "", "path to YAML config file")
	cmd.Flags().BoolVar(&flags.useRealTools, "use-real-tools", false, "query live Prometheus/Loki instead of canned data")
	cmd.Flags().StringVar(&flags.prometheusURL, "prometheus-url", "", "Prometheus server URL")
	cmd.Flags().StringVar(&flags.lokiURL, "loki-url", "", "Loki server URL")
	cmd.Flags().BoolVar(&flags.execute, "execute", false, "perform write operations instead of dry-run")

	return cmd
}

func runWorkflow(cmd *cobra.Command, flags runFlags) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	if flags.useRealTools {
		cfg.DataSources.UseRealTools = true
		cfg.Orchestration.UseRealVerification = true
	}
	if flags.prometheusURL != "" {
		cfg.DataSources.PrometheusURL = flags.prometheusURL
	}
	if flags.lokiURL != "" {
		cfg.DataSources.LokiURL = flags.lokiURL
	}
	if flags.execute {
		cfg.Orchestration.LiveExecution = true
	}

	task, scenario, err := buildTask(flags)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Task: %s\n", task.TaskID)
	fmt.Fprintf(out, "Goal: %s\n", task.Goal)

	outputDir := flags.outputDir
	if outputDir == "" {
		outputDir = filepath.Join("runs", time.Now().Format("20060102_150405"))
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	fmt.Fprintf(out, "Output: %s\n", outputDir)

	client, err := buildClient(cfg)
	if err != nil {
		return err
	}

	registry := tools.NewRegistry()
	if cfg.DataSources.UseRealTools {
		err = tools.RegisterRealTools(registry, tools.DataSources{
			PrometheusURL: cfg.DataSources.PrometheusURL,
			LokiURL:       cfg.DataSources.LokiURL,
			Timeout:       time.Duration(cfg.DataSources.TimeoutSeconds) * time.Second,
		})
	} else {
		err = tools.RegisterMockTools(registry)
	}
	if err != nil {
		return fmt.Errorf("register tools: %w", err)
	}
	fmt.Fprintf(out, "Tools: %d registered (real=%v)\n", len(registry.List(tools.ListFilter{})), cfg.DataSources.UseRealTools)
	if cfg.Orchestration.LiveExecution {
		fmt.Fprintln(out, "Write operations: EXECUTE mode")
	} else {
		fmt.Fprintln(out, "Write operations: dry-run (use --execute to perform changes)")
	}

	var tracer trace.Sink = trace.Nop{}
	var recorder *trace.Recorder
	if cfg.Observability.TraceEnabled {
		recorder, err = trace.NewRecorder(outputDir)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		tracer = recorder
	}

	caller, err := types.ParsePermissionLevel(cfg.DefaultPermissionLevel)
	if err != nil {
		return err
	}

	budgetPolicy := policy.BudgetPolicy{MaxTokens: 50000, MaxTimeSeconds: 180, MaxToolCalls: 20}
	retryPolicy := policy.NewRetryPolicy()
	retryPolicy.MaxRetries = cfg.Orchestration.MaxRetries
	approvalPolicy := policy.ApprovalPolicy{
		AutoApproveReadOnly:     cfg.Orchestration.AutoApproveReadOnly,
		AutoApproveSafeWrite:    true,
		RequireApprovalForRisky: true,
	}

	orch, err := orchestrate.New(client, registry, orchestrate.Options{
		BudgetPolicy:     &budgetPolicy,
		RetryPolicy:      &retryPolicy,
		ApprovalPolicy:   &approvalPolicy,
		CallerPermission: caller,
		Tracer:           tracer,
		RealVerification: cfg.Orchestration.UseRealVerification,
		LiveExecution:    cfg.Orchestration.LiveExecution,
	})
	if err != nil {
		return err
	}

	start := time.Now()
	report, err := orch.Run(cmd.Context(), task)
	if err != nil {
		return fmt.Errorf("workflow failed: %w", err)
	}
	duration := time.Since(start)

	printReport(out, report)

	reportPath := filepath.Join(outputDir, "report.json")
	if err := writeJSON(reportPath, report); err != nil {
		return err
	}

	traceFile := ""
	if recorder != nil {
		traceFile = recorder.Path()
	}
	episode := eval.FromExecution(task, report, traceFile, map[string]any{
		"llm_provider": cfg.LLM.Provider,
		"llm_model":    cfg.LLM.Model,
		"scenario":     scenario,
		"policies": map[string]any{
			"budget":   budgetPolicy,
			"retry":    retryPolicy,
			"approval": approvalPolicy,
		},
	})
	if _, err := episode.Save(outputDir); err != nil {
		return err
	}

	scores := eval.NewEvaluator().Evaluate(episode)
	fmt.Fprintln(out, "Evaluation:")
	fmt.Fprintf(out, "  overall:      %.2f\n", scores.OverallScore)
	fmt.Fprintf(out, "  correctness:  %.2f\n", scores.Correctness)
	fmt.Fprintf(out, "  completeness: %.2f\n", scores.Completeness)
	fmt.Fprintf(out, "  efficiency:   %.2f\n", scores.Efficiency)
	fmt.Fprintf(out, "  safety:       %.2f\n", scores.Safety)

	fmt.Fprintf(out, "Done in %.2fs, outputs in %s\n", duration.Seconds(), outputDir)
	return nil
}

// buildTask resolves the input precedence: --message, then --input,
// then --scenario (defaulting to latency-spike).
func buildTask(flags runFlags) (*types.Task, string, error) {
	if flags.message != "" {
		task, err := ingest.Ingest(map[string]any{"message": flags.message}, ingest.SourceChat)
		return task, "ingestion_chat", err
	}

	if flags.input != "" {
		if flags.source == "" {
			return nil, "", fmt.Errorf("--input requires --source (alert|ticket|chat|cron)")
		}
		var data []byte
		var err error
		if flags.input == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(flags.input)
		}
		if err != nil {
			return nil, "", fmt.Errorf("read input: %w", err)
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, "", fmt.Errorf("parse input: %w", err)
		}
		task, err := ingest.Ingest(raw, flags.source)
		return task, "ingestion_" + flags.source, err
	}

	scenario := flags.scenario
	if scenario == "" {
		scenario = "latency-spike"
	}
	switch scenario {
	case "latency-spike":
		return latencySpikeTask(), scenario, nil
	case "cpu-thrash":
		return cpuThrashTask(), scenario, nil
	}
	return nil, "", fmt.Errorf("unknown scenario %q (latency-spike or cpu-thrash)", scenario)
}

func buildClient(cfg config.Config) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "mock":
		return llm.NewMock(), nil
	case "openai", "qwen", "claude":
		base := cfg.LLM.APIBase
		if base == "" {
			base = "https://api.openai.com/v1"
		}
		client := llm.NewOpenAICompat(base, cfg.LLM.APIKey, cfg.LLM.Model)
		client.Temperature = cfg.LLM.Temperature
		client.MaxTokens = cfg.LLM.MaxTokens
		return llm.WithRetry(client, policy.NewRetryPolicy()), nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
}

func latencySpikeTask() *types.Task {
	return &types.Task{
		TaskID: "task-latency-" + ulid.Make().String(),
		Source: "alert",
		Goal:   "Diagnose high latency issue, identify root cause, and recommend remediation",
		Symptoms: map[string]any{
			"alert_name":    "High API Latency",
			"service":       "auth-service",
			"metric":        "request_latency_p99",
			"current_value": 850,
			"threshold":     200,
			"duration":      "7 minutes",
			"severity":      "high",
		},
		Context: map[string]any{
			"service_owner":  "auth-team",
			"slo":            map[string]any{"latency_p99": 200, "availability": 99.9},
			"recent_changes": "v2.3.1 deployed 3 minutes before alert",
			"affected_users": "~15% of requests",
		},
		Constraints: map[string]any{
			"read_only":            false,
			"no_restart":           false,
			"max_downtime_seconds": 30,
		},
		Status:    types.TaskPending,
		CreatedAt: time.Now().UTC(),
		Budget:    types.NewBudget(50000, 180, 20),
	}
}

func cpuThrashTask() *types.Task {
	return &types.Task{
		TaskID: "task-cpu-" + ulid.Make().String(),
		Source: "alert",
		Goal:   "Diagnose CPU thrashing, identify root cause, and recommend remediation",
		Symptoms: map[string]any{
			"alert_name":    "High CPU Usage",
			"service":       "auth-service",
			"metric":        "cpu_percent",
			"current_value": 95.7,
			"threshold":     80.0,
			"duration":      "10 minutes",
			"severity":      "high",
		},
		Context: map[string]any{
			"service_owner":  "auth-team",
			"slo":            map[string]any{"cpu_percent": 80, "availability": 99.9},
			"recent_changes": "v2.3.1 deployed 3 minutes before alert",
			"affected_users": "Service still available but slow",
		},
		Constraints: map[string]any{
			"read_only":            false,
			"no_restart":           false,
			"max_downtime_seconds": 60,
		},
		Status:    types.TaskPending,
		CreatedAt: time.Now().UTC(),
		Budget:    types.NewBudget(50000, 180, 20),
	}
}

func printReport(out io.Writer, report *types.Report) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "REPORT")
	fmt.Fprintln(out, report.Summary)
	fmt.Fprintln(out)

	if len(report.RootCauseHypotheses) > 0 {
		fmt.Fprintln(out, "Root cause hypotheses:")
		for i, h := range report.RootCauseHypotheses {
			fmt.Fprintf(out, "  %d. %s\n", i+1, h)
		}
	}
	if len(report.RecommendedActions) > 0 {
		fmt.Fprintln(out, "Recommended actions:")
		for i, a := range report.RecommendedActions {
			fmt.Fprintf(out, "  %d. %s\n", i+1, a)
		}
	}
	fmt.Fprintln(out, "Metrics:")
	for _, key := range []string{"tokens_used", "time_used", "tool_calls_used", "evidence_count", "actions_planned", "actions_executed"} {
		if v, ok := report.Metrics[key]; ok {
			fmt.Fprintf(out, "  %s: %v\n", key, v)
		}
	}
	fmt.Fprintln(out)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
