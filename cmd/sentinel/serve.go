package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sentinel-ops/sentinel/internal/config"
	"github.com/sentinel-ops/sentinel/internal/orchestrate"
	"github.com/sentinel-ops/sentinel/internal/policy"
	"github.com/sentinel-ops/sentinel/internal/server"
	"github.com/sentinel-ops/sentinel/internal/tools"
	"github.com/sentinel-ops/sentinel/internal/trace"
	"github.com/sentinel-ops/sentinel/internal/types"
)

type serveFlags struct {
	addr         string
	configPath   string
	useRealTools bool
	execute      bool
}

func newServeCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the workflow HTTP API (submit tasks, poll status, stream trace events)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveAPI(flags)
		},
	}

	cmd.Flags().StringVar(&flags.addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&flags.configPath, "config", "", "path to YAML config file")
	cmd.Flags().BoolVar(&flags.useRealTools, "use-real-tools", false, "query live Prometheus/Loki instead of canned data")
	cmd.Flags().BoolVar(&flags.execute, "execute", false, "perform write operations instead of dry-run")

	return cmd
}

func serveAPI(flags serveFlags) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	if flags.useRealTools {
		cfg.DataSources.UseRealTools = true
		cfg.Orchestration.UseRealVerification = true
	}
	if flags.execute {
		cfg.Orchestration.LiveExecution = true
	}

	caller, err := types.ParsePermissionLevel(cfg.DefaultPermissionLevel)
	if err != nil {
		return err
	}

	runner := func(ctx context.Context, task *types.Task, tracer trace.Sink) (*types.Report, error) {
		client, err := buildClient(cfg)
		if err != nil {
			return nil, err
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
			return nil, fmt.Errorf("register tools: %w", err)
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
			return nil, err
		}
		return orch.Run(ctx, task)
	}

	srv := server.New(server.Config{Addr: flags.addr, Runner: runner})
	return srv.ListenAndServe()
}
