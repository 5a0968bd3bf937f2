// Package config holds the runtime configuration: defaults, an
// optional YAML file overlay and environment variable overrides, in
// that precedence order.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LLM configures the model client.
type LLM struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Timeout     int     `yaml:"timeout"`
	APIKey      string  `yaml:"api_key"`
	APIBase     string  `yaml:"api_base"`
}

// Observability configures trace recording.
type Observability struct {
	TraceEnabled    bool    `yaml:"trace_enabled"`
	MetricsEnabled  bool    `yaml:"metrics_enabled"`
	OutputDir       string  `yaml:"output_dir"`
	TraceSampleRate float64 `yaml:"trace_sample_rate"`
}

// Orchestration configures the workflow policies.
type Orchestration struct {
	MaxRetries           int     `yaml:"max_retries"`
	RetryDelaySeconds    float64 `yaml:"retry_delay_seconds"`
	AutoApproveReadOnly  bool    `yaml:"auto_approve_read_only"`
	AutoApproveSafeWrite bool    `yaml:"auto_approve_safe_write"`
	UseRealVerification  bool    `yaml:"use_real_verification"`
	LiveExecution        bool    `yaml:"live_execution"`
}

// DataSources configures the real monitoring backends.
type DataSources struct {
	PrometheusURL  string `yaml:"prometheus_url"`
	LokiURL        string `yaml:"loki_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	UseRealTools   bool   `yaml:"use_real_tools"`
}

// Config is the root configuration.
type Config struct {
	LLM                    LLM           `yaml:"llm"`
	Observability          Observability `yaml:"observability"`
	Orchestration          Orchestration `yaml:"orchestration"`
	DataSources            DataSources   `yaml:"data_sources"`
	DefaultPermissionLevel string        `yaml:"default_permission_level"`
}

// Default returns the configuration used when no file is given: mock
// LLM, tracing on, dry-run orchestration, operator permission.
func Default() Config {
	return Config{
		LLM: LLM{
			Provider:    "mock",
			Model:       "gpt-4",
			Temperature: 0.7,
			MaxTokens:   2000,
			Timeout:     30,
		},
		Observability: Observability{
			TraceEnabled:    true,
			MetricsEnabled:  true,
			OutputDir:       "./runs",
			TraceSampleRate: 1.0,
		},
		Orchestration: Orchestration{
			MaxRetries:          3,
			RetryDelaySeconds:   1.0,
			AutoApproveReadOnly: true,
		},
		DataSources: DataSources{
			PrometheusURL:  "http://localhost:9090",
			LokiURL:        "http://localhost:3100",
			TimeoutSeconds: 10,
		},
		DefaultPermissionLevel: "operator",
	}
}

// Load reads a YAML file over the defaults and then applies the
// environment overlay. An empty path skips the file step.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

var validProviders = map[string]bool{
	"mock":   true,
	"openai": true,
	"qwen":   true,
	"claude": true,
}

// applyEnv lets deployment environments override credentials and the
// provider selection without touching the config file.
func (c *Config) applyEnv() {
	if p := strings.ToLower(strings.TrimSpace(os.Getenv("SENTINEL_LLM_PROVIDER"))); validProviders[p] {
		c.LLM.Provider = p
	}
	if v := os.Getenv("SENTINEL_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
		c.LLM.APIKey = v
	}
	if v, ok := os.LookupEnv("OPENAI_API_BASE"); ok {
		c.LLM.APIBase = v
	}
	if v := os.Getenv("SENTINEL_PROMETHEUS_URL"); v != "" {
		c.DataSources.PrometheusURL = v
	}
	if v := os.Getenv("SENTINEL_LOKI_URL"); v != "" {
		c.DataSources.LokiURL = v
	}
}
