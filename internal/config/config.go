// Package config loads and validates the experiment configuration file.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"skinfund/internal/types"
)

// LLMConfig selects the chat backend.
type LLMConfig struct {
	Provider          string `mapstructure:"provider"`
	Model             string `mapstructure:"model"`
	BaseURL           string `mapstructure:"base_url"`
	APIKeyEnv         string `mapstructure:"api_key_env"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
	MaxRetries        int    `mapstructure:"max_retries"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
}

// DatabaseConfig points at the SQLite files.
type DatabaseConfig struct {
	Path      string `mapstructure:"path"`
	TracePath string `mapstructure:"trace_path"`
}

// LogConfig tunes logging output.
type LogConfig struct {
	Level         string `mapstructure:"level"`
	ModelDumpPath string `mapstructure:"model_dump_path"`
}

// ServerConfig configures the read-only HTTP API.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// Config is one experiment definition.
type Config struct {
	ExpName            string         `mapstructure:"exp_name"`
	Tickers            []string       `mapstructure:"tickers"`
	Cashflow           float64        `mapstructure:"cashflow"`
	WorkflowAnalysts   []string       `mapstructure:"workflow_analysts"`
	PlannerMode        bool           `mapstructure:"planner_mode"`
	EnableTxFee        bool           `mapstructure:"enable_transaction_fee"`
	StepTimeoutSeconds int            `mapstructure:"step_timeout_seconds"`
	LLM                LLMConfig      `mapstructure:"llm"`
	Database           DatabaseConfig `mapstructure:"database"`
	Log                LogConfig      `mapstructure:"log"`
	Server             ServerConfig   `mapstructure:"server"`
}

// ModelConfig converts the LLM section into the audit-record form.
func (c *Config) ModelConfig() types.ModelConfig {
	return types.ModelConfig{Provider: c.LLM.Provider, Model: c.LLM.Model}
}

// APIKey resolves the configured environment variable. Keys never live in the
// config file itself.
func (c *Config) APIKey() string {
	if c.LLM.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.LLM.APIKeyEnv)
}

// Load reads, defaults and validates one config file.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults(v)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults(v *viper.Viper) {
	if c.Cashflow == 0 {
		c.Cashflow = 10000
	}
	// false only when the file explicitly disables it
	if !v.IsSet("enable_transaction_fee") {
		c.EnableTxFee = true
	}
	if c.StepTimeoutSeconds == 0 {
		c.StepTimeoutSeconds = 120
	}
	if c.LLM.TimeoutSeconds == 0 {
		c.LLM.TimeoutSeconds = 60
	}
	if c.LLM.MaxRetries == 0 {
		c.LLM.MaxRetries = 2
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/fund.db"
	}
	if c.Database.TracePath == "" {
		c.Database.TracePath = "data/trace.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.ExpName) == "" {
		return fmt.Errorf("exp_name is required")
	}
	if len(c.Tickers) == 0 {
		return fmt.Errorf("at least one ticker is required")
	}
	seen := make(map[string]bool, len(c.Tickers))
	for _, tk := range c.Tickers {
		if strings.TrimSpace(tk) == "" {
			return fmt.Errorf("empty ticker in tickers list")
		}
		if seen[tk] {
			return fmt.Errorf("duplicate ticker %q", tk)
		}
		seen[tk] = true
	}
	if c.Cashflow < 0 {
		return fmt.Errorf("cashflow must not be negative")
	}
	if strings.TrimSpace(c.LLM.Provider) == "" {
		return fmt.Errorf("llm.provider is required")
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.PlannerMode && len(c.WorkflowAnalysts) == 0 {
		return fmt.Errorf("planner_mode requires workflow_analysts")
	}
	return nil
}
