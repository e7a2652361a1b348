package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "exp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const validYAML = `
exp_name: T-ds
tickers:
  - "AK-47 | Redline (Field-Tested)"
  - "AWP | Asiimov (Field-Tested)"
cashflow: 5000
workflow_analysts: [technical, sentiment]
planner_mode: true
llm:
  provider: deepseek
  model: deepseek-chat
  api_key_env: DEEPSEEK_API_KEY
`

func TestLoadValid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)
	assert.Equal(t, "T-ds", cfg.ExpName)
	assert.Len(t, cfg.Tickers, 2)
	assert.InDelta(t, 5000, cfg.Cashflow, 1e-9)
	assert.True(t, cfg.PlannerMode)
	assert.Equal(t, "deepseek", cfg.ModelConfig().Provider)

	// defaults
	assert.True(t, cfg.EnableTxFee)
	assert.Equal(t, 120, cfg.StepTimeoutSeconds)
	assert.Equal(t, 60, cfg.LLM.TimeoutSeconds)
	assert.Equal(t, "data/fund.db", cfg.Database.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadExplicitFeeDisable(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
exp_name: T-nofee
tickers: [x]
enable_transaction_fee: false
llm:
  provider: openai
  model: gpt-4o-mini
`))
	require.NoError(t, err)
	assert.False(t, cfg.EnableTxFee)
}

func TestLoadRejectsMissingFields(t *testing.T) {
	cases := map[string]string{
		"no exp_name": `
tickers: [x]
llm: {provider: openai, model: m}
`,
		"no tickers": `
exp_name: T
llm: {provider: openai, model: m}
`,
		"duplicate ticker": `
exp_name: T
tickers: [x, x]
llm: {provider: openai, model: m}
`,
		"no model": `
exp_name: T
tickers: [x]
llm: {provider: openai}
`,
		"planner without analysts": `
exp_name: T
tickers: [x]
planner_mode: true
llm: {provider: openai, model: m}
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestAPIKeyFromEnv(t *testing.T) {
	cfg := &Config{LLM: LLMConfig{APIKeyEnv: "SKINFUND_TEST_KEY"}}
	t.Setenv("SKINFUND_TEST_KEY", "sk-test")
	assert.Equal(t, "sk-test", cfg.APIKey())

	cfg.LLM.APIKeyEnv = ""
	assert.Empty(t, cfg.APIKey())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
	_, err = Load("")
	assert.Error(t, err)
}
