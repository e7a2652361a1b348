package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skinfund/internal/config"
	"skinfund/internal/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		ExpName:  "T-app",
		Tickers:  []string{"item-a"},
		Cashflow: 1000,
		LLM:      config.LLMConfig{Provider: "openai", Model: "m"},
		Database: config.DatabaseConfig{
			Path:      filepath.Join(dir, "fund.db"),
			TracePath: filepath.Join(dir, "trace.db"),
		},
		Log: config.LogConfig{Level: "info"},
	}
}

func TestNewWiresWithoutModelDump(t *testing.T) {
	a, err := New(testConfig(t))
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.modelDump)
	assert.NotNil(t, a.Driver)
	assert.NotNil(t, a.Report)
}

func TestCloseReleasesModelDumpFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Log.ModelDumpPath = filepath.Join(t.TempDir(), "model.log")

	a, err := New(cfg)
	require.NoError(t, err)
	require.NotNil(t, a.modelDump)

	logger.ModelRequest("openai", "technical", "sys", "user")
	written, err := os.Stat(cfg.Log.ModelDumpPath)
	require.NoError(t, err)
	assert.Greater(t, written.Size(), int64(0))

	a.Close()
	assert.Nil(t, a.modelDump)

	// The dump writer is detached on Close; late calls must not touch the
	// closed handle.
	logger.ModelRequest("openai", "technical", "sys", "late")
	after, err := os.Stat(cfg.Log.ModelDumpPath)
	require.NoError(t, err)
	assert.Equal(t, written.Size(), after.Size())
}
