// Package app wires configuration, stores, providers and the step registry
// into a runnable application.
package app

import (
	"fmt"
	"os"
	"time"

	"skinfund/internal/agents"
	"skinfund/internal/config"
	"skinfund/internal/pipeline"
	"skinfund/internal/provider"
	"skinfund/internal/registry"
	"skinfund/internal/report"
	"skinfund/internal/store/gormstore"
	"skinfund/internal/store/tracelog"
	"skinfund/internal/logger"
	fundhttp "skinfund/internal/transport/http"
	"skinfund/internal/workflow"
)

// App holds the wired application.
type App struct {
	Cfg    *config.Config
	Store  *gormstore.GormStore
	Trace  *tracelog.Store
	Driver *workflow.Driver
	Report *report.Builder

	// modelDump is owned here so Close can flush and release it.
	modelDump *os.File
}

// New builds the full dependency graph from one loaded config.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}

	st, err := gormstore.NewGormStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	trace, err := tracelog.NewStore(cfg.Database.TracePath)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open trace database: %w", err)
	}

	modelProvider, err := provider.New(cfg.ModelConfig(), provider.Options{
		BaseURL:           cfg.LLM.BaseURL,
		APIKey:            cfg.APIKey(),
		Timeout:           time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		MaxRetries:        cfg.LLM.MaxRetries,
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
	})
	if err != nil {
		trace.Close()
		st.Close()
		return nil, err
	}

	deps := &agents.Deps{
		Provider: modelProvider,
		Trace:    trace,
		Store:    st,
		Candles:  st,
		Reddit:   st,
		News:     st,
	}
	reg := registry.New()
	if err := agents.RegisterAll(reg, deps); err != nil {
		trace.Close()
		st.Close()
		return nil, fmt.Errorf("register steps: %w", err)
	}

	driver := &workflow.Driver{
		Store:   st,
		Builder: &pipeline.Builder{Registry: reg},
		Executor: &pipeline.Executor{
			Registry:    reg,
			StepTimeout: time.Duration(cfg.StepTimeoutSeconds) * time.Second,
		},
		Cfg: workflow.Config{
			ExpName:     cfg.ExpName,
			Tickers:     cfg.Tickers,
			Analysts:    cfg.WorkflowAnalysts,
			PlannerMode: cfg.PlannerMode,
			FeeEnabled:  cfg.EnableTxFee,
			InitialCash: cfg.Cashflow,
			Model:       cfg.ModelConfig(),
		},
	}

	a := &App{
		Cfg:    cfg,
		Store:  st,
		Trace:  trace,
		Driver: driver,
		Report: &report.Builder{Store: st},
	}
	if cfg.Log.ModelDumpPath != "" {
		f, err := os.OpenFile(cfg.Log.ModelDumpPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open model dump file: %w", err)
		}
		a.modelDump = f
		logger.SetModelWriter(f)
	}
	return a, nil
}

// HTTPServer builds the read-only API server over the app's stores.
func (a *App) HTTPServer() (*fundhttp.Server, error) {
	return fundhttp.NewServer(fundhttp.ServerConfig{
		Addr:    a.Cfg.Server.Addr,
		ExpName: a.Cfg.ExpName,
		Store:   a.Store,
		Trace:   a.Trace,
	})
}

// Close releases the database handles and the model dump file.
func (a *App) Close() {
	if a.modelDump != nil {
		logger.SetModelWriter(nil)
		a.modelDump.Close()
		a.modelDump = nil
	}
	if a.Trace != nil {
		a.Trace.Close()
	}
	if a.Store != nil {
		a.Store.Close()
	}
}
