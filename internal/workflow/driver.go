// Package workflow owns the trading-date run: ordering checks, copy-on-write
// snapshot handling, the ticker fold over the ledger, and the single
// end-of-date persist.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"skinfund/internal/ledger"
	"skinfund/internal/logger"
	"skinfund/internal/pipeline"
	"skinfund/internal/store"
	"skinfund/internal/types"
)

// ErrOrderViolation is returned when a run is requested for a trading date
// older than the most recently persisted one.
var ErrOrderViolation = errors.New("trading date not in chronological order")

// Config describes one experiment run.
type Config struct {
	ExpName     string
	Tickers     []string
	Analysts    []string
	PlannerMode bool
	FeeEnabled  bool
	InitialCash float64
	Model       types.ModelConfig
}

// Driver executes trading dates for one experiment. The in-flight portfolio
// is exclusively owned by the driver; nothing is persisted for a date unless
// every ticker succeeds.
type Driver struct {
	Store    store.Store
	Builder  *pipeline.Builder
	Executor *pipeline.Executor
	Cfg      Config
}

// RunDate processes one trading date end to end.
func (d *Driver) RunDate(ctx context.Context, date time.Time) error {
	start := time.Now()
	dateStr := date.Format("2006-01-02")
	logger.Infof("[run] %s: trading date %s", d.Cfg.ExpName, dateStr)

	configID, err := d.ensureConfig(ctx)
	if err != nil {
		return err
	}

	latest, ok, err := d.Store.GetLatestTradingDate(ctx, configID)
	if err != nil {
		return fmt.Errorf("latest trading date for %s: %w", d.Cfg.ExpName, err)
	}
	if ok && date.Before(latest) {
		return fmt.Errorf("%w: %s is before last persisted %s",
			ErrOrderViolation, dateStr, latest.Format("2006-01-02"))
	}

	snapshot, err := d.openSnapshot(ctx, configID, date)
	if err != nil {
		return err
	}
	logger.Infof("[run] portfolio snapshot %s for %s", snapshot.ID, dateStr)

	// Sequential fold: each ticker trades against the cash the previous one
	// left behind.
	current := snapshot
	for _, ticker := range d.Cfg.Tickers {
		current, err = d.runTicker(ctx, current, ticker, date)
		if err != nil {
			return fmt.Errorf("ticker %s on %s: %w", ticker, dateStr, err)
		}
		logger.Portfolio(fmt.Sprintf("%s position update", ticker), current)
	}

	logger.Portfolio("Final portfolio", current)
	if err := d.Store.UpdatePortfolio(ctx, configID, current, date); err != nil {
		return fmt.Errorf("persist portfolio for %s: %w", dateStr, err)
	}
	logger.Infof("[run] %s done in %.2fs", dateStr, time.Since(start).Seconds())
	return nil
}

// RunRange walks dates from start to end inclusive, one run per day. A failed
// date is reported and skipped; nothing was persisted for it, so later dates
// still satisfy the ordering precondition.
func (d *Driver) RunRange(ctx context.Context, start, end time.Time) (failed []time.Time, err error) {
	if end.Before(start) {
		return nil, fmt.Errorf("end date %s before start date %s",
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}
	for date := start; !date.After(end); date = date.AddDate(0, 0, 1) {
		if ctx.Err() != nil {
			return failed, ctx.Err()
		}
		if runErr := d.RunDate(ctx, date); runErr != nil {
			if errors.Is(runErr, context.Canceled) {
				return failed, runErr
			}
			logger.Errorf("[run] %s failed: %v", date.Format("2006-01-02"), runErr)
			failed = append(failed, date)
		}
	}
	return failed, nil
}

func (d *Driver) ensureConfig(ctx context.Context) (string, error) {
	configID, err := d.Store.GetConfigIDByName(ctx, d.Cfg.ExpName)
	if err != nil {
		return "", fmt.Errorf("look up config %s: %w", d.Cfg.ExpName, err)
	}
	if configID != "" {
		return configID, nil
	}
	logger.Infof("[run] creating new config for %s", d.Cfg.ExpName)
	configID, err = d.Store.CreateConfig(ctx, store.ExperimentConfig{
		ExpName:     d.Cfg.ExpName,
		Tickers:     d.Cfg.Tickers,
		PlannerMode: d.Cfg.PlannerMode,
		Model:       d.Cfg.Model,
	})
	if err != nil {
		return "", fmt.Errorf("create config %s: %w", d.Cfg.ExpName, err)
	}
	return configID, nil
}

// openSnapshot loads the latest snapshot (creating the seed portfolio on
// first run) and derives the copy-on-write snapshot for this date.
func (d *Driver) openSnapshot(ctx context.Context, configID string, date time.Time) (types.Portfolio, error) {
	latest, err := d.Store.GetLatestPortfolio(ctx, configID)
	if err != nil {
		return types.Portfolio{}, fmt.Errorf("load latest portfolio: %w", err)
	}
	if latest == nil {
		seeded, err := d.Store.CreatePortfolio(ctx, configID, d.Cfg.InitialCash, date)
		if err != nil {
			return types.Portfolio{}, fmt.Errorf("create seed portfolio: %w", err)
		}
		latest = &seeded
	}
	snapshot, err := d.Store.CopyPortfolio(ctx, configID, *latest, date)
	if err != nil {
		return types.Portfolio{}, fmt.Errorf("copy portfolio forward: %w", err)
	}
	return snapshot, nil
}

func (d *Driver) runTicker(ctx context.Context, current types.Portfolio, ticker string, date time.Time) (types.Portfolio, error) {
	stepIDs, err := d.Builder.Resolve(ctx, ticker, d.Cfg.Analysts, d.Cfg.PlannerMode, d.Cfg.Model)
	if err != nil {
		return types.Portfolio{}, err
	}

	sc := types.StepContext{
		Ticker:      ticker,
		TradingDate: date,
		ExpName:     d.Cfg.ExpName,
		Model:       d.Cfg.Model,
		Portfolio:   current,
		NumTickers:  len(d.Cfg.Tickers),
		FeeEnabled:  d.Cfg.FeeEnabled,
	}
	decision, signals, err := d.Executor.Run(ctx, sc, stepIDs)
	if err != nil {
		return types.Portfolio{}, err
	}

	for _, sig := range signals {
		if _, err := d.Store.SaveSignal(ctx, current.ID, ticker, sig); err != nil {
			return types.Portfolio{}, fmt.Errorf("save signal %s: %w", sig.Step, err)
		}
	}
	if _, err := d.Store.SaveDecision(ctx, current.ID, ticker, decision, date); err != nil {
		return types.Portfolio{}, fmt.Errorf("save decision: %w", err)
	}

	next, fill, err := ledger.Apply(current, ticker, decision, d.Cfg.FeeEnabled)
	if err != nil {
		return types.Portfolio{}, err
	}
	if fill.Clipped {
		logger.Warnf("[ledger] %s: %s order clipped, requested %d filled %d (%s)",
			ticker, fill.Action, fill.RequestedShares, fill.FilledShares, fill.Reason)
	}
	return next, nil
}
