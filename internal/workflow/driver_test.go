package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skinfund/internal/pipeline"
	"skinfund/internal/registry"
	"skinfund/internal/store"
	"skinfund/internal/types"
)

// memStore is an in-memory store.Store for driver tests.
type memStore struct {
	configID    string
	portfolios  []types.Portfolio
	decisions   []store.DecisionRecord
	signals     []store.SignalRecord
	updates     int
	failUpdate  bool
	failSignals bool
}

func (m *memStore) GetConfigIDByName(_ context.Context, _ string) (string, error) {
	return m.configID, nil
}

func (m *memStore) CreateConfig(_ context.Context, _ store.ExperimentConfig) (string, error) {
	m.configID = "cfg-1"
	return m.configID, nil
}

func (m *memStore) GetLatestPortfolio(_ context.Context, _ string) (*types.Portfolio, error) {
	if len(m.portfolios) == 0 {
		return nil, nil
	}
	p := m.portfolios[len(m.portfolios)-1].Clone()
	return &p, nil
}

func (m *memStore) CreatePortfolio(_ context.Context, configID string, cash float64, date time.Time) (types.Portfolio, error) {
	p := types.Portfolio{
		ID:          fmt.Sprintf("p-%d", len(m.portfolios)+1),
		ConfigID:    configID,
		TradingDate: date,
		Cashflow:    cash,
		TotalAssets: cash,
		Positions:   map[string]types.Position{},
	}
	m.portfolios = append(m.portfolios, p.Clone())
	return p, nil
}

func (m *memStore) CopyPortfolio(_ context.Context, configID string, p types.Portfolio, date time.Time) (types.Portfolio, error) {
	for _, existing := range m.portfolios {
		if existing.TradingDate.Equal(date) {
			return existing.Clone(), nil
		}
	}
	next := p.Clone()
	next.ID = fmt.Sprintf("p-%d", len(m.portfolios)+1)
	next.ConfigID = configID
	next.TradingDate = date
	m.portfolios = append(m.portfolios, next.Clone())
	return next, nil
}

func (m *memStore) UpdatePortfolio(_ context.Context, _ string, p types.Portfolio, date time.Time) error {
	if m.failUpdate {
		return errors.New("disk full")
	}
	for i := range m.portfolios {
		if m.portfolios[i].TradingDate.Equal(date) {
			m.updates++
			snap := p.Clone()
			snap.ID = m.portfolios[i].ID
			snap.TradingDate = date
			m.portfolios[i] = snap
			return nil
		}
	}
	return errors.New("no snapshot for date")
}

func (m *memStore) GetLatestTradingDate(_ context.Context, _ string) (time.Time, bool, error) {
	if len(m.portfolios) == 0 {
		return time.Time{}, false, nil
	}
	return m.portfolios[len(m.portfolios)-1].TradingDate, true, nil
}

func (m *memStore) SaveDecision(_ context.Context, portfolioID, ticker string, d types.Decision, date time.Time) (string, error) {
	m.decisions = append(m.decisions, store.DecisionRecord{
		PortfolioID: portfolioID,
		TradingDate: date.Format("2006-01-02"),
		Ticker:      ticker,
		Action:      string(d.Action),
		Shares:      d.Shares,
		Price:       d.Price,
	})
	return fmt.Sprintf("d-%d", len(m.decisions)), nil
}

func (m *memStore) SaveSignal(_ context.Context, portfolioID, ticker string, s types.Signal) (string, error) {
	if m.failSignals {
		return "", errors.New("disk full")
	}
	m.signals = append(m.signals, store.SignalRecord{
		PortfolioID: portfolioID,
		Ticker:      ticker,
		Analyst:     s.Step,
		Signal:      string(s.Direction),
	})
	return fmt.Sprintf("s-%d", len(m.signals)), nil
}

func (m *memStore) GetDecisionMemory(context.Context, string, string, int) ([]store.DecisionMemory, error) {
	return nil, nil
}

func (m *memStore) ListPortfolios(context.Context, string) ([]types.Portfolio, error) {
	return m.portfolios, nil
}

func (m *memStore) ListDecisions(context.Context, string, string, int) ([]store.DecisionRecord, error) {
	return m.decisions, nil
}

func (m *memStore) ListSignals(context.Context, string, string, int) ([]store.SignalRecord, error) {
	return m.signals, nil
}

// scriptedDecider returns one decision per ticker.
type scriptedDecider struct {
	decisions map[string]types.Decision
	err       error
}

func (s *scriptedDecider) ID() string       { return "decider" }
func (s *scriptedDecider) Describe() string { return "scripted" }

func (s *scriptedDecider) Decide(_ context.Context, sc types.StepContext, _ []types.Signal) (types.Decision, error) {
	if s.err != nil {
		return types.Decision{}, s.err
	}
	d, ok := s.decisions[sc.Ticker]
	if !ok {
		return types.Decision{Action: types.ActionHold, Price: 1}, nil
	}
	return d, nil
}

type constAnalyst struct {
	id string
}

func (c *constAnalyst) ID() string       { return c.id }
func (c *constAnalyst) Describe() string { return c.id }

func (c *constAnalyst) Analyze(_ context.Context, _ types.StepContext) (types.Signal, error) {
	return types.Signal{Step: c.id, Direction: types.Neutral, Justification: "flat"}, nil
}

func date(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func newDriver(t *testing.T, st store.Store, decider registry.DecisionStep, cfg Config) *Driver {
	t.Helper()
	reg := registry.New()
	require.NoError(t, reg.RegisterAnalyst(&constAnalyst{id: "technical"}))
	require.NoError(t, reg.RegisterAnalyst(&constAnalyst{id: "sentiment"}))
	require.NoError(t, reg.SetDecisionStep(decider))
	return &Driver{
		Store:    st,
		Builder:  &pipeline.Builder{Registry: reg},
		Executor: &pipeline.Executor{Registry: reg},
		Cfg:      cfg,
	}
}

func baseConfig() Config {
	return Config{
		ExpName:     "T-test",
		Tickers:     []string{"item-a", "item-b"},
		Analysts:    []string{"technical", "sentiment"},
		FeeEnabled:  true,
		InitialCash: 1000,
		Model:       types.ModelConfig{Provider: "openai", Model: "gpt-4o-mini"},
	}
}

func TestRunDateThreadsCashAcrossTickers(t *testing.T) {
	st := &memStore{}
	decider := &scriptedDecider{decisions: map[string]types.Decision{
		"item-a": {Action: types.ActionBuy, Shares: 6, Price: 100},
		"item-b": {Action: types.ActionBuy, Shares: 10, Price: 100},
	}}
	d := newDriver(t, st, decider, baseConfig())

	require.NoError(t, d.RunDate(context.Background(), date("2025-10-01")))

	// item-a takes 600, leaving 400: item-b's buy of 10 must clip to 4.
	final := st.portfolios[len(st.portfolios)-1]
	assert.InDelta(t, 0, final.Cashflow, 1e-9)
	assert.EqualValues(t, 6, final.Positions["item-a"].Shares)
	assert.EqualValues(t, 4, final.Positions["item-b"].Shares)
	assert.Equal(t, 1, st.updates)

	// two analysts per ticker, one decision per ticker
	assert.Len(t, st.signals, 4)
	assert.Len(t, st.decisions, 2)
}

func TestRunDateSeedsPortfolioOnFirstRun(t *testing.T) {
	st := &memStore{}
	d := newDriver(t, st, &scriptedDecider{}, baseConfig())
	require.NoError(t, d.RunDate(context.Background(), date("2025-10-01")))
	require.NotEmpty(t, st.portfolios)
	assert.InDelta(t, 1000, st.portfolios[0].Cashflow, 1e-9)
}

func TestRunDateOrderingViolation(t *testing.T) {
	st := &memStore{configID: "cfg-1"}
	st.portfolios = append(st.portfolios, types.Portfolio{
		ID: "p-1", TradingDate: date("2025-10-05"), Cashflow: 1000,
		Positions: map[string]types.Position{},
	})
	d := newDriver(t, st, &scriptedDecider{}, baseConfig())

	err := d.RunDate(context.Background(), date("2025-10-01"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOrderViolation)
	assert.Zero(t, st.updates)
}

func TestRunDateSameDateIsIdempotent(t *testing.T) {
	st := &memStore{}
	d := newDriver(t, st, &scriptedDecider{decisions: map[string]types.Decision{
		"item-a": {Action: types.ActionBuy, Shares: 2, Price: 100},
	}}, baseConfig())

	require.NoError(t, d.RunDate(context.Background(), date("2025-10-01")))
	snapshots := len(st.portfolios)
	require.NoError(t, d.RunDate(context.Background(), date("2025-10-01")))
	// re-running the same date reuses the snapshot instead of duplicating it
	assert.Equal(t, snapshots, len(st.portfolios))
}

func TestRunDateAbortsWithoutPersistOnDecisionError(t *testing.T) {
	st := &memStore{}
	d := newDriver(t, st, &scriptedDecider{err: errors.New("model unreachable")}, baseConfig())

	err := d.RunDate(context.Background(), date("2025-10-01"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "item-a")
	assert.Contains(t, err.Error(), "2025-10-01")
	assert.Zero(t, st.updates)
	assert.Empty(t, st.decisions)
}

func TestRunDateFatalOnSignalPersistFailure(t *testing.T) {
	st := &memStore{failSignals: true}
	d := newDriver(t, st, &scriptedDecider{}, baseConfig())

	err := d.RunDate(context.Background(), date("2025-10-01"))
	require.Error(t, err)
	assert.Zero(t, st.updates)
}

func TestRunDateFatalOnFinalPersistFailure(t *testing.T) {
	st := &memStore{failUpdate: true}
	d := newDriver(t, st, &scriptedDecider{}, baseConfig())
	err := d.RunDate(context.Background(), date("2025-10-01"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist portfolio")
}

func TestRunDatePositionsCarryForward(t *testing.T) {
	st := &memStore{}
	d := newDriver(t, st, &scriptedDecider{decisions: map[string]types.Decision{
		"item-a": {Action: types.ActionBuy, Shares: 3, Price: 100},
	}}, baseConfig())
	require.NoError(t, d.RunDate(context.Background(), date("2025-10-01")))

	// next date starts from yesterday's holdings
	decider := &scriptedDecider{decisions: map[string]types.Decision{
		"item-a": {Action: types.ActionSell, Shares: 3, Price: 110},
	}}
	d2 := newDriver(t, st, decider, baseConfig())
	require.NoError(t, d2.RunDate(context.Background(), date("2025-10-02")))

	final := st.portfolios[len(st.portfolios)-1]
	assert.EqualValues(t, 0, final.Positions["item-a"].Shares)
	// 700 cash + 3*110*0.98 = 1023.40
	assert.InDelta(t, 1023.40, final.Cashflow, 1e-9)
}

func TestRunRangeSkipsFailedDates(t *testing.T) {
	st := &memStore{}
	calls := 0
	decider := &scriptedDecider{}
	d := newDriver(t, st, decider, baseConfig())

	// fail the middle date only
	failing := date("2025-10-02")
	origStore := d.Store
	d.Store = &failOnDateStore{Store: origStore, failDate: failing, calls: &calls}

	failed, err := d.RunRange(context.Background(), date("2025-10-01"), date("2025-10-03"))
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.True(t, failed[0].Equal(failing))
}

// failOnDateStore fails the final persist for one specific date.
type failOnDateStore struct {
	store.Store
	failDate time.Time
	calls    *int
}

func (f *failOnDateStore) UpdatePortfolio(ctx context.Context, configID string, p types.Portfolio, d time.Time) error {
	*f.calls++
	if d.Equal(f.failDate) {
		return errors.New("transient failure")
	}
	return f.Store.UpdatePortfolio(ctx, configID, p, d)
}

func TestRunRangeRejectsInvertedRange(t *testing.T) {
	d := newDriver(t, &memStore{}, &scriptedDecider{}, baseConfig())
	_, err := d.RunRange(context.Background(), date("2025-10-03"), date("2025-10-01"))
	assert.Error(t, err)
}
