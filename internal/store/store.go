// Package store defines the persistence collaborator contract used by the
// trading-date driver. Implementations own their transactional semantics; a
// single snapshot write must be atomic from the engine's point of view.
package store

import (
	"context"
	"time"

	"skinfund/internal/types"
)

// ExperimentConfig is the persisted identity of one experiment.
type ExperimentConfig struct {
	ExpName     string
	Tickers     []string
	PlannerMode bool
	Model       types.ModelConfig
}

// DecisionMemory is one prior decision fed back into the manager prompt.
type DecisionMemory struct {
	TradingDate string  `json:"trading_date"`
	Action      string  `json:"action"`
	Shares      int64   `json:"shares"`
	Price       float64 `json:"price"`
}

// DecisionRecord is a persisted decision audit row.
type DecisionRecord struct {
	ID            string    `json:"id"`
	PortfolioID   string    `json:"portfolio_id"`
	TradingDate   string    `json:"trading_date"`
	Ticker        string    `json:"ticker"`
	Action        string    `json:"action"`
	Shares        int64     `json:"shares"`
	Price         float64   `json:"price"`
	Justification string    `json:"justification"`
	CreatedAt     time.Time `json:"created_at"`
}

// SignalRecord is a persisted analyst signal audit row.
type SignalRecord struct {
	ID            string    `json:"id"`
	PortfolioID   string    `json:"portfolio_id"`
	Ticker        string    `json:"ticker"`
	Analyst       string    `json:"analyst"`
	Signal        string    `json:"signal"`
	Justification string    `json:"justification"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store is the ledger persistence contract.
type Store interface {
	// GetConfigIDByName returns "" (no error) when the experiment is unknown.
	GetConfigIDByName(ctx context.Context, expName string) (string, error)
	CreateConfig(ctx context.Context, cfg ExperimentConfig) (string, error)

	// GetLatestPortfolio returns nil when no snapshot exists yet.
	GetLatestPortfolio(ctx context.Context, configID string) (*types.Portfolio, error)
	CreatePortfolio(ctx context.Context, configID string, cash float64, date time.Time) (types.Portfolio, error)
	// CopyPortfolio derives a new snapshot for date from p. Idempotent: if a
	// snapshot already exists for (configID, date) it is returned as-is.
	CopyPortfolio(ctx context.Context, configID string, p types.Portfolio, date time.Time) (types.Portfolio, error)
	UpdatePortfolio(ctx context.Context, configID string, p types.Portfolio, date time.Time) error
	GetLatestTradingDate(ctx context.Context, configID string) (time.Time, bool, error)

	SaveDecision(ctx context.Context, portfolioID, ticker string, d types.Decision, date time.Time) (string, error)
	SaveSignal(ctx context.Context, portfolioID, ticker string, s types.Signal) (string, error)
	GetDecisionMemory(ctx context.Context, expName, ticker string, limit int) ([]DecisionMemory, error)

	// Read side for reports and the HTTP API.
	ListPortfolios(ctx context.Context, configID string) ([]types.Portfolio, error)
	ListDecisions(ctx context.Context, configID, ticker string, limit int) ([]DecisionRecord, error)
	ListSignals(ctx context.Context, configID, ticker string, limit int) ([]SignalRecord, error)
}
