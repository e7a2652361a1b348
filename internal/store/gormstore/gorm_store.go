// Package gormstore persists the fund ledger and pre-fetched market data in a
// single SQLite database via Gorm.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"skinfund/internal/store"
	storemodel "skinfund/internal/store/model"
	"skinfund/internal/types"
)

const dateLayout = "2006-01-02"

// GormStore implements store.Store plus the market data source interfaces.
type GormStore struct {
	db *gorm.DB
}

var _ store.Store = (*GormStore)(nil)

// NewGormStore opens (or creates) the database at path and migrates the
// schema. WAL keeps the report API readable while a run is writing.
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: database path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	models := []interface{}{
		&storemodel.FundConfigModel{},
		&storemodel.FundPortfolioModel{},
		&storemodel.FundDecisionModel{},
		&storemodel.FundSignalModel{},
		&storemodel.MarketCandleModel{},
		&storemodel.RedditPostModel{},
		&storemodel.SteamNewsModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: keep lock contention low while allowing report reads.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

// NewGormStoreFromDB wraps an existing connection (tests).
func NewGormStoreFromDB(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm store: db cannot be nil")
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --------------------------- Config -------------------------------------

func (s *GormStore) GetConfigIDByName(ctx context.Context, expName string) (string, error) {
	var m storemodel.FundConfigModel
	err := s.db.WithContext(ctx).Where("exp_name = ?", expName).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return m.ID, nil
}

func (s *GormStore) CreateConfig(ctx context.Context, cfg store.ExperimentConfig) (string, error) {
	items, err := json.Marshal(cfg.Tickers)
	if err != nil {
		return "", err
	}
	m := storemodel.FundConfigModel{
		ID:            uuid.NewString(),
		ExpName:       cfg.ExpName,
		Items:         datatypes.JSON(items),
		HasPlanner:    cfg.PlannerMode,
		LLMModel:      cfg.Model.Model,
		LLMProvider:   cfg.Model.Provider,
		MarketType:    storemodel.MarketType,
		UpdatedAtUnix: time.Now().UnixMilli(),
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return "", err
	}
	return m.ID, nil
}

// --------------------------- Portfolio -----------------------------------

func (s *GormStore) GetLatestPortfolio(ctx context.Context, configID string) (*types.Portfolio, error) {
	var m storemodel.FundPortfolioModel
	err := s.db.WithContext(ctx).
		Where("config_id = ?", configID).
		Order("updated_at DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p, err := portfolioModelToSnapshot(m)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *GormStore) CreatePortfolio(ctx context.Context, configID string, cash float64, date time.Time) (types.Portfolio, error) {
	m := storemodel.FundPortfolioModel{
		ID:            uuid.NewString(),
		ConfigID:      configID,
		TradingDate:   date.Format(dateLayout),
		Cashflow:      cash,
		TotalAssets:   cash,
		Positions:     datatypes.JSON([]byte("{}")),
		MarketType:    storemodel.MarketType,
		UpdatedAtUnix: time.Now().UnixMilli(),
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return types.Portfolio{}, err
	}
	return portfolioModelToSnapshot(m)
}

// CopyPortfolio carries cash and positions forward to a new trading date. If
// a snapshot already exists for (configID, date), the existing row is
// returned so re-running a date never duplicates the ledger.
func (s *GormStore) CopyPortfolio(ctx context.Context, configID string, p types.Portfolio, date time.Time) (types.Portfolio, error) {
	var existing storemodel.FundPortfolioModel
	err := s.db.WithContext(ctx).
		Where("config_id = ? AND trading_date = ?", configID, date.Format(dateLayout)).
		First(&existing).Error
	if err == nil {
		return portfolioModelToSnapshot(existing)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return types.Portfolio{}, err
	}

	positions, err := json.Marshal(p.Positions)
	if err != nil {
		return types.Portfolio{}, err
	}
	m := storemodel.FundPortfolioModel{
		ID:            uuid.NewString(),
		ConfigID:      configID,
		TradingDate:   date.Format(dateLayout),
		Cashflow:      p.Cashflow,
		TotalAssets:   round2(p.Cashflow + p.PositionsValue()),
		Positions:     datatypes.JSON(positions),
		MarketType:    storemodel.MarketType,
		UpdatedAtUnix: time.Now().UnixMilli(),
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return types.Portfolio{}, err
	}
	return portfolioModelToSnapshot(m)
}

func (s *GormStore) UpdatePortfolio(ctx context.Context, configID string, p types.Portfolio, date time.Time) error {
	positions, err := json.Marshal(p.Positions)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&storemodel.FundPortfolioModel{}).
		Where("config_id = ? AND trading_date = ?", configID, date.Format(dateLayout)).
		Updates(map[string]interface{}{
			"cashflow":     p.Cashflow,
			"total_assets": round2(p.Cashflow + p.PositionsValue()),
			"positions":    datatypes.JSON(positions),
			"updated_at":   time.Now().UnixMilli(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("no portfolio snapshot for config %s on %s", configID, date.Format(dateLayout))
	}
	return nil
}

func (s *GormStore) GetLatestTradingDate(ctx context.Context, configID string) (time.Time, bool, error) {
	var m storemodel.FundPortfolioModel
	err := s.db.WithContext(ctx).
		Where("config_id = ? AND trading_date <> ''", configID).
		Order("updated_at DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	date, err := time.Parse(dateLayout, m.TradingDate)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("malformed trading_date %q: %w", m.TradingDate, err)
	}
	return date, true, nil
}

func (s *GormStore) ListPortfolios(ctx context.Context, configID string) ([]types.Portfolio, error) {
	var models []storemodel.FundPortfolioModel
	if err := s.db.WithContext(ctx).
		Where("config_id = ?", configID).
		Order("trading_date ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]types.Portfolio, 0, len(models))
	for _, m := range models {
		p, err := portfolioModelToSnapshot(m)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// --------------------------- Audit records --------------------------------

func (s *GormStore) SaveDecision(ctx context.Context, portfolioID, ticker string, d types.Decision, date time.Time) (string, error) {
	m := storemodel.FundDecisionModel{
		ID:            uuid.NewString(),
		PortfolioID:   portfolioID,
		TradingDate:   date.Format(dateLayout),
		ItemName:      ticker,
		ModelPrompt:   d.Prompt,
		Action:        string(d.Action),
		Quantity:      d.Shares,
		Price:         d.Price,
		Justification: d.Justification,
		MarketType:    storemodel.MarketType,
		UpdatedAtUnix: time.Now().UnixMilli(),
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return "", err
	}
	return m.ID, nil
}

func (s *GormStore) SaveSignal(ctx context.Context, portfolioID, ticker string, sig types.Signal) (string, error) {
	m := storemodel.FundSignalModel{
		ID:            uuid.NewString(),
		PortfolioID:   portfolioID,
		ItemName:      ticker,
		ModelPrompt:   sig.Prompt,
		Analyst:       sig.Step,
		Signal:        string(sig.Direction),
		Justification: sig.Justification,
		MarketType:    storemodel.MarketType,
		UpdatedAtUnix: time.Now().UnixMilli(),
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return "", err
	}
	return m.ID, nil
}

// GetDecisionMemory returns the most recent decisions for one ticker across
// the experiment's recent portfolio snapshots, newest first.
func (s *GormStore) GetDecisionMemory(ctx context.Context, expName, ticker string, limit int) ([]store.DecisionMemory, error) {
	if limit <= 0 {
		limit = 5
	}
	configID, err := s.GetConfigIDByName(ctx, expName)
	if err != nil {
		return nil, err
	}
	if configID == "" {
		return nil, nil
	}
	var portfolioIDs []string
	if err := s.db.WithContext(ctx).Model(&storemodel.FundPortfolioModel{}).
		Where("config_id = ?", configID).
		Order("updated_at DESC").
		Limit(limit).
		Pluck("id", &portfolioIDs).Error; err != nil {
		return nil, err
	}
	if len(portfolioIDs) == 0 {
		return nil, nil
	}
	var models []storemodel.FundDecisionModel
	if err := s.db.WithContext(ctx).
		Where("portfolio_id IN ? AND item_name = ?", portfolioIDs, ticker).
		Order("updated_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]store.DecisionMemory, 0, len(models))
	for _, m := range models {
		out = append(out, store.DecisionMemory{
			TradingDate: m.TradingDate,
			Action:      m.Action,
			Shares:      m.Quantity,
			Price:       m.Price,
		})
	}
	return out, nil
}

func (s *GormStore) ListDecisions(ctx context.Context, configID, ticker string, limit int) ([]store.DecisionRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := s.db.WithContext(ctx).
		Table("fund_decisions").
		Joins("JOIN fund_portfolios ON fund_portfolios.id = fund_decisions.portfolio_id").
		Where("fund_portfolios.config_id = ?", configID)
	if ticker != "" {
		query = query.Where("fund_decisions.item_name = ?", ticker)
	}
	var models []storemodel.FundDecisionModel
	if err := query.
		Order("fund_decisions.updated_at DESC").
		Limit(limit).
		Select("fund_decisions.*").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]store.DecisionRecord, 0, len(models))
	for _, m := range models {
		out = append(out, store.DecisionRecord{
			ID:            m.ID,
			PortfolioID:   m.PortfolioID,
			TradingDate:   m.TradingDate,
			Ticker:        m.ItemName,
			Action:        m.Action,
			Shares:        m.Quantity,
			Price:         m.Price,
			Justification: m.Justification,
			CreatedAt:     time.UnixMilli(m.UpdatedAtUnix),
		})
	}
	return out, nil
}

func (s *GormStore) ListSignals(ctx context.Context, configID, ticker string, limit int) ([]store.SignalRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := s.db.WithContext(ctx).
		Table("fund_signals").
		Joins("JOIN fund_portfolios ON fund_portfolios.id = fund_signals.portfolio_id").
		Where("fund_portfolios.config_id = ?", configID)
	if ticker != "" {
		query = query.Where("fund_signals.item_name = ?", ticker)
	}
	var models []storemodel.FundSignalModel
	if err := query.
		Order("fund_signals.updated_at DESC").
		Limit(limit).
		Select("fund_signals.*").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]store.SignalRecord, 0, len(models))
	for _, m := range models {
		out = append(out, store.SignalRecord{
			ID:            m.ID,
			PortfolioID:   m.PortfolioID,
			Ticker:        m.ItemName,
			Analyst:       m.Analyst,
			Signal:        m.Signal,
			Justification: m.Justification,
			CreatedAt:     time.UnixMilli(m.UpdatedAtUnix),
		})
	}
	return out, nil
}

// --------------------------- Model helpers --------------------------------

func portfolioModelToSnapshot(m storemodel.FundPortfolioModel) (types.Portfolio, error) {
	positions := map[string]types.Position{}
	if len(m.Positions) > 0 {
		if err := json.Unmarshal(m.Positions, &positions); err != nil {
			return types.Portfolio{}, fmt.Errorf("parse positions for portfolio %s: %w", m.ID, err)
		}
	}
	var date time.Time
	if m.TradingDate != "" {
		parsed, err := time.Parse(dateLayout, m.TradingDate)
		if err != nil {
			return types.Portfolio{}, fmt.Errorf("parse trading_date for portfolio %s: %w", m.ID, err)
		}
		date = parsed
	}
	return types.Portfolio{
		ID:          m.ID,
		ConfigID:    m.ConfigID,
		TradingDate: date,
		Cashflow:    m.Cashflow,
		Positions:   positions,
		TotalAssets: m.TotalAssets,
	}, nil
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
