package model

import (
	"gorm.io/datatypes"
)

// MarketType tags every row; kept as a column so one database can host
// experiments against other item universes later.
const MarketType = "cs2"

type FundConfigModel struct {
	ID            string         `gorm:"column:id;primaryKey"`
	ExpName       string         `gorm:"column:exp_name;uniqueIndex"`
	Items         datatypes.JSON `gorm:"column:items;type:TEXT"`
	HasPlanner    bool           `gorm:"column:has_planner"`
	LLMModel      string         `gorm:"column:llm_model"`
	LLMProvider   string         `gorm:"column:llm_provider"`
	MarketType    string         `gorm:"column:market_type"`
	UpdatedAtUnix int64          `gorm:"column:updated_at"`
}

func (FundConfigModel) TableName() string { return "fund_configs" }

type FundPortfolioModel struct {
	ID            string         `gorm:"column:id;primaryKey"`
	ConfigID      string         `gorm:"column:config_id;index:idx_portfolio_config_date,priority:1"`
	TradingDate   string         `gorm:"column:trading_date;index:idx_portfolio_config_date,priority:2"`
	Cashflow      float64        `gorm:"column:cashflow"`
	TotalAssets   float64        `gorm:"column:total_assets"`
	Positions     datatypes.JSON `gorm:"column:positions;type:TEXT"`
	MarketType    string         `gorm:"column:market_type"`
	UpdatedAtUnix int64          `gorm:"column:updated_at;index"`
}

func (FundPortfolioModel) TableName() string { return "fund_portfolios" }

type FundDecisionModel struct {
	ID            string  `gorm:"column:id;primaryKey"`
	PortfolioID   string  `gorm:"column:portfolio_id;index"`
	TradingDate   string  `gorm:"column:trading_date"`
	ItemName      string  `gorm:"column:item_name;index"`
	ModelPrompt   string  `gorm:"column:model_prompt;type:TEXT"`
	Action        string  `gorm:"column:action"`
	Quantity      int64   `gorm:"column:quantity"`
	Price         float64 `gorm:"column:price"`
	Justification string  `gorm:"column:justification;type:TEXT"`
	MarketType    string  `gorm:"column:market_type"`
	UpdatedAtUnix int64   `gorm:"column:updated_at;index"`
}

func (FundDecisionModel) TableName() string { return "fund_decisions" }

type FundSignalModel struct {
	ID            string `gorm:"column:id;primaryKey"`
	PortfolioID   string `gorm:"column:portfolio_id;index"`
	ItemName      string `gorm:"column:item_name;index"`
	ModelPrompt   string `gorm:"column:model_prompt;type:TEXT"`
	Analyst       string `gorm:"column:analyst"`
	Signal        string `gorm:"column:signal"`
	Justification string `gorm:"column:justification;type:TEXT"`
	MarketType    string `gorm:"column:market_type"`
	UpdatedAtUnix int64  `gorm:"column:updated_at;index"`
}

func (FundSignalModel) TableName() string { return "fund_signals" }

// Pre-fetched market data. Saver tooling populates these tables offline; the
// engine only reads them.

type MarketCandleModel struct {
	ID       int64   `gorm:"column:id;primaryKey"`
	ItemName string  `gorm:"column:item_name;uniqueIndex:idx_candle_item_date,priority:1"`
	Date     string  `gorm:"column:date;uniqueIndex:idx_candle_item_date,priority:2"`
	Open     float64 `gorm:"column:open"`
	High     float64 `gorm:"column:high"`
	Low      float64 `gorm:"column:low"`
	Close    float64 `gorm:"column:close"`
	Volume   float64 `gorm:"column:volume"`
}

func (MarketCandleModel) TableName() string { return "market_candles" }

type RedditPostModel struct {
	ID            int64  `gorm:"column:id;primaryKey"`
	ItemName      string `gorm:"column:item_name;index"`
	Subreddit     string `gorm:"column:subreddit"`
	Title         string `gorm:"column:title;type:TEXT"`
	Body          string `gorm:"column:body;type:TEXT"`
	Score         int    `gorm:"column:score"`
	Comments      int    `gorm:"column:comments"`
	CreatedAtUnix int64  `gorm:"column:created_at;index"`
}

func (RedditPostModel) TableName() string { return "reddit_posts" }

type SteamNewsModel struct {
	ID              int64  `gorm:"column:id;primaryKey"`
	Title           string `gorm:"column:title;type:TEXT"`
	Contents        string `gorm:"column:contents;type:TEXT"`
	URL             string `gorm:"column:url"`
	PublishedAtUnix int64  `gorm:"column:published_at;index"`
}

func (SteamNewsModel) TableName() string { return "steam_news" }
