package market

import (
	"context"
	"time"
)

// Candle is one daily OHLCV bar for a market item.
type Candle struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// RedditPost is a community post relevant to one item.
type RedditPost struct {
	Subreddit string    `json:"subreddit"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Score     int       `json:"score"`
	Comments  int       `json:"comments"`
	CreatedAt time.Time `json:"created_at"`
}

// NewsItem is one official news entry (game updates, crate releases, ...).
type NewsItem struct {
	Title       string    `json:"title"`
	Contents    string    `json:"contents"`
	URL         string    `json:"url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// PostQuery filters reddit posts for one ticker around a trading date.
type PostQuery struct {
	Ticker      string
	TradingDate time.Time
	WindowDays  int
	Limit       int
	MinScore    int
	MinComments int
}

// CandleSource serves pre-fetched daily candles. Live scraping is out of
// scope; implementations read rows a saver populated earlier.
type CandleSource interface {
	// DailyCandles returns up to days bars ending at (and including) the
	// trading date, oldest first.
	DailyCandles(ctx context.Context, ticker string, until time.Time, days int) ([]Candle, error)
	// LatestPrice returns the settlement price observed on or before date.
	LatestPrice(ctx context.Context, ticker string, date time.Time) (float64, error)
}

// RedditSource serves pre-fetched community posts.
type RedditSource interface {
	RelevantPosts(ctx context.Context, q PostQuery) ([]RedditPost, error)
}

// NewsSource serves pre-fetched official news.
type NewsSource interface {
	HistoricalNews(ctx context.Context, ticker string, date time.Time, windowDays, limit int) ([]NewsItem, error)
}
