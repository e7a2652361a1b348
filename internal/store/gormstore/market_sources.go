package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"skinfund/internal/market"
	storemodel "skinfund/internal/store/model"
)

var (
	_ market.CandleSource = (*GormStore)(nil)
	_ market.RedditSource = (*GormStore)(nil)
	_ market.NewsSource   = (*GormStore)(nil)
)

// DailyCandles returns up to days bars ending at the trading date, oldest
// first.
func (s *GormStore) DailyCandles(ctx context.Context, ticker string, until time.Time, days int) ([]market.Candle, error) {
	if days <= 0 {
		days = 30
	}
	var models []storemodel.MarketCandleModel
	if err := s.db.WithContext(ctx).
		Where("item_name = ? AND date <= ?", ticker, until.Format(dateLayout)).
		Order("date DESC").
		Limit(days).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]market.Candle, 0, len(models))
	for i := len(models) - 1; i >= 0; i-- {
		m := models[i]
		d, err := time.Parse(dateLayout, m.Date)
		if err != nil {
			return nil, fmt.Errorf("malformed candle date %q for %s: %w", m.Date, ticker, err)
		}
		out = append(out, market.Candle{
			Date:   d,
			Open:   m.Open,
			High:   m.High,
			Low:    m.Low,
			Close:  m.Close,
			Volume: m.Volume,
		})
	}
	return out, nil
}

// LatestPrice returns the close observed on or before date.
func (s *GormStore) LatestPrice(ctx context.Context, ticker string, date time.Time) (float64, error) {
	var m storemodel.MarketCandleModel
	err := s.db.WithContext(ctx).
		Where("item_name = ? AND date <= ?", ticker, date.Format(dateLayout)).
		Order("date DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("no price for %s on or before %s", ticker, date.Format(dateLayout))
	}
	if err != nil {
		return 0, err
	}
	return m.Close, nil
}

// RelevantPosts returns pre-fetched posts matching the ticker inside the
// query window, filtered by minimum engagement.
func (s *GormStore) RelevantPosts(ctx context.Context, q market.PostQuery) ([]market.RedditPost, error) {
	window := q.WindowDays
	if window <= 0 {
		window = 7
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 15
	}
	from := q.TradingDate.AddDate(0, 0, -window)

	// Tickers carry wear suffixes like "(Field-Tested)"; match on the base
	// item name the way posts actually mention it.
	needle := q.Ticker
	if idx := strings.Index(needle, "("); idx > 0 {
		needle = strings.TrimSpace(needle[:idx])
	}

	var models []storemodel.RedditPostModel
	if err := s.db.WithContext(ctx).
		Where("created_at >= ? AND created_at <= ?", from.UnixMilli(), q.TradingDate.AddDate(0, 0, 1).UnixMilli()).
		Where("item_name = ? OR title LIKE ? OR body LIKE ?", q.Ticker, "%"+needle+"%", "%"+needle+"%").
		Where("score >= ? AND comments >= ?", q.MinScore, q.MinComments).
		Order("score DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]market.RedditPost, 0, len(models))
	for _, m := range models {
		out = append(out, market.RedditPost{
			Subreddit: m.Subreddit,
			Title:     m.Title,
			Body:      m.Body,
			Score:     m.Score,
			Comments:  m.Comments,
			CreatedAt: time.UnixMilli(m.CreatedAtUnix),
		})
	}
	return out, nil
}

// HistoricalNews returns official news published inside the window ending at
// date, newest first.
func (s *GormStore) HistoricalNews(ctx context.Context, _ string, date time.Time, windowDays, limit int) ([]market.NewsItem, error) {
	if windowDays <= 0 {
		windowDays = 7
	}
	if limit <= 0 {
		limit = 15
	}
	from := date.AddDate(0, 0, -windowDays)

	var models []storemodel.SteamNewsModel
	if err := s.db.WithContext(ctx).
		Where("published_at >= ? AND published_at <= ?", from.UnixMilli(), date.AddDate(0, 0, 1).UnixMilli()).
		Order("published_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]market.NewsItem, 0, len(models))
	for _, m := range models {
		out = append(out, market.NewsItem{
			Title:       m.Title,
			Contents:    m.Contents,
			URL:         m.URL,
			PublishedAt: time.UnixMilli(m.PublishedAtUnix),
		})
	}
	return out, nil
}
