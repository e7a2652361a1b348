package agents

import (
	"context"
	"fmt"

	"skinfund/internal/logger"
	"skinfund/internal/market"
	"skinfund/internal/types"
)

// Reddit sentiment thresholds.
const (
	sentimentMinPosts      = 25
	sentimentRelevantLimit = 15
	sentimentMinScore      = 2
	sentimentMinComments   = 1
	sentimentWindowDays    = 7
)

// SentimentAnalyst reads community discussion and emits a short-term
// sentiment signal.
type SentimentAnalyst struct {
	deps *Deps
}

func NewSentimentAnalyst(deps *Deps) *SentimentAnalyst {
	return &SentimentAnalyst{deps: deps}
}

func (a *SentimentAnalyst) ID() string { return StepSentiment }

func (a *SentimentAnalyst) Describe() string {
	return "Sentiment analysis specialist analyzing Reddit community sentiment for CS2 market items."
}

func (a *SentimentAnalyst) Analyze(ctx context.Context, sc types.StepContext) (types.Signal, error) {
	logger.Infof("[%s] %s: fetching Reddit market sentiment", StepSentiment, sc.Ticker)

	posts, err := a.deps.Reddit.RelevantPosts(ctx, market.PostQuery{
		Ticker:      sc.Ticker,
		TradingDate: sc.TradingDate,
		WindowDays:  sentimentWindowDays,
		Limit:       sentimentRelevantLimit,
		MinScore:    sentimentMinScore,
		MinComments: sentimentMinComments,
	})
	if err != nil {
		logger.Errorf("[%s] %s: reddit fetch failed: %v", StepSentiment, sc.Ticker, err)
		prompt := fmt.Sprintf(sentimentFetchErrorPromptTmpl, sc.Ticker)
		sig, callErr := a.deps.signalCall(ctx, sc, StepSentiment, prompt)
		if callErr != nil {
			return types.DegradedSignal(StepSentiment,
				fmt.Sprintf("sentiment unavailable for %s: data fetch failed (%v)", sc.Ticker, err)), nil
		}
		sig.Degraded = true
		return sig, nil
	}

	if len(posts) < sentimentMinPosts {
		logger.Warnf("[%s] %s: insufficient posts %d < %d", StepSentiment, sc.Ticker, len(posts), sentimentMinPosts)
		prompt := fmt.Sprintf(sentimentInsufficientPromptTmpl, sc.Ticker, len(posts), sentimentMinPosts)
		sig, callErr := a.deps.signalCall(ctx, sc, StepSentiment, prompt)
		if callErr != nil {
			return types.DegradedSignal(StepSentiment,
				fmt.Sprintf("only %d relevant posts for %s (min %d); treating sentiment as neutral", len(posts), sc.Ticker, sentimentMinPosts)), nil
		}
		sig.Degraded = true
		return sig, nil
	}

	prompt := fmt.Sprintf(sentimentPromptTmpl, sc.Ticker, len(posts), marshalIndent(posts))
	sig, callErr := a.deps.signalCall(ctx, sc, StepSentiment, prompt)
	if callErr != nil {
		logger.Errorf("[%s] %s: model call failed: %v", StepSentiment, sc.Ticker, callErr)
		return types.DegradedSignal(StepSentiment,
			fmt.Sprintf("sentiment model call failed for %s: %v", sc.Ticker, callErr)), nil
	}
	return sig, nil
}
