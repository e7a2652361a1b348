package agents

import (
	"context"
	"fmt"

	"skinfund/internal/logger"
	"skinfund/internal/types"
)

// SentimentReverseAnalyst applies the contrarian hypothesis on top of the
// base sentiment signal: crowded bullish chatter reads as overheating,
// crowded bearish chatter as overselling.
type SentimentReverseAnalyst struct {
	deps *Deps
	base *SentimentAnalyst
}

func NewSentimentReverseAnalyst(deps *Deps, base *SentimentAnalyst) *SentimentReverseAnalyst {
	return &SentimentReverseAnalyst{deps: deps, base: base}
}

func (a *SentimentReverseAnalyst) ID() string { return StepSentimentReverse }

func (a *SentimentReverseAnalyst) Describe() string {
	return "Reverse sentiment analysis specialist for CS2 market items. Uses contrarian hypothesis: when Reddit discussion is overly bullish, it may indicate market overheating and returns Bearish signal."
}

func (a *SentimentReverseAnalyst) Analyze(ctx context.Context, sc types.StepContext) (types.Signal, error) {
	logger.Infof("[%s] %s: analyzing Reddit sentiment (reverse mode)", StepSentimentReverse, sc.Ticker)

	original, err := a.base.Analyze(ctx, sc)
	if err != nil {
		return types.Signal{}, err
	}

	prompt := fmt.Sprintf(sentimentReversePromptTmpl,
		original.Direction, original.Justification, sc.Ticker)
	sig, callErr := a.deps.signalCall(ctx, sc, StepSentimentReverse, prompt)
	if callErr != nil {
		logger.Errorf("[%s] %s: model call failed: %v", StepSentimentReverse, sc.Ticker, callErr)
		return types.DegradedSignal(StepSentimentReverse,
			fmt.Sprintf("contrarian model call failed for %s: %v", sc.Ticker, callErr)), nil
	}
	if original.Degraded {
		sig.Degraded = true
	}
	return sig, nil
}
