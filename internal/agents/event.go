package agents

import (
	"context"
	"fmt"

	"skinfund/internal/logger"
	"skinfund/internal/types"
)

const (
	eventNewsLimit  = 15
	eventWindowDays = 7
)

// EventAnalyst weighs official news for supply and visibility impact on one
// item's price.
type EventAnalyst struct {
	deps *Deps
}

func NewEventAnalyst(deps *Deps) *EventAnalyst {
	return &EventAnalyst{deps: deps}
}

func (a *EventAnalyst) ID() string { return StepEvent }

func (a *EventAnalyst) Describe() string {
	return "Event analysis specialist analyzing Steam official news and game updates for their impact on CS2 item prices (supply mechanism, visibility/popularity, market sentiment)."
}

func (a *EventAnalyst) Analyze(ctx context.Context, sc types.StepContext) (types.Signal, error) {
	logger.Infof("[%s] %s: analyzing official news and events", StepEvent, sc.Ticker)

	news, err := a.deps.News.HistoricalNews(ctx, sc.Ticker, sc.TradingDate, eventWindowDays, eventNewsLimit)
	if err != nil {
		logger.Errorf("[%s] %s: news fetch failed: %v", StepEvent, sc.Ticker, err)
		news = nil
	}

	prompt := fmt.Sprintf(eventPromptTmpl, sc.Ticker, len(news), marshalIndent(news))
	sig, callErr := a.deps.signalCall(ctx, sc, StepEvent, prompt)
	if callErr != nil {
		logger.Errorf("[%s] %s: model call failed: %v", StepEvent, sc.Ticker, callErr)
		return types.DegradedSignal(StepEvent,
			fmt.Sprintf("event model call failed for %s: %v", sc.Ticker, callErr)), nil
	}
	return sig, nil
}
