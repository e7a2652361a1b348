package agents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skinfund/internal/market"
	"skinfund/internal/store"
	"skinfund/internal/types"
)

// fakeProvider replays canned responses in order.
type fakeProvider struct {
	responses []string
	errs      []error
	calls     []string
}

func (f *fakeProvider) ID() string { return "fake" }

func (f *fakeProvider) Call(_ context.Context, _, user string) (string, error) {
	i := len(f.calls)
	f.calls = append(f.calls, user)
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", errors.New("no canned response")
}

type fakeCandles struct {
	candles []market.Candle
	price   float64
	err     error
}

func (f *fakeCandles) DailyCandles(context.Context, string, time.Time, int) ([]market.Candle, error) {
	return f.candles, f.err
}

func (f *fakeCandles) LatestPrice(context.Context, string, time.Time) (float64, error) {
	return f.price, f.err
}

type fakeReddit struct {
	posts []market.RedditPost
	err   error
}

func (f *fakeReddit) RelevantPosts(context.Context, market.PostQuery) ([]market.RedditPost, error) {
	return f.posts, f.err
}

type fakeNews struct {
	items []market.NewsItem
	err   error
}

func (f *fakeNews) HistoricalNews(context.Context, string, time.Time, int, int) ([]market.NewsItem, error) {
	return f.items, f.err
}

// fakeStore only serves decision memory; the rest of the interface is unused
// by the steps under test.
type fakeStore struct {
	store.Store
	memory []store.DecisionMemory
	err    error
}

func (f *fakeStore) GetDecisionMemory(context.Context, string, string, int) ([]store.DecisionMemory, error) {
	return f.memory, f.err
}

func testStepContext() types.StepContext {
	return types.StepContext{
		Ticker:      "AK-47 | Redline (Field-Tested)",
		TradingDate: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
		ExpName:     "T-test",
		Model:       types.ModelConfig{Provider: "openai", Model: "gpt-4o-mini"},
		Portfolio: types.Portfolio{
			Cashflow:  1000,
			Positions: map[string]types.Position{},
		},
		NumTickers: 2,
		FeeEnabled: true,
	}
}

const signalJSON = `{"signal": "Bullish", "justification": "demand outpaces supply"}`

func TestParseSignal(t *testing.T) {
	sig, err := parseSignal("sentiment", "p", "analysis:\n```json\n"+signalJSON+"\n```")
	require.NoError(t, err)
	assert.Equal(t, types.Bullish, sig.Direction)
	assert.Equal(t, "demand outpaces supply", sig.Justification)
	assert.Equal(t, "p", sig.Prompt)

	_, err = parseSignal("sentiment", "p", `{"signal": "Sideways", "justification": "x"}`)
	assert.Error(t, err)

	_, err = parseSignal("sentiment", "p", "no json here")
	assert.Error(t, err)
}

func TestParseDecisionCoercesQuotedNumbers(t *testing.T) {
	d, err := parseDecision("p", `{"action": "Buy", "shares": "3", "price": "95.5", "justification": "ok"}`)
	require.NoError(t, err)
	assert.Equal(t, types.ActionBuy, d.Action)
	assert.EqualValues(t, 3, d.Shares)
	assert.InDelta(t, 95.5, d.Price, 1e-9)

	_, err = parseDecision("p", `{"action": "Short", "shares": 3}`)
	assert.Error(t, err)
}

func TestSentimentDegradesOnFetchErrorWhenModelFails(t *testing.T) {
	deps := &Deps{
		Provider: &fakeProvider{errs: []error{errors.New("model down")}},
		Reddit:   &fakeReddit{err: errors.New("reddit unavailable")},
	}
	a := NewSentimentAnalyst(deps)
	sig, err := a.Analyze(context.Background(), testStepContext())
	require.NoError(t, err)
	assert.True(t, sig.Degraded)
	assert.Equal(t, types.Neutral, sig.Direction)
	assert.Contains(t, sig.Justification, "fetch failed")
}

func TestSentimentInsufficientPostsUsesFallbackPrompt(t *testing.T) {
	fp := &fakeProvider{responses: []string{`{"signal": "Neutral", "justification": "too few posts"}`}}
	deps := &Deps{
		Provider: fp,
		Reddit:   &fakeReddit{posts: make([]market.RedditPost, 3)},
	}
	a := NewSentimentAnalyst(deps)
	sig, err := a.Analyze(context.Background(), testStepContext())
	require.NoError(t, err)
	assert.True(t, sig.Degraded)
	assert.Equal(t, types.Neutral, sig.Direction)
	require.Len(t, fp.calls, 1)
	assert.Contains(t, fp.calls[0], "not enough data")
}

func TestSentimentHappyPath(t *testing.T) {
	posts := make([]market.RedditPost, sentimentMinPosts)
	for i := range posts {
		posts[i] = market.RedditPost{Title: "price check", Score: 10}
	}
	fp := &fakeProvider{responses: []string{signalJSON}}
	a := NewSentimentAnalyst(&Deps{Provider: fp, Reddit: &fakeReddit{posts: posts}})
	sig, err := a.Analyze(context.Background(), testStepContext())
	require.NoError(t, err)
	assert.False(t, sig.Degraded)
	assert.Equal(t, types.Bullish, sig.Direction)
}

func TestSentimentReverseKeepsPipeline(t *testing.T) {
	posts := make([]market.RedditPost, sentimentMinPosts)
	fp := &fakeProvider{responses: []string{
		signalJSON,
		`{"signal": "Bearish", "justification": "crowded bullish chatter reads as overheating"}`,
	}}
	deps := &Deps{Provider: fp, Reddit: &fakeReddit{posts: posts}}
	base := NewSentimentAnalyst(deps)
	a := NewSentimentReverseAnalyst(deps, base)
	sig, err := a.Analyze(context.Background(), testStepContext())
	require.NoError(t, err)
	assert.Equal(t, types.Bearish, sig.Direction)
	require.Len(t, fp.calls, 2)
	assert.Contains(t, fp.calls[1], "contrarian")
}

func TestTechnicalDegradesOnShortHistory(t *testing.T) {
	a := NewTechnicalAnalyst(&Deps{Candles: &fakeCandles{candles: make([]market.Candle, 5)}})
	sig, err := a.Analyze(context.Background(), testStepContext())
	require.NoError(t, err)
	assert.True(t, sig.Degraded)
	assert.Equal(t, types.Neutral, sig.Direction)
}

func TestTechnicalHappyPath(t *testing.T) {
	candles := make([]market.Candle, technicalLookbackDays)
	for i := range candles {
		price := 100 + float64(i)*0.5
		candles[i] = market.Candle{Open: price, High: price + 2, Low: price - 2, Close: price, Volume: 50}
	}
	fp := &fakeProvider{responses: []string{signalJSON}}
	a := NewTechnicalAnalyst(&Deps{Provider: fp, Candles: &fakeCandles{candles: candles}})
	sig, err := a.Analyze(context.Background(), testStepContext())
	require.NoError(t, err)
	assert.Equal(t, types.Bullish, sig.Direction)
	require.Len(t, fp.calls, 1)
	assert.Contains(t, fp.calls[0], "RSI")
	assert.Contains(t, fp.calls[0], "Support and Resistance")
}

func TestEventAnalystToleratesFetchFailure(t *testing.T) {
	fp := &fakeProvider{responses: []string{`{"signal": "Neutral", "justification": "no news"}`}}
	a := NewEventAnalyst(&Deps{Provider: fp, News: &fakeNews{err: errors.New("source down")}})
	sig, err := a.Analyze(context.Background(), testStepContext())
	require.NoError(t, err)
	assert.Equal(t, types.Neutral, sig.Direction)
	assert.Contains(t, fp.calls[0], "(0 items)")
}

func TestLiquidityBuildsBothAnalyses(t *testing.T) {
	candles := []market.Candle{{Volume: 500}, {Volume: 600}}
	posts := []market.RedditPost{
		{Score: 60, Comments: 25}, {Score: 70, Comments: 30}, {Score: 80, Comments: 10},
	}
	fp := &fakeProvider{responses: []string{signalJSON}}
	a := NewLiquidityAnalyst(&Deps{
		Provider: fp,
		Candles:  &fakeCandles{candles: candles},
		Reddit:   &fakeReddit{posts: posts},
	})
	sig, err := a.Analyze(context.Background(), testStepContext())
	require.NoError(t, err)
	assert.Equal(t, types.Bullish, sig.Direction)
	require.Len(t, fp.calls, 1)
	assert.Contains(t, fp.calls[0], "Volume status: High")
	assert.Contains(t, fp.calls[0], "Engagement level: High")
}

func TestPlannerFiltersUnknownSelections(t *testing.T) {
	fp := &fakeProvider{responses: []string{
		`{"analysts": ["technical", "astrology", "sentiment", "technical"], "justification": "momentum item"}`,
	}}
	p := NewPlanner(&Deps{Provider: fp}, func(id string) string { return "doc for " + id })
	got, err := p.Plan(context.Background(), "ticker", types.ModelConfig{}, []string{"technical", "sentiment", "event"})
	require.NoError(t, err)
	assert.Equal(t, []string{"technical", "sentiment"}, got)
}

func TestPlannerFailsWithoutCandidates(t *testing.T) {
	p := NewPlanner(&Deps{}, func(string) string { return "" })
	_, err := p.Plan(context.Background(), "ticker", types.ModelConfig{}, nil)
	assert.Error(t, err)
}

func TestManagerDecideHappyPath(t *testing.T) {
	fp := &fakeProvider{responses: []string{
		`{"optimal_position_ratio": 0.4, "justification": "two bullish signals"}`,
		`{"action": "Buy", "shares": 4, "price": 100, "justification": "room to build"}`,
	}}
	m := NewPortfolioManager(&Deps{
		Provider: fp,
		Candles:  &fakeCandles{price: 100},
		Store:    &fakeStore{memory: []store.DecisionMemory{{TradingDate: "2025-09-30", Action: "Hold"}}},
	})
	sc := testStepContext()
	signals := []types.Signal{{Step: "technical", Direction: types.Bullish}}
	d, err := m.Decide(context.Background(), sc, signals)
	require.NoError(t, err)
	assert.Equal(t, types.ActionBuy, d.Action)
	assert.EqualValues(t, 4, d.Shares)
	// ratio request clamps to 1/numTickers and carries the signals
	assert.Contains(t, fp.calls[0], "technical")
	assert.Contains(t, fp.calls[1], "Tradable Shares")
	assert.Contains(t, fp.calls[1], "selling fee 2.00%")
}

func TestManagerDirectModeUsesDirectRiskPrompt(t *testing.T) {
	fp := &fakeProvider{responses: []string{
		`{"optimal_position_ratio": 0.2, "justification": "thin market"}`,
		`{"action": "Hold", "shares": 0, "price": 50, "justification": "no edge"}`,
	}}
	m := NewPortfolioManager(&Deps{
		Provider: fp,
		Candles:  &fakeCandles{price: 50},
		Store:    &fakeStore{},
	})
	d, err := m.Decide(context.Background(), testStepContext(), nil)
	require.NoError(t, err)
	assert.Equal(t, types.ActionHold, d.Action)
	assert.Contains(t, fp.calls[0], "Analyze the CS2 item")
}

func TestManagerFatalOnMalformedDecision(t *testing.T) {
	fp := &fakeProvider{responses: []string{
		`{"optimal_position_ratio": 0.5}`,
		`not json at all`,
	}}
	m := NewPortfolioManager(&Deps{
		Provider: fp,
		Candles:  &fakeCandles{price: 100},
		Store:    &fakeStore{},
	})
	_, err := m.Decide(context.Background(), testStepContext(), nil)
	assert.Error(t, err)
}

func TestManagerFatalOnBadPrice(t *testing.T) {
	m := NewPortfolioManager(&Deps{Candles: &fakeCandles{price: 0}})
	_, err := m.Decide(context.Background(), testStepContext(), nil)
	assert.Error(t, err)
}

func TestMaxPositionRatio(t *testing.T) {
	assert.Equal(t, 1.0, maxPositionRatio(1))
	assert.Equal(t, 1.0, maxPositionRatio(0))
	assert.InDelta(t, 0.25, maxPositionRatio(4), 1e-9)
}

func TestTradableShares(t *testing.T) {
	p := types.Portfolio{
		Cashflow:  500,
		Positions: map[string]types.Position{"x": {Shares: 5, Value: 500}},
	}
	// total=1000, target ratio 0.5 at price 100 => 5 shares target, 5 held
	assert.EqualValues(t, 0, tradableShares(p, 0.5, 100, 5))
	assert.EqualValues(t, 5, tradableShares(p, 1.0, 100, 5))
	assert.EqualValues(t, -5, tradableShares(p, 0, 100, 5))
}
