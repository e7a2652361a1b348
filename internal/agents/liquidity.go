package agents

import (
	"context"
	"fmt"

	"skinfund/internal/logger"
	"skinfund/internal/market"
	"skinfund/internal/types"
)

// Liquidity thresholds.
const (
	liquidityVolumeHigh   = 100
	liquidityVolumeLow    = 10
	liquidityHighScore    = 50
	liquidityLowScore     = 5
	liquidityHighComments = 20
	liquidityLowComments  = 2
	liquidityMinPosts     = 3
	liquidityPostLimit    = 15
	liquidityWindowDays   = 7
	liquidityVolumeDays   = 7
)

// LiquidityAnalyst scores market liquidity from trading volume and community
// engagement.
type LiquidityAnalyst struct {
	deps *Deps
}

func NewLiquidityAnalyst(deps *Deps) *LiquidityAnalyst {
	return &LiquidityAnalyst{deps: deps}
}

func (a *LiquidityAnalyst) ID() string { return StepLiquidity }

func (a *LiquidityAnalyst) Describe() string {
	return "Liquidity analysis specialist analyzing market liquidity based on trading volume and Reddit engagement for CS2 market items."
}

func (a *LiquidityAnalyst) Analyze(ctx context.Context, sc types.StepContext) (types.Signal, error) {
	logger.Infof("[%s] %s: analyzing market liquidity", StepLiquidity, sc.Ticker)

	volumeAnalysis := a.volumeAnalysis(ctx, sc)
	engagementAnalysis := a.engagementAnalysis(ctx, sc)

	prompt := fmt.Sprintf(liquidityPromptTmpl,
		volumeAnalysis, engagementAnalysis,
		liquidityVolumeHigh, liquidityVolumeLow,
		liquidityHighScore, liquidityHighComments,
		liquidityLowScore, liquidityLowComments,
		liquidityMinPosts, sc.Ticker)

	sig, err := a.deps.signalCall(ctx, sc, StepLiquidity, prompt)
	if err != nil {
		logger.Errorf("[%s] %s: model call failed: %v", StepLiquidity, sc.Ticker, err)
		return types.DegradedSignal(StepLiquidity,
			fmt.Sprintf("liquidity model call failed for %s: %v", sc.Ticker, err)), nil
	}
	return sig, nil
}

func (a *LiquidityAnalyst) volumeAnalysis(ctx context.Context, sc types.StepContext) string {
	candles, err := a.deps.Candles.DailyCandles(ctx, sc.Ticker, sc.TradingDate, liquidityVolumeDays)
	if err != nil {
		logger.Errorf("[%s] %s: volume fetch failed: %v", StepLiquidity, sc.Ticker, err)
		candles = nil
	}
	if len(candles) == 0 {
		return "Trading volume data is NOT available.\n" +
			"- Assessment: No trading volume data indicates potential liquidity risk as we cannot assess market activity."
	}
	var total float64
	for _, c := range candles {
		total += c.Volume
	}
	avg := total / float64(len(candles))
	latest := candles[len(candles)-1].Volume
	status := "moderate"
	assessment := "Moderate trading activity suggests acceptable liquidity"
	switch {
	case avg >= liquidityVolumeHigh:
		status = "High"
		assessment = "High trading activity indicates good market liquidity"
	case avg < liquidityVolumeLow:
		status = "Low"
		assessment = "Low trading activity indicates potential liquidity risk"
	default:
		status = "Moderate"
	}
	return fmt.Sprintf("Trading volume data is available.\n"+
		"- 7-day average volume: %.0f\n"+
		"- Latest volume: %.0f\n"+
		"- Volume status: %s\n"+
		"- Assessment: %s", avg, latest, status, assessment)
}

func (a *LiquidityAnalyst) engagementAnalysis(ctx context.Context, sc types.StepContext) string {
	posts, err := a.deps.Reddit.RelevantPosts(ctx, market.PostQuery{
		Ticker:      sc.Ticker,
		TradingDate: sc.TradingDate,
		WindowDays:  liquidityWindowDays,
		Limit:       liquidityPostLimit,
	})
	if err != nil {
		logger.Errorf("[%s] %s: reddit engagement fetch failed: %v", StepLiquidity, sc.Ticker, err)
		posts = nil
	}
	if len(posts) < liquidityMinPosts {
		return fmt.Sprintf("Reddit community engagement data is INSUFFICIENT.\n"+
			"- Number of relevant posts found: %d\n"+
			"- Minimum required: %d\n"+
			"- Assessment: Insufficient Reddit data limits our ability to assess community interest and market sentiment. This may indicate low market visibility or limited community discussion.",
			len(posts), liquidityMinPosts)
	}

	var totalScore, totalComments int
	for _, p := range posts {
		totalScore += p.Score
		totalComments += p.Comments
	}
	avgScore := float64(totalScore) / float64(len(posts))
	avgComments := float64(totalComments) / float64(len(posts))

	level := "Moderate"
	assessment := "Moderate community interest suggests acceptable market activity"
	switch {
	case avgScore >= liquidityHighScore || avgComments >= liquidityHighComments:
		level = "High"
		assessment = "Strong community interest indicates active market and good liquidity"
	case avgScore < liquidityLowScore && avgComments < liquidityLowComments:
		level = "Low"
		assessment = "Weak community interest may indicate low market activity and liquidity risk"
	}

	return fmt.Sprintf("Reddit community engagement data is available.\n"+
		"- Number of relevant posts: %d\n"+
		"- Average upvotes per post: %.1f\n"+
		"- Average comments per post: %.1f\n"+
		"- Total upvotes: %d\n"+
		"- Total comments: %d\n"+
		"- Engagement level: %s\n"+
		"- Assessment: %s",
		len(posts), avgScore, avgComments, totalScore, totalComments, level, assessment)
}
