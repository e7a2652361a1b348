package agents

import (
	"context"
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"

	"skinfund/internal/logger"
	"skinfund/internal/types"
)

const (
	technicalLookbackDays = 60
	technicalMinBars      = 30
	technicalEmaFast      = 12
	technicalEmaSlow      = 26
	technicalRsiPeriod    = 14
	technicalAtrPeriod    = 14
	technicalLevelWindow  = 14
)

// TechnicalAnalyst runs the indicator battery over daily candles and asks the
// model to synthesize a direction from the computed readings.
type TechnicalAnalyst struct {
	deps *Deps
}

func NewTechnicalAnalyst(deps *Deps) *TechnicalAnalyst {
	return &TechnicalAnalyst{deps: deps}
}

func (a *TechnicalAnalyst) ID() string { return StepTechnical }

func (a *TechnicalAnalyst) Describe() string {
	return "Technical analysis specialist using multiple technical analysis strategies."
}

func (a *TechnicalAnalyst) Analyze(ctx context.Context, sc types.StepContext) (types.Signal, error) {
	logger.Infof("[%s] %s: computing indicator battery", StepTechnical, sc.Ticker)

	candles, err := a.deps.Candles.DailyCandles(ctx, sc.Ticker, sc.TradingDate, technicalLookbackDays)
	if err != nil {
		logger.Errorf("[%s] %s: candle fetch failed: %v", StepTechnical, sc.Ticker, err)
		return types.DegradedSignal(StepTechnical,
			fmt.Sprintf("price history unavailable for %s: %v", sc.Ticker, err)), nil
	}
	if len(candles) < technicalMinBars {
		return types.DegradedSignal(StepTechnical,
			fmt.Sprintf("only %d daily bars for %s (need %d); not enough history for indicators", len(candles), sc.Ticker, technicalMinBars)), nil
	}

	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
		volumes[i] = c.Volume
	}

	prompt := fmt.Sprintf(technicalPromptTmpl,
		trendReading(closes),
		meanReversionReading(closes),
		rsiReading(closes),
		volatilityReading(highs, lows, closes),
		volumeReading(volumes),
		priceLevelReading(highs, lows, closes),
	)

	sig, callErr := a.deps.signalCall(ctx, sc, StepTechnical, prompt)
	if callErr != nil {
		logger.Errorf("[%s] %s: model call failed: %v", StepTechnical, sc.Ticker, callErr)
		return types.DegradedSignal(StepTechnical,
			fmt.Sprintf("technical model call failed for %s: %v", sc.Ticker, callErr)), nil
	}
	return sig, nil
}

func last(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

func trendReading(closes []float64) string {
	fast := last(talib.Ema(closes, technicalEmaFast))
	slow := last(talib.Ema(closes, technicalEmaSlow))
	_, _, hist := talib.Macd(closes, technicalEmaFast, technicalEmaSlow, 9)
	h := last(hist)
	direction := "flat"
	if fast > slow && h > 0 {
		direction = "uptrend"
	} else if fast < slow && h < 0 {
		direction = "downtrend"
	}
	return fmt.Sprintf("EMA%d=%.2f vs EMA%d=%.2f, MACD histogram=%.4f, trend reads as %s",
		technicalEmaFast, fast, technicalEmaSlow, slow, h, direction)
}

func meanReversionReading(closes []float64) string {
	sma := last(talib.Sma(closes, technicalEmaSlow))
	price := last(closes)
	if sma == 0 {
		return "insufficient data for mean reversion"
	}
	dev := (price - sma) / sma * 100
	state := "near its mean"
	if dev > 5 {
		state = "stretched above its mean"
	} else if dev < -5 {
		state = "stretched below its mean"
	}
	return fmt.Sprintf("price %.2f is %.1f%% from its %d-day mean (%.2f), %s", price, dev, technicalEmaSlow, sma, state)
}

func rsiReading(closes []float64) string {
	rsi := last(talib.Rsi(closes, technicalRsiPeriod))
	zone := "neutral"
	if rsi >= 70 {
		zone = "overbought"
	} else if rsi <= 30 {
		zone = "oversold"
	}
	return fmt.Sprintf("RSI(%d)=%.1f (%s)", technicalRsiPeriod, rsi, zone)
}

func volatilityReading(highs, lows, closes []float64) string {
	atr := last(talib.Atr(highs, lows, closes, technicalAtrPeriod))
	price := last(closes)
	if price == 0 {
		return "volatility unavailable"
	}
	pct := atr / price * 100
	level := "moderate"
	if pct > 6 {
		level = "high"
	} else if pct < 2 {
		level = "low"
	}
	return fmt.Sprintf("ATR(%d)=%.2f (%.1f%% of price), volatility is %s", technicalAtrPeriod, atr, pct, level)
}

func volumeReading(volumes []float64) string {
	if len(volumes) == 0 {
		return "no volume data"
	}
	window := volumes
	if len(window) > 7 {
		window = window[len(window)-7:]
	}
	var recent float64
	for _, v := range window {
		recent += v
	}
	recent /= float64(len(window))
	var overall float64
	for _, v := range volumes {
		overall += v
	}
	overall /= float64(len(volumes))
	trend := "in line with"
	if overall > 0 {
		ratio := recent / overall
		if ratio > 1.25 {
			trend = "running above"
		} else if ratio < 0.75 {
			trend = "running below"
		}
	}
	return fmt.Sprintf("7-day average volume %.0f is %s the %d-day average %.0f", recent, trend, len(volumes), overall)
}

func priceLevelReading(highs, lows, closes []float64) string {
	window := technicalLevelWindow
	if len(highs) < window {
		window = len(highs)
	}
	resistance := math.Inf(-1)
	support := math.Inf(1)
	for i := len(highs) - window; i < len(highs); i++ {
		resistance = math.Max(resistance, highs[i])
		support = math.Min(support, lows[i])
	}
	return fmt.Sprintf("last %d days: support around %.2f, resistance around %.2f, close %.2f",
		window, support, resistance, last(closes))
}
