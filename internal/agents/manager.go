package agents

import (
	"context"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"skinfund/internal/ledger"
	"skinfund/internal/logger"
	"skinfund/internal/pkg/jsonutil"
	"skinfund/internal/types"
)

const decisionMemoryLimit = 5

// PortfolioManager is the decision step. It first asks a risk-control prompt
// for the optimal position ratio, converts that into a tradable-shares bound,
// then asks for the final Buy/Sell/Hold. All of its failures are fatal for
// the trading date; there is no neutral fallback for a missing decision.
type PortfolioManager struct {
	deps *Deps
}

func NewPortfolioManager(deps *Deps) *PortfolioManager {
	return &PortfolioManager{deps: deps}
}

func (m *PortfolioManager) ID() string { return StepPortfolioManager }

func (m *PortfolioManager) Describe() string {
	return "Portfolio manager making final trading decisions based on the signals from the analysts."
}

func (m *PortfolioManager) Decide(ctx context.Context, sc types.StepContext, signals []types.Signal) (types.Decision, error) {
	price, err := m.deps.Candles.LatestPrice(ctx, sc.Ticker, sc.TradingDate)
	if err != nil {
		return types.Decision{}, fmt.Errorf("settlement price for %s: %w", sc.Ticker, err)
	}
	if price <= 0 {
		return types.Decision{}, fmt.Errorf("settlement price for %s is %.2f", sc.Ticker, price)
	}

	ratio, err := m.optimalPositionRatio(ctx, sc, signals)
	if err != nil {
		return types.Decision{}, err
	}

	currentShares := sc.Portfolio.Positions[sc.Ticker].Shares
	tradable := tradableShares(sc.Portfolio, ratio, price, currentShares)
	logger.Infof("[%s] %s: price=%.2f ratio=%.2f held=%d tradable=%d",
		StepPortfolioManager, sc.Ticker, price, ratio, currentShares, tradable)

	memory, err := m.deps.Store.GetDecisionMemory(ctx, sc.ExpName, sc.Ticker, decisionMemoryLimit)
	if err != nil {
		return types.Decision{}, fmt.Errorf("decision memory for %s: %w", sc.Ticker, err)
	}
	memoryJSON := "[]"
	if len(memory) > 0 {
		memoryJSON = marshalIndent(memory)
	}

	var prompt string
	if sc.FeeEnabled {
		prompt = fmt.Sprintf(portfolioPromptTmpl, memoryJSON, price, currentShares, tradable,
			ledger.FeeRate.InexactFloat64()*100)
	} else {
		prompt = fmt.Sprintf(portfolioPromptNoFeeTmpl, memoryJSON, price, currentShares, tradable)
	}

	raw, err := m.deps.call(ctx, sc, StepPortfolioManager, "", prompt)
	if err != nil {
		return types.Decision{}, fmt.Errorf("manager model call for %s: %w", sc.Ticker, err)
	}
	d, err := parseDecision(prompt, raw)
	if err != nil {
		return types.Decision{}, fmt.Errorf("manager output for %s: %w", sc.Ticker, err)
	}
	if d.Price <= 0 {
		d.Price = price
	}
	if err := d.Validate(); err != nil {
		return types.Decision{}, fmt.Errorf("manager decision for %s: %w", sc.Ticker, err)
	}
	return d, nil
}

// optimalPositionRatio runs the risk-control sub-call. With signals present
// it reasons over them; in direct mode it reasons over the ticker alone.
func (m *PortfolioManager) optimalPositionRatio(ctx context.Context, sc types.StepContext, signals []types.Signal) (float64, error) {
	maxRatio := maxPositionRatio(sc.NumTickers)
	var prompt string
	if len(signals) > 0 {
		prompt = fmt.Sprintf(riskControlPromptTmpl, marshalIndent(signals), portfolioStateJSON(sc.Portfolio), maxRatio)
	} else {
		prompt = fmt.Sprintf(riskControlDirectPromptTmpl, sc.Ticker, portfolioStateJSON(sc.Portfolio), maxRatio)
	}

	raw, err := m.deps.call(ctx, sc, StepRiskControl, "", prompt)
	if err != nil {
		return 0, fmt.Errorf("risk control model call for %s: %w", sc.Ticker, err)
	}
	payload, ok := jsonutil.ExtractJSON(raw)
	if !ok {
		return 0, fmt.Errorf("risk control output for %s contains no JSON", sc.Ticker)
	}
	result := gjson.Get(payload, "optimal_position_ratio")
	if !result.Exists() {
		return 0, fmt.Errorf("risk control output for %s missing optimal_position_ratio", sc.Ticker)
	}
	ratio := result.Float()
	if math.IsNaN(ratio) || ratio < 0 {
		ratio = 0
	}
	if ratio > maxRatio {
		ratio = maxRatio
	}
	return ratio, nil
}

// maxPositionRatio caps one item at an equal share of the fund so a single
// skin cannot absorb the whole cash pile.
func maxPositionRatio(numTickers int) float64 {
	if numTickers <= 1 {
		return 1.0
	}
	return 1.0 / float64(numTickers)
}

// tradableShares converts the target ratio into a share delta. Positive means
// room to buy, negative means the position should shrink.
func tradableShares(p types.Portfolio, ratio, price float64, currentShares int64) int64 {
	total := decimal.NewFromFloat(p.Cashflow).Add(decimal.NewFromFloat(p.PositionsValue()))
	target := total.Mul(decimal.NewFromFloat(ratio))
	targetShares := target.Div(decimal.NewFromFloat(price)).Floor().IntPart()
	return targetShares - currentShares
}
