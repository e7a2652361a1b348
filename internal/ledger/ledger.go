package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"skinfund/internal/types"
)

// FeeRate is the sell-side transaction fee (2%). Buys are never charged.
var FeeRate = decimal.NewFromFloat(0.02)

// Fill reports how much of a decision actually settled. Clipped orders are a
// warning for the caller, never an error.
type Fill struct {
	Ticker          string
	Action          types.Action
	RequestedShares int64
	FilledShares    int64
	Price           float64
	Clipped         bool
	Reason          string
}

// Apply settles one decision against a portfolio snapshot and returns the new
// snapshot. Pure function: the input portfolio is never mutated, money math
// runs on decimals and is rounded to 2 places on the way out.
//
// Invariants held by construction: shares never go negative (sells clip to the
// held amount) and cashflow never goes negative (buys clip to the affordable
// amount).
func Apply(p types.Portfolio, ticker string, d types.Decision, feeEnabled bool) (types.Portfolio, Fill, error) {
	if err := d.Validate(); err != nil {
		return types.Portfolio{}, Fill{}, fmt.Errorf("ticker %s: %w", ticker, err)
	}

	out := p.Clone()
	pos := out.Positions[ticker]

	price := decimal.NewFromFloat(d.Price)
	cash := decimal.NewFromFloat(out.Cashflow)
	fill := Fill{Ticker: ticker, Action: d.Action, RequestedShares: d.Shares, Price: d.Price}

	switch d.Action {
	case types.ActionBuy:
		// No fee on buys. A non-positive price affords zero shares; this is a
		// degenerate buy, not an error.
		var affordable int64
		if price.IsPositive() {
			affordable = cash.Div(price).Floor().IntPart()
		}
		filled := min64(d.Shares, affordable)
		pos.Shares += filled
		cash = cash.Sub(price.Mul(decimal.NewFromInt(filled)))
		fill.FilledShares = filled
		if filled < d.Shares {
			fill.Clipped = true
			fill.Reason = "insufficient funds"
		}

	case types.ActionSell:
		filled := min64(d.Shares, pos.Shares)
		pos.Shares -= filled
		proceeds := price.Mul(decimal.NewFromInt(filled))
		if feeEnabled {
			proceeds = proceeds.Mul(decimal.NewFromInt(1).Sub(FeeRate))
		}
		cash = cash.Add(proceeds)
		fill.FilledShares = filled
		if filled < d.Shares {
			fill.Clipped = true
			fill.Reason = "insufficient holdings"
		}

	case types.ActionHold:
		// No share or cash movement; the position is still revalued below.
	}

	// Always re-derive value from the decision price, even on Hold, so the
	// valuation tracks the latest observed price.
	pos.Value = price.Mul(decimal.NewFromInt(pos.Shares)).Round(2).InexactFloat64()
	out.Positions[ticker] = pos
	out.Cashflow = cash.Round(2).InexactFloat64()
	out.TotalAssets = decimal.NewFromFloat(out.Cashflow).
		Add(positionsValue(out)).
		Round(2).
		InexactFloat64()

	return out, fill, nil
}

func positionsValue(p types.Portfolio) decimal.Decimal {
	total := decimal.Zero
	for _, pos := range p.Positions {
		total = total.Add(decimal.NewFromFloat(pos.Value))
	}
	return total
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
