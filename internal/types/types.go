package types

import (
	"fmt"
	"time"
)

// Action is the final instruction for one ticker on one trading date.
type Action string

const (
	ActionBuy  Action = "Buy"
	ActionSell Action = "Sell"
	ActionHold Action = "Hold"
)

func (a Action) Valid() bool {
	switch a {
	case ActionBuy, ActionSell, ActionHold:
		return true
	}
	return false
}

// Direction is the sentiment emitted by one analysis step.
type Direction string

const (
	Bullish Direction = "Bullish"
	Bearish Direction = "Bearish"
	Neutral Direction = "Neutral"
)

func (d Direction) Valid() bool {
	switch d {
	case Bullish, Bearish, Neutral:
		return true
	}
	return false
}

// Signal is one analyst's output for a (ticker, trading date) pair.
// Prompt carries the model input that produced it so the audit trail can be
// replayed; Degraded marks signals produced by a step-local fallback path.
type Signal struct {
	Step          string    `json:"step"`
	Direction     Direction `json:"signal"`
	Justification string    `json:"justification"`
	Prompt        string    `json:"-"`
	Degraded      bool      `json:"-"`
}

// DegradedSignal builds the Neutral fallback a step emits when its own data or
// model call fails. Steps never propagate those failures to the executor.
func DegradedSignal(step, reason string) Signal {
	return Signal{
		Step:          step,
		Direction:     Neutral,
		Justification: reason,
		Degraded:      true,
	}
}

// Decision is immutable once recorded.
type Decision struct {
	Action        Action  `json:"action"`
	Shares        int64   `json:"shares"`
	Price         float64 `json:"price"`
	Justification string  `json:"justification"`
	Prompt        string  `json:"-"`
}

// Validate rejects decisions that must never reach the ledger.
func (d Decision) Validate() error {
	if !d.Action.Valid() {
		return fmt.Errorf("invalid action %q", d.Action)
	}
	if d.Shares < 0 {
		return fmt.Errorf("negative requested shares %d", d.Shares)
	}
	return nil
}

// Position holds one ticker's stake. Value is always re-derived from the
// latest decision price, never drifted independently.
type Position struct {
	Shares int64   `json:"shares"`
	Value  float64 `json:"value"`
}

// Portfolio is one ledger snapshot. Snapshots are immutable once persisted for
// a (config_id, trading_date) pair; a new date derives a new snapshot.
type Portfolio struct {
	ID          string              `json:"id"`
	ConfigID    string              `json:"config_id"`
	TradingDate time.Time           `json:"trading_date"`
	Cashflow    float64             `json:"cashflow"`
	Positions   map[string]Position `json:"positions"`
	TotalAssets float64             `json:"total_assets"`
}

// Clone deep-copies the snapshot so ledger applications stay copy-on-write.
func (p Portfolio) Clone() Portfolio {
	out := p
	out.Positions = make(map[string]Position, len(p.Positions))
	for k, v := range p.Positions {
		out.Positions[k] = v
	}
	return out
}

// PositionsValue sums the value of all held positions.
func (p Portfolio) PositionsValue() float64 {
	var total float64
	for _, pos := range p.Positions {
		total += pos.Value
	}
	return total
}

// ModelConfig identifies the text-generation backend for audit records.
type ModelConfig struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// StepContext is the shared read-only input every step receives for one
// (ticker, trading date) pipeline run.
type StepContext struct {
	Ticker      string
	TradingDate time.Time
	ExpName     string
	Model       ModelConfig
	Portfolio   Portfolio
	NumTickers  int
	FeeEnabled  bool
}
