package agents

import (
	"skinfund/internal/registry"
)

// Step ids as persisted in signal rows and selected in config files.
const (
	StepTechnical        = "technical"
	StepSentiment        = "sentiment"
	StepSentimentReverse = "sentiment_reverse"
	StepLiquidity        = "liquidity"
	StepEvent            = "event"
	StepPlanner          = "planner"
	StepRiskControl      = "risk_control"
	StepPortfolioManager = "portfolio_manager"
)

// RegisterAll wires the full step set into reg.
func RegisterAll(reg *registry.Registry, deps *Deps) error {
	sentiment := NewSentimentAnalyst(deps)
	analysts := []registry.AnalysisStep{
		NewTechnicalAnalyst(deps),
		sentiment,
		NewSentimentReverseAnalyst(deps, sentiment),
		NewLiquidityAnalyst(deps),
		NewEventAnalyst(deps),
	}
	for _, a := range analysts {
		if err := reg.RegisterAnalyst(a); err != nil {
			return err
		}
	}
	if err := reg.SetDecisionStep(NewPortfolioManager(deps)); err != nil {
		return err
	}
	return reg.SetPlanningStep(NewPlanner(deps, reg.Describe))
}
