package agents

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"skinfund/internal/logger"
	"skinfund/internal/pkg/jsonutil"
	"skinfund/internal/types"
)

// Planner picks the analyst subset for one ticker at run time. Its failures
// are never degraded: a ticker cannot trade without at least one analyst in
// planned mode, so errors propagate and abort the trading date.
type Planner struct {
	deps     *Deps
	describe func(id string) string
}

// NewPlanner builds a planner; describe resolves analyst ids to their
// registered one-line descriptions for the selection prompt.
func NewPlanner(deps *Deps, describe func(id string) string) *Planner {
	return &Planner{deps: deps, describe: describe}
}

func (p *Planner) ID() string { return StepPlanner }

func (p *Planner) Describe() string {
	return "Planner agent selecting which analysts to run for a ticker."
}

func (p *Planner) Plan(ctx context.Context, ticker string, model types.ModelConfig, candidates []string) ([]string, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("planner: no candidate analysts for %s", ticker)
	}
	prompt := fmt.Sprintf(plannerPromptTmpl, ticker, plannerCatalog(candidates, p.describe))

	sc := types.StepContext{Ticker: ticker, Model: model}
	raw, err := p.deps.call(ctx, sc, StepPlanner, "", prompt)
	if err != nil {
		return nil, fmt.Errorf("planner model call for %s: %w", ticker, err)
	}
	payload, ok := jsonutil.ExtractJSON(raw)
	if !ok {
		return nil, fmt.Errorf("planner output for %s contains no JSON", ticker)
	}

	allowed := make(map[string]bool, len(candidates))
	for _, id := range candidates {
		allowed[id] = true
	}
	var selected []string
	seen := make(map[string]bool)
	gjson.Get(payload, "analysts").ForEach(func(_, v gjson.Result) bool {
		id := v.String()
		if !allowed[id] {
			logger.Warnf("[%s] %s: dropping unknown analyst %q from selection", StepPlanner, ticker, id)
			return true
		}
		if !seen[id] {
			seen[id] = true
			selected = append(selected, id)
		}
		return true
	})
	logger.Infof("[%s] %s: selected %v (%s)", StepPlanner, ticker, selected,
		gjson.Get(payload, "justification").String())
	return selected, nil
}
