// Package pipeline builds and executes the per-ticker step pipeline: a set of
// analysis steps fanned out concurrently, joined, then folded into a single
// decision.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"skinfund/internal/logger"
	"skinfund/internal/registry"
	"skinfund/internal/types"
)

// ErrNoStepsSelected is returned when planned mode yields an empty analyst
// subset. There is no silent fallback; the trading date aborts.
var ErrNoStepsSelected = errors.New("planner selected no analysis steps")

// Builder resolves the analyst selection for one ticker.
type Builder struct {
	Registry *registry.Registry
}

// Resolve verifies the requested analyst ids and applies the selection mode.
// Unknown ids are dropped with a warning, duplicates collapse to the first
// occurrence. With planned=true the planning step chooses a subset of the
// verified list; an empty verified list means direct mode regardless of
// planned.
func (b *Builder) Resolve(ctx context.Context, ticker string, requested []string, planned bool, model types.ModelConfig) ([]string, error) {
	verified := make([]string, 0, len(requested))
	seen := make(map[string]bool, len(requested))
	for _, id := range requested {
		if seen[id] {
			continue
		}
		seen[id] = true
		if !b.Registry.IsAnalysisStep(id) {
			logger.Warnf("[pipeline] %s: dropping unknown analysis step %q", ticker, id)
			continue
		}
		verified = append(verified, id)
	}

	if len(verified) == 0 {
		logger.Infof("[pipeline] %s: direct mode, no analysis steps", ticker)
		return nil, nil
	}

	if !planned {
		return verified, nil
	}

	planner, err := b.Registry.Planner()
	if err != nil {
		return nil, err
	}
	selected, err := planner.Plan(ctx, ticker, model, verified)
	if err != nil {
		return nil, fmt.Errorf("plan steps for %s: %w", ticker, err)
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoStepsSelected, ticker)
	}
	return selected, nil
}

// Executor runs one resolved pipeline.
type Executor struct {
	Registry *registry.Registry
	// StepTimeout bounds each analysis step and the decision step; zero
	// disables the bound.
	StepTimeout time.Duration
}

func (e *Executor) stepCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.StepTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.StepTimeout)
}

// Run fans the analysis steps out concurrently, joins their signals, and
// hands the set to the decision step. Analysis steps own their fallback: a
// returned error is unrecovered and aborts the run. The signal order matches
// stepIDs so audit rows stay deterministic.
func (e *Executor) Run(ctx context.Context, sc types.StepContext, stepIDs []string) (types.Decision, []types.Signal, error) {
	signals := make([]types.Signal, len(stepIDs))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range stepIDs {
		i, id := i, id
		step, err := e.Registry.Analyst(id)
		if err != nil {
			return types.Decision{}, nil, err
		}
		g.Go(func() error {
			stepCtx, cancel := e.stepCtx(gctx)
			defer cancel()
			sig, err := step.Analyze(stepCtx, sc)
			if err != nil {
				return fmt.Errorf("step %s for %s: %w", id, sc.Ticker, err)
			}
			signals[i] = sig
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return types.Decision{}, nil, err
	}

	for _, sig := range signals {
		logger.Infof("[pipeline] %s signal from %s: %s (%s)", sc.Ticker, sig.Step, sig.Direction, sig.Justification)
	}

	decider, err := e.Registry.Decider()
	if err != nil {
		return types.Decision{}, nil, err
	}
	decideCtx, cancel := e.stepCtx(ctx)
	defer cancel()
	decision, err := decider.Decide(decideCtx, sc, signals)
	if err != nil {
		return types.Decision{}, nil, fmt.Errorf("decision step for %s: %w", sc.Ticker, err)
	}
	if err := decision.Validate(); err != nil {
		return types.Decision{}, nil, fmt.Errorf("decision for %s: %w", sc.Ticker, err)
	}
	return decision, signals, nil
}
