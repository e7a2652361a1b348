package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"skinfund/internal/types"
)

var (
	// ErrUnknownStep is returned when a step id has no registration.
	ErrUnknownStep = errors.New("unknown step")
	// ErrDuplicateStep is returned when a step id is registered twice without
	// an explicit replace.
	ErrDuplicateStep = errors.New("step already registered")
	// ErrNoDecisionStep is returned when the registry has no decision step.
	ErrNoDecisionStep = errors.New("no decision step registered")
	// ErrNoPlanningStep is returned when planned mode is requested but no
	// planner was registered.
	ErrNoPlanningStep = errors.New("no planning step registered")
)

// AnalysisStep produces exactly one Signal per ticker per trading date.
// Implementations own their fallback: data or model failures inside the step
// degrade to a Neutral signal instead of returning an error. An error from
// Analyze is treated as unrecovered and aborts the trading date.
type AnalysisStep interface {
	ID() string
	Describe() string
	Analyze(ctx context.Context, sc types.StepContext) (types.Signal, error)
}

// DecisionStep turns the aggregated signal set into one Decision. Errors here
// are always fatal for the trading date.
type DecisionStep interface {
	ID() string
	Describe() string
	Decide(ctx context.Context, sc types.StepContext, signals []types.Signal) (types.Decision, error)
}

// PlanningStep selects a subset of candidate analysis steps for one ticker.
type PlanningStep interface {
	ID() string
	Describe() string
	Plan(ctx context.Context, ticker string, model types.ModelConfig, candidates []string) ([]string, error)
}

// Registry is the typed step table. It is built once during startup and
// injected by reference; after wiring it is read-only, so no lock is held on
// the lookup path.
type Registry struct {
	analysts map[string]AnalysisStep
	decider  DecisionStep
	planner  PlanningStep
}

func New() *Registry {
	return &Registry{analysts: make(map[string]AnalysisStep)}
}

// RegisterAnalyst adds a step under its id and fails on duplicates. The
// source system silently let a later registration win; replacing now requires
// the explicit ReplaceAnalyst call.
func (r *Registry) RegisterAnalyst(step AnalysisStep) error {
	id := step.ID()
	if id == "" {
		return fmt.Errorf("analysis step with empty id")
	}
	if _, ok := r.analysts[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateStep, id)
	}
	r.analysts[id] = step
	return nil
}

// ReplaceAnalyst registers a step, overwriting any previous registration
// under the same id. Intended for test doubles and experiment overrides.
func (r *Registry) ReplaceAnalyst(step AnalysisStep) {
	r.analysts[step.ID()] = step
}

// SetDecisionStep installs the single decision step.
func (r *Registry) SetDecisionStep(step DecisionStep) error {
	if r.decider != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateStep, step.ID())
	}
	r.decider = step
	return nil
}

// SetPlanningStep installs the single planning step.
func (r *Registry) SetPlanningStep(step PlanningStep) error {
	if r.planner != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateStep, step.ID())
	}
	r.planner = step
	return nil
}

// Analyst resolves an analysis step by id.
func (r *Registry) Analyst(id string) (AnalysisStep, error) {
	step, ok := r.analysts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStep, id)
	}
	return step, nil
}

// Decider returns the registered decision step.
func (r *Registry) Decider() (DecisionStep, error) {
	if r.decider == nil {
		return nil, ErrNoDecisionStep
	}
	return r.decider, nil
}

// Planner returns the registered planning step.
func (r *Registry) Planner() (PlanningStep, error) {
	if r.planner == nil {
		return nil, ErrNoPlanningStep
	}
	return r.planner, nil
}

// AnalysisStepIDs lists registered analyst ids. The table is logically a set;
// the sort only keeps logs and planner prompts stable.
func (r *Registry) AnalysisStepIDs() []string {
	ids := make([]string, 0, len(r.analysts))
	for id := range r.analysts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsAnalysisStep reports whether id resolves to a registered analyst.
func (r *Registry) IsAnalysisStep(id string) bool {
	_, ok := r.analysts[id]
	return ok
}

// Describe returns the registered description for an analyst id, or "".
func (r *Registry) Describe(id string) string {
	if step, ok := r.analysts[id]; ok {
		return step.Describe()
	}
	return ""
}
