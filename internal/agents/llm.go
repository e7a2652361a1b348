// Package agents holds the analysis, planning and decision steps that make up
// a per-ticker pipeline, plus their model-call plumbing.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"skinfund/internal/market"
	"skinfund/internal/pkg/jsonutil"
	"skinfund/internal/provider"
	"skinfund/internal/store"
	"skinfund/internal/store/tracelog"
	"skinfund/internal/types"
)

// Deps is the shared collaborator set injected into every step.
type Deps struct {
	Provider provider.ModelProvider
	Trace    *tracelog.Store
	Store    store.Store
	Candles  market.CandleSource
	Reddit   market.RedditSource
	News     market.NewsSource
}

// call runs one traced model exchange on behalf of step.
func (d *Deps) call(ctx context.Context, sc types.StepContext, step, systemPrompt, userPrompt string) (string, error) {
	date := ""
	if !sc.TradingDate.IsZero() {
		date = sc.TradingDate.Format("2006-01-02")
	}
	traced := &provider.Traced{
		Inner: d.Provider,
		Trace: d.Trace,
		Meta: provider.CallMeta{
			ExpName: sc.ExpName,
			Ticker:  sc.Ticker,
			Date:    date,
			Step:    step,
			Model:   sc.Model.Model,
		},
	}
	return traced.Call(ctx, systemPrompt, userPrompt)
}

func mustCompileSchema(raw string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(raw)); err != nil {
		panic(err)
	}
	return compiler.MustCompile("schema.json")
}

var signalSchema = mustCompileSchema(`{
	"type": "object",
	"required": ["signal", "justification"],
	"properties": {
		"signal": {"enum": ["Bullish", "Bearish", "Neutral"]},
		"justification": {"type": "string"}
	}
}`)

var decisionSchema = mustCompileSchema(`{
	"type": "object",
	"required": ["action"],
	"properties": {
		"action": {"enum": ["Buy", "Sell", "Hold"]}
	}
}`)

func validate(schema *jsonschema.Schema, raw string) error {
	var doc interface{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return err
	}
	return schema.Validate(doc)
}

// parseSignal extracts and validates one analyst signal from raw model output.
func parseSignal(step, prompt, raw string) (types.Signal, error) {
	payload, ok := jsonutil.ExtractJSON(raw)
	if !ok {
		return types.Signal{}, fmt.Errorf("no JSON in model output")
	}
	if err := validate(signalSchema, payload); err != nil {
		return types.Signal{}, fmt.Errorf("signal output failed validation: %w", err)
	}
	parsed := gjson.Parse(payload)
	return types.Signal{
		Step:          step,
		Direction:     types.Direction(parsed.Get("signal").String()),
		Justification: parsed.Get("justification").String(),
		Prompt:        prompt,
	}, nil
}

// parseDecision extracts the manager decision. shares and price tolerate
// string-encoded numbers since models often quote them.
func parseDecision(prompt, raw string) (types.Decision, error) {
	payload, ok := jsonutil.ExtractJSON(raw)
	if !ok {
		return types.Decision{}, fmt.Errorf("no JSON in model output")
	}
	if err := validate(decisionSchema, payload); err != nil {
		return types.Decision{}, fmt.Errorf("decision output failed validation: %w", err)
	}
	parsed := gjson.Parse(payload)
	return types.Decision{
		Action:        types.Action(parsed.Get("action").String()),
		Shares:        parsed.Get("shares").Int(),
		Price:         parsed.Get("price").Float(),
		Justification: parsed.Get("justification").String(),
		Prompt:        prompt,
	}, nil
}

// signalCall runs one model call that is expected to yield an analyst signal.
func (d *Deps) signalCall(ctx context.Context, sc types.StepContext, step, prompt string) (types.Signal, error) {
	raw, err := d.call(ctx, sc, step, "", prompt)
	if err != nil {
		return types.Signal{}, err
	}
	return parseSignal(step, prompt, raw)
}
