package provider

import (
	"context"
	"time"

	"skinfund/internal/logger"
	"skinfund/internal/store/tracelog"
)

// CallMeta identifies a model call for tracing.
type CallMeta struct {
	ExpName string
	Ticker  string
	Date    string
	Step    string
	Model   string
}

// Traced wraps a provider so every call lands in the trace log and the model
// dump writer. Trace write failures are logged and swallowed; they must not
// fail a trading run.
type Traced struct {
	Inner ModelProvider
	Trace *tracelog.Store
	Meta  CallMeta
}

func (t *Traced) ID() string { return t.Inner.ID() }

func (t *Traced) Call(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	logger.ModelRequest(t.Inner.ID(), t.Meta.Step, systemPrompt, userPrompt)
	start := time.Now()
	out, err := t.Inner.Call(ctx, systemPrompt, userPrompt)
	latency := time.Since(start)
	logger.ModelResponse(t.Inner.ID(), t.Meta.Step, out)

	if t.Trace != nil {
		rec := tracelog.Record{
			ExpName:   t.Meta.ExpName,
			Ticker:    t.Meta.Ticker,
			Date:      t.Meta.Date,
			Step:      t.Meta.Step,
			Provider:  t.Inner.ID(),
			Model:     t.Meta.Model,
			System:    systemPrompt,
			User:      userPrompt,
			RawOutput: out,
			LatencyMS: latency.Milliseconds(),
		}
		if err != nil {
			rec.Error = err.Error()
		}
		if terr := t.Trace.Append(context.WithoutCancel(ctx), rec); terr != nil {
			logger.Warnf("[trace] append failed: %v", terr)
		}
	}
	return out, err
}
