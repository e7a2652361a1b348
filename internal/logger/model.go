package logger

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"skinfund/internal/types"
)

var (
	modelMu  sync.Mutex
	modelLog *log.Logger
)

// SetModelWriter enables dumping of raw model prompts and outputs to a
// dedicated writer. Pass nil to disable.
func SetModelWriter(w interface{ Write([]byte) (int, error) }) {
	modelMu.Lock()
	defer modelMu.Unlock()
	if w == nil {
		modelLog = nil
		return
	}
	modelLog = log.New(w, "", log.LstdFlags)
}

func dumpModel(kind, provider, step string, sections [][2]string) {
	modelMu.Lock()
	l := modelLog
	modelMu.Unlock()
	if l == nil {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[MODEL][%s][%s][%s]\n", kind, provider, step)
	for _, sec := range sections {
		fmt.Fprintf(&b, "--- %s ---\n%s", sec[0], sec[1])
		if !strings.HasSuffix(sec[1], "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("=====\n")
	l.Print(b.String())
}

// ModelRequest dumps one outgoing prompt pair.
func ModelRequest(provider, step, system, user string) {
	dumpModel("request", provider, step, [][2]string{{"SYSTEM", system}, {"USER", user}})
}

// ModelResponse dumps one raw model reply.
func ModelResponse(provider, step, raw string) {
	dumpModel("response", provider, step, [][2]string{{"RAW", raw}})
}

// Portfolio logs a ledger snapshot as a readable block.
func Portfolio(title string, p types.Portfolio) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (id=%s date=%s)\n", title, p.ID, p.TradingDate.Format("2006-01-02"))
	fmt.Fprintf(&b, "  cashflow:     %.2f\n", p.Cashflow)
	tickers := make([]string, 0, len(p.Positions))
	for t := range p.Positions {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	for _, t := range tickers {
		pos := p.Positions[t]
		fmt.Fprintf(&b, "  %-40s shares=%-6d value=%.2f\n", t, pos.Shares, pos.Value)
	}
	fmt.Fprintf(&b, "  total assets: %.2f", p.Cashflow+p.PositionsValue())
	InfoBlock(b.String())
}
