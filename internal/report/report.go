// Package report renders an experiment's ledger history as a static HTML
// page with equity and cash curves.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"skinfund/internal/store"
)

// Builder renders reports from the persisted ledger.
type Builder struct {
	Store store.Store
}

// WriteHTML renders the equity report for one experiment to path.
func (b *Builder) WriteHTML(ctx context.Context, expName, path string) error {
	configID, err := b.Store.GetConfigIDByName(ctx, expName)
	if err != nil {
		return err
	}
	if configID == "" {
		return fmt.Errorf("unknown experiment %q", expName)
	}
	portfolios, err := b.Store.ListPortfolios(ctx, configID)
	if err != nil {
		return err
	}
	if len(portfolios) == 0 {
		return fmt.Errorf("no portfolio history for %q", expName)
	}
	sort.Slice(portfolios, func(i, j int) bool {
		return portfolios[i].TradingDate.Before(portfolios[j].TradingDate)
	})

	dates := make([]string, 0, len(portfolios))
	equity := make([]opts.LineData, 0, len(portfolios))
	cash := make([]opts.LineData, 0, len(portfolios))
	for _, p := range portfolios {
		dates = append(dates, p.TradingDate.Format("2006-01-02"))
		equity = append(equity, opts.LineData{Value: p.Cashflow + p.PositionsValue()})
		cash = append(cash, opts.LineData{Value: p.Cashflow})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s equity curve", expName),
			Subtitle: fmt.Sprintf("%d trading dates", len(portfolios)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
	)
	line.SetXAxis(dates)
	line.AddSeries("Total assets", equity,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	line.AddSeries("Cash", cash,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(line)

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return page.Render(f)
}
