package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"skinfund/internal/app"
	"skinfund/internal/config"
	"skinfund/internal/logger"
)

const dateLayout = "2006-01-02"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "skinfund",
		Short:         "Daily trading decision simulation for CS2 skin markets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "configs/experiment.yaml", "experiment config file")

	root.AddCommand(newRunCmd(&cfgPath))
	root.AddCommand(newReportCmd(&cfgPath))
	root.AddCommand(newServeCmd(&cfgPath))
	return root
}

func setup(cfgPath string) (*app.App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(cfg.Log.Level)
	return app.New(cfg)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newRunCmd(cfgPath *string) *cobra.Command {
	var startStr, endStr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run trading dates from start to end (inclusive)",
		RunE: func(_ *cobra.Command, _ []string) error {
			start, err := time.Parse(dateLayout, startStr)
			if err != nil {
				return fmt.Errorf("invalid --start-date: %w", err)
			}
			end := start
			if endStr != "" {
				end, err = time.Parse(dateLayout, endStr)
				if err != nil {
					return fmt.Errorf("invalid --end-date: %w", err)
				}
			}

			a, err := setup(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext()
			defer cancel()

			failed, err := a.Driver.RunRange(ctx, start, end)
			if err != nil {
				return err
			}
			if len(failed) > 0 {
				for _, d := range failed {
					logger.Errorf("date %s did not complete", d.Format(dateLayout))
				}
				return fmt.Errorf("%d of %d trading dates failed",
					len(failed), int(end.Sub(start).Hours()/24)+1)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&startStr, "start-date", "", "first trading date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endStr, "end-date", "", "last trading date, defaults to start-date")
	cmd.MarkFlagRequired("start-date")
	return cmd
}

func newReportCmd(cfgPath *string) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render the experiment's equity curve to an HTML file",
		RunE: func(_ *cobra.Command, _ []string) error {
			a, err := setup(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext()
			defer cancel()
			if err := a.Report.WriteHTML(ctx, a.Cfg.ExpName, output); err != nil {
				return err
			}
			logger.Infof("report written to %s", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "report.html", "output HTML path")
	return cmd
}

func newServeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only ledger API",
		RunE: func(_ *cobra.Command, _ []string) error {
			a, err := setup(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := a.HTTPServer()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			return srv.Run(ctx)
		},
	}
}
