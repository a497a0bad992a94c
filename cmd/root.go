package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kilianp07/gridinertia/app"
	"github.com/kilianp07/gridinertia/config"
	coremon "github.com/kilianp07/gridinertia/core/monitoring"
	"github.com/kilianp07/gridinertia/infra/logger"
	"github.com/kilianp07/gridinertia/infra/monitoring"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "gridinertia",
	Short:         "Inertia-constrained energy system dispatch",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (defaults apply when empty)")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

// loadConfig reads the configuration named by --config, or the defaults.
func loadConfig() (*config.Config, error) {
	if cfgPath == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// setup configures logging and monitoring, then builds the service. The
// returned function releases everything setup acquired.
func setup(ctx context.Context, cfg *config.Config) (*app.Service, func(), error) {
	closeLog, err := logger.Configure(logger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return nil, nil, err
	}
	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		_ = closeLog()
		return nil, nil, err
	}
	coremon.Init(mon)
	svc, err := app.New(ctx, cfg)
	if err != nil {
		_ = closeLog()
		return nil, nil, err
	}
	return svc, func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
		_ = closeLog()
	}, nil
}

func printReport(w io.Writer, rep *app.Report) {
	if rep.RunID != "" {
		fmt.Fprintf(w, "run:         %s\n", rep.RunID)
	}
	fmt.Fprintf(w, "scenario:    %s\n", rep.Scenario)
	fmt.Fprintf(w, "status:      %s\n", rep.Status)
	fmt.Fprintf(w, "steps:       %d\n", rep.Stats.Steps)
	fmt.Fprintf(w, "variables:   %d (%d integer)\n", rep.Stats.Variables, rep.Stats.Integers)
	fmt.Fprintf(w, "constraints: %d\n", rep.Stats.Constraints)
	if rep.Status == "optimal" {
		fmt.Fprintf(w, "objective:   %.6g\n", rep.Objective)
	}
	for _, f := range rep.Files {
		fmt.Fprintf(w, "wrote        %s\n", f)
	}
	if rep.Published > 0 {
		fmt.Fprintf(w, "published:   %d schedules\n", rep.Published)
	}
}
