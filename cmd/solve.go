package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var solveFlags struct {
	relax    bool
	out      string
	solver   string
	timeout  int
	formats  []string
	progress bool
}

var solveCmd = &cobra.Command{
	Use:   "solve <scenario.yaml>",
	Short: "Compile, solve and export a scenario",
	Args:  cobra.ExactArgs(1),
	RunE:  solve,
}

func init() {
	f := solveCmd.Flags()
	f.BoolVar(&solveFlags.relax, "relax", false, "relax synchronous commitment to continuous indicators")
	f.StringVarP(&solveFlags.out, "out", "o", "", "export directory")
	f.StringVar(&solveFlags.solver, "solver", "", "solver backend (highs, branch_and_bound, simplex)")
	f.IntVar(&solveFlags.timeout, "timeout", 0, "solve timeout in seconds")
	f.StringSliceVar(&solveFlags.formats, "format", nil, "export formats (csv, inertia_csv, json, chart)")
	f.BoolVar(&solveFlags.progress, "progress", false, "print run stages to stderr")
	rootCmd.AddCommand(solveCmd)
}

func solve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fl := cmd.Flags()
	if fl.Changed("relax") {
		cfg.Solver.RelaxCommitment = solveFlags.relax
	}
	if fl.Changed("out") {
		cfg.Export.Dir = solveFlags.out
	}
	if fl.Changed("solver") {
		cfg.Solver.Type = solveFlags.solver
	}
	if fl.Changed("timeout") {
		cfg.Solver.TimeoutSeconds = solveFlags.timeout
	}
	if fl.Changed("format") {
		cfg.Export.Formats = solveFlags.formats
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	svc, release, err := setup(ctx, cfg)
	if err != nil {
		return err
	}
	// the progress printer ends once release closes the event stream
	wait := func() {}
	defer func() {
		release()
		wait()
	}()
	if solveFlags.progress {
		events := svc.Events()
		done := make(chan struct{})
		wait = func() { <-done }
		go func() {
			defer close(done)
			for ev := range events {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %-9s %s\n", ev.Time.Format(time.TimeOnly), ev.Stage, ev.Detail)
			}
		}()
	}

	rep, err := svc.Run(ctx, args[0])
	if rep != nil {
		printReport(cmd.OutOrStdout(), rep)
	}
	return err
}
