// Package cli wires cobra commands to the service adapters.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/automaton/internal/ports/primary"
	"github.com/example/automaton/internal/wire"
)

// RunCmd returns the run command.
func RunCmd() *cobra.Command {
	var (
		live     bool
		dryRun   bool
		quiet    bool
		loop     bool
		budget   float64
		days     int
		interval int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one allocation cycle (or loop with --loop)",
		Long: `Run one allocation cycle: discover strategies, merge rewards from the
trade ledger, pick strategies with the epsilon-greedy policy, invoke
them, and commit the updated state.

Without --live this is a dry run: strategies are invoked in
non-effecting mode and the ledger is not consulted, but selection,
play counts, and epsilon decay advance exactly as they would live.

The first run initializes the deployment from --budget/--days
(falling back to configuration).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if live && dryRun {
				return fmt.Errorf("--live and --dry-run are mutually exclusive")
			}
			req := primary.RunCycleRequest{Live: live, Quiet: quiet}
			if cmd.Flags().Changed("budget") {
				req.BudgetUSD = &budget
			}
			if cmd.Flags().Changed("days") {
				req.HorizonDays = &days
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			adapter := wire.CycleAdapter()
			if !loop {
				_, err := adapter.Run(ctx, req)
				return err
			}

			every := wire.Config().CycleIntervalSec
			if cmd.Flags().Changed("interval") {
				every = interval
			}
			if every <= 0 {
				return fmt.Errorf("interval must be positive, got %d", every)
			}

			fmt.Printf("Looping every %ds; Ctrl-C to stop.\n", every)
			ticker := time.NewTicker(time.Duration(every) * time.Second)
			defer ticker.Stop()

			for {
				resp, err := adapter.Run(ctx, req)
				if err != nil {
					return err
				}
				if resp != nil && resp.Halted {
					return nil
				}
				// First-run overrides must not reapply every tick.
				req.BudgetUSD = nil
				req.HorizonDays = nil

				select {
				case <-ctx.Done():
					fmt.Println("Stopping.")
					return nil
				case <-ticker.C:
				}
			}
		},
	}

	cmd.Flags().BoolVar(&live, "live", false, "invoke strategies in live trading mode")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "rehearse without trading (the default)")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "pass --quiet to strategy invocations")
	cmd.Flags().BoolVar(&loop, "loop", false, "keep running cycles on an interval")
	cmd.Flags().Float64Var(&budget, "budget", 0, "total budget in USD (first run, or override)")
	cmd.Flags().IntVar(&days, "days", 0, "deployment horizon in days (first run, or override)")
	cmd.Flags().IntVar(&interval, "interval", 0, "seconds between cycles with --loop (default from config)")

	return cmd
}
