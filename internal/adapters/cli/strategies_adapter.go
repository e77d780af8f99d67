package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/example/automaton/internal/ports/primary"
)

// StrategiesAdapter renders per-strategy bandit statistics.
type StrategiesAdapter struct {
	service primary.ControlService
	out     io.Writer
}

// NewStrategiesAdapter creates a new StrategiesAdapter with the given service.
func NewStrategiesAdapter(service primary.ControlService, out io.Writer) *StrategiesAdapter {
	return &StrategiesAdapter{service: service, out: out}
}

// List displays all known strategies with their statistics.
func (a *StrategiesAdapter) List(ctx context.Context) ([]primary.StrategyReport, error) {
	reports, err := a.service.Strategies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list strategies: %w", err)
	}

	if len(reports) == 0 {
		fmt.Fprintln(a.out, "No strategies discovered yet.")
		fmt.Fprintln(a.out)
		fmt.Fprintln(a.out, "Add a skill directory with a SKILL.md manifest and run a cycle.")
		return reports, nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "STRATEGY\tSTATE\tPLAYS\tWINS\tREWARD\tAVG/PLAY")
	for _, r := range reports {
		state := "active"
		if !r.Active {
			state = "retired"
		}
		avg := "-" // never played
		if r.Played {
			avg = fmt.Sprintf("$%.2f", r.AvgReward)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d (%.0f%%)\t$%.2f\t%s\n",
			r.ID, state, r.PlayCount, r.WinCount, r.WinPct, r.RewardUSD, avg)
	}
	w.Flush()
	return reports, nil
}
