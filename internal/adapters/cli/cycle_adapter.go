package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/example/automaton/internal/app"
	"github.com/example/automaton/internal/ports/primary"
)

// CycleAdapter runs allocation cycles and renders their results.
type CycleAdapter struct {
	service primary.AllocatorService
	out     io.Writer
}

// NewCycleAdapter creates a new CycleAdapter with the given service.
func NewCycleAdapter(service primary.AllocatorService, out io.Writer) *CycleAdapter {
	return &CycleAdapter{service: service, out: out}
}

// Run executes one cycle and prints what it did. A busy cycle lock is
// reported as a skip, not an error.
func (a *CycleAdapter) Run(ctx context.Context, req primary.RunCycleRequest) (*primary.RunCycleResponse, error) {
	resp, err := a.service.RunCycle(ctx, req)
	if errors.Is(err, app.ErrCycleInProgress) {
		fmt.Fprintln(a.out, "Another cycle is already running; skipping this tick.")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if resp.Initialized {
		fmt.Fprintln(a.out, color.GreenString("Initialized new deployment."))
	}
	if resp.Transition != nil {
		fmt.Fprintf(a.out, "Tier changed: %s → %s\n", resp.Transition.From, tierColor(resp.Transition.To).Sprint(resp.Transition.To))
	}
	if resp.Halted {
		fmt.Fprintf(a.out, "%s (%s). Nothing to do.\n", color.RedString("Allocator is dead"), resp.Note)
		return resp, nil
	}

	mode := "dry-run"
	if req.Live {
		mode = "live"
	}
	fmt.Fprintf(a.out, "Cycle %d [%s] tier=%s epsilon=%.4f\n", resp.CycleCount, mode, resp.Tier, resp.Epsilon)

	if len(resp.Selected) == 0 {
		fmt.Fprintln(a.out, "No strategies selected this cycle.")
	}
	for _, out := range resp.Outcomes {
		mark := color.GreenString("ok")
		if !out.Succeeded {
			mark = color.RedString("failed")
		}
		line := fmt.Sprintf("  %-20s %s  $%.2f", out.StrategyID, mark, out.CostUSD)
		if out.Detail != "" {
			line += "  " + out.Detail
		}
		fmt.Fprintln(a.out, line)
	}
	fmt.Fprintf(a.out, "Remaining: $%.2f\n", resp.RemainingUSD)

	for _, w := range resp.Warnings {
		fmt.Fprintln(a.out, color.YellowString("warning: "+w))
	}
	return resp, nil
}
