// Package cli contains thin adapters that translate CLI operations to
// service calls and render the results. They depend only on the primary
// port interfaces, enabling easy testing with mocks.
package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/example/automaton/internal/models"
	"github.com/example/automaton/internal/ports/primary"
)

// StatusAdapter renders the survival summary and cycle history.
type StatusAdapter struct {
	service primary.ControlService
	out     io.Writer
}

// NewStatusAdapter creates a new StatusAdapter with the given service.
func NewStatusAdapter(service primary.ControlService, out io.Writer) *StatusAdapter {
	return &StatusAdapter{service: service, out: out}
}

// Show displays the current allocator status.
func (a *StatusAdapter) Show(ctx context.Context) (*primary.StatusReport, error) {
	report, err := a.service.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}

	if !report.Initialized {
		fmt.Fprintln(a.out, "Not initialized.")
		fmt.Fprintln(a.out)
		fmt.Fprintln(a.out, "Run your first cycle:")
		fmt.Fprintln(a.out, "  automaton run --budget 50 --days 30")
		return report, nil
	}

	fmt.Fprintf(a.out, "\nTier:      %s\n", tierColor(report.Tier).Sprint(report.Tier))
	fmt.Fprintf(a.out, "Budget:    $%.2f of $%.2f remaining (%.1f%%)\n",
		report.RemainingUSD, report.BudgetUSD, report.RemainingPct)
	fmt.Fprintf(a.out, "Spent:     $%.2f\n", report.SpentUSD)
	fmt.Fprintf(a.out, "Realized:  %s\n", signedUSD(report.RealizedUSD))
	if report.UnrealizedUSD != 0 {
		fmt.Fprintf(a.out, "Exposure:  $%.2f open\n", report.UnrealizedUSD)
	}
	fmt.Fprintf(a.out, "Horizon:   %.1f of %d days left\n", report.DaysLeft, report.HorizonDays)
	fmt.Fprintf(a.out, "Cycles:    %d\n", report.CycleCount)
	fmt.Fprintf(a.out, "Epsilon:   %.4f\n", report.Epsilon)
	fmt.Fprintf(a.out, "Pool:      %d active of %d known strategies\n", report.ActiveCount, report.TotalCount)

	if len(report.TierHistory) > 0 {
		fmt.Fprintln(a.out, "\nTier history:")
		for _, tr := range report.TierHistory {
			fmt.Fprintf(a.out, "  %s  %s → %s\n", tr.At.Format("2006-01-02 15:04"), tr.From, tr.To)
		}
	}

	if report.Tier == models.TierDead {
		fmt.Fprintln(a.out)
		fmt.Fprintln(a.out, color.RedString("The allocator is dead. Run `automaton reset` to start a new deployment."))
	}
	fmt.Fprintln(a.out)
	return report, nil
}

// Cycles displays the most recent cycle records, newest first.
func (a *StatusAdapter) Cycles(ctx context.Context, limit int) ([]models.CycleRecord, error) {
	records, err := a.service.RecentCycles(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycles: %w", err)
	}

	if len(records) == 0 {
		fmt.Fprintln(a.out, "No cycles recorded yet.")
		return records, nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "AT\tTIER\tEPSILON\tSELECTED\tCOST\tREMAINING\tNOTE")
	for _, rec := range records {
		var cost float64
		for _, out := range rec.Outcomes {
			cost += out.CostUSD
		}
		note := rec.Note
		if rec.DryRun {
			note = "dry-run " + note
		}
		fmt.Fprintf(w, "%s\t%s\t%.4f\t%d\t$%.2f\t$%.2f\t%s\n",
			rec.At.Format("01-02 15:04"), rec.Tier, rec.Epsilon, len(rec.Selected), cost, rec.RemainingUSD, note)
	}
	w.Flush()
	return records, nil
}

func tierColor(t models.Tier) *color.Color {
	switch t {
	case models.TierThriving:
		return color.New(color.FgGreen, color.Bold)
	case models.TierNormal:
		return color.New(color.FgCyan)
	case models.TierConserving:
		return color.New(color.FgYellow)
	case models.TierCritical:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}

func signedUSD(v float64) string {
	if v < 0 {
		return fmt.Sprintf("-$%.2f", -v)
	}
	return fmt.Sprintf("+$%.2f", v)
}
