package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/example/automaton/internal/wire"
)

// StatusCmd returns the status command.
func StatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show tier, budget, and horizon",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := wire.StatusAdapter().Show(context.Background())
			return err
		},
	}
}

// CyclesCmd returns the cycles command.
func CyclesCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "cycles",
		Short: "Show recent cycle records",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := wire.StatusAdapter().Cycles(context.Background(), limit)
			return err
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of cycles to show")
	return cmd
}
