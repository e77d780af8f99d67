package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/example/automaton/internal/wire"
)

// StrategiesCmd returns the strategies command.
func StrategiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "strategies",
		Aliases: []string{"skills"},
		Short:   "Show per-strategy bandit statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := wire.StrategiesAdapter().List(context.Background())
			return err
		},
	}
}
