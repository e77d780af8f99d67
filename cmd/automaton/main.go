package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/automaton/internal/cli"
	"github.com/example/automaton/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "automaton",
		Short:   "Survival-aware bandit allocator for trading strategies",
		Version: version.String(),
		Long: `automaton allocates a fixed budget across discovered trading strategies
with an epsilon-greedy bandit policy. It merges realized P&L from the
trade ledger, derives a survival tier from the remaining budget, and
throttles exploration as the deployment approaches death.`,
	}

	rootCmd.AddCommand(cli.RunCmd())
	rootCmd.AddCommand(cli.StatusCmd())
	rootCmd.AddCommand(cli.CyclesCmd())
	rootCmd.AddCommand(cli.StrategiesCmd())
	rootCmd.AddCommand(cli.ConfigCmd())
	rootCmd.AddCommand(cli.ResetCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
