package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/automaton/internal/wire"
)

// ConfigCmd returns the config command with get/set subcommands.
func ConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and change allocator configuration",
	}
	cmd.AddCommand(configGetCmd())
	cmd.AddCommand(configSetCmd())
	return cmd
}

func configGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "show",
		Aliases: []string{"get"},
		Short:   "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := json.MarshalIndent(wire.Config(), "", "  ")
			if err != nil {
				return fmt.Errorf("failed to render config: %w", err)
			}
			fmt.Println(string(data))
			return nil
		},
	}
}

func configSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration parameter",
		Long: `Set a configuration parameter and persist it to config.json.

Keys: budget_usd, horizon_days, epsilon, epsilon_decay, min_epsilon,
max_concurrent, cycle_interval, invoke_timeout, skills_dir, api_base_url.

Budget and horizon changes apply to new deployments; use
"run --budget/--horizon" to adjust the live envelope.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := "", ""
			if len(args) == 2 {
				key, value = args[0], args[1]
			} else {
				parts := strings.SplitN(args[0], "=", 2)
				if len(parts) != 2 {
					return fmt.Errorf("expected KEY=VALUE or KEY VALUE, got %q", args[0])
				}
				key, value = parts[0], parts[1]
			}
			if err := wire.ControlService().SetParam(context.Background(), key, value); err != nil {
				return err
			}
			fmt.Printf("✓ %s = %s\n", key, value)
			return nil
		},
	}
}
