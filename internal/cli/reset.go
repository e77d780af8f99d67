package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/automaton/internal/wire"
)

// ResetCmd returns the reset command.
func ResetCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Erase all allocator state and start over",
		Long: `Erase all allocator state: budget, strategy statistics, cycle history,
and tier transitions. The next run initializes a fresh deployment.

This is the only way to revive a dead allocator, and it is irreversible.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				fmt.Print("This erases all statistics and cycle history. Type 'yes' to continue: ")
				reader := bufio.NewReader(os.Stdin)
				answer, _ := reader.ReadString('\n')
				if strings.TrimSpace(answer) != "yes" {
					fmt.Println("Aborted.")
					return nil
				}
			}
			if err := wire.ControlService().Reset(context.Background()); err != nil {
				return err
			}
			fmt.Println("✓ Allocator state cleared. The next run starts a new deployment.")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}
