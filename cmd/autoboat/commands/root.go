// Package commands implements the autoboat CLI.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/teranos/autoboat/errors"
	"github.com/teranos/autoboat/logger"
	"github.com/teranos/autoboat/sym"
)

// NewRootCmd builds the command tree. A fresh tree per call keeps flag state
// from leaking between invocations in tests.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "autoboat",
		Short: sym.Pulse + " Keep an economy bot's commands running on cooldown",
		Long: sym.Pulse + ` autoboat fires economy bot commands (work, collect, deposit, ...) in a
chat channel as soon as each cooldown expires, waits for the bot's reply, and
remembers when everything last ran so restarts never double-fire.

Examples:
  autoboat am init              # Write a starter ~/.autoboat/am.toml
  autoboat run                  # Start the loop
  autoboat run --dry-run        # Rehearse against a simulated bot
  autoboat state                # When is everything due?
  autoboat history work         # Recent work cycles`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// 'am show' prints config and nothing else
			if cmd.Name() == "show" {
				return nil
			}
			jsonOut, _ := cmd.Flags().GetBool("json-log")
			if err := logger.Initialize(jsonOut, verbosity(cmd)); err != nil {
				return errors.Wrap(err, "failed to initialize logger")
			}
			return nil
		},
	}

	root.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	root.PersistentFlags().StringP("config", "c", "", "Config file (highest precedence)")
	root.PersistentFlags().Bool("json-log", false, "Log as JSON")

	root.AddCommand(newRunCmd())
	root.AddCommand(newStateCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newResetCmd())
	root.AddCommand(newAmCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func verbosity(cmd *cobra.Command) int {
	v, _ := cmd.Flags().GetCount("verbose")
	return v
}

func explicitConfig(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}
