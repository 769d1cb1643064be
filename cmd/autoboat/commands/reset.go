package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/autoboat/errors"
	"github.com/teranos/autoboat/pulse/schedule"
	"github.com/teranos/autoboat/sym"
)

func newResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset [command]",
		Short: sym.DB + " Forget cooldown state so commands fire right away",
		Long: sym.DB + ` Delete the durable state of one command, or of all commands with --all.
A reset command is due immediately the next time the loop runs.

Stop the loop first: a running loop rewrites its state after every cycle.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runReset,
	}
	cmd.Flags().Bool("all", false, "Reset every command")
	cmd.Flags().Bool("cycles", false, "Also clear the cycle history")
	return cmd
}

func runReset(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")
	clearCycles, _ := cmd.Flags().GetBool("cycles")
	if len(args) == 0 && !all {
		return errors.WithHint(errors.New("reset: name a command or pass --all"), "autoboat reset work")
	}
	if len(args) == 1 && all {
		return errors.New("reset: a command name and --all are mutually exclusive")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := cmd.Context()
	store := schedule.NewStore(database)
	out := pterm.Success.WithWriter(cmd.OutOrStdout())

	if all {
		n, err := store.DeleteAll(ctx)
		if err != nil {
			return err
		}
		out.Printfln("Reset %d command(s)", n)
	} else {
		if err := store.Delete(ctx, args[0]); err != nil {
			return err
		}
		out.Printfln("Reset %s", args[0])
	}

	if clearCycles {
		n, err := schedule.NewCycleStore(database).DeleteAll(ctx)
		if err != nil {
			return err
		}
		out.Printfln("Cleared %d cycle(s)", n)
	}
	return nil
}
