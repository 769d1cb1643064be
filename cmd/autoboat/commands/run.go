package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/autoboat/am"
	"github.com/teranos/autoboat/logger"
	"github.com/teranos/autoboat/sym"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: sym.Pulse + " Run the command loop until interrupted",
		Long: sym.Pulse + ` Run the command loop in the foreground.

The loop restores every command's last-fired time, counts down, then fires
whatever is due, waits for the bot's reply and sleeps until the next cooldown
expires. Edits to the active config file are picked up without a restart.

Ctrl+C stops it between cycles; a reply wait in progress is settled first.

Examples:
  autoboat run                  # Connect to the gateway and run
  autoboat run --dry-run        # Simulated bot, real cooldowns, nothing saved
  autoboat run --no-countdown   # Skip the startup countdown`,
		RunE: runRun,
	}
	cmd.Flags().Bool("dry-run", false, "Use a simulated bot and leave the state database untouched")
	cmd.Flags().Bool("no-countdown", false, "Skip the startup countdown")
	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	noCountdown, _ := cmd.Flags().GetBool("no-countdown")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := runOptions{
		explicitPath: explicitConfig(cmd),
		dryRun:       dryRun,
		noCountdown:  noCountdown,
		verbosity:    verbosity(cmd),
	}
	rt, err := newRuntime(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	if dryRun {
		pterm.Warning.Println("DRY RUN: replies are simulated and no state is saved")
	}

	if path := am.ActiveConfigFile(opts.explicitPath); path != "" {
		watcher, err := am.NewConfigWatcher(path, opts.explicitPath)
		if err != nil {
			// Hot reload is a convenience; the loop runs without it
			logger.Warnw("Config hot reload disabled", logger.FieldError, err)
		} else {
			watcher.OnReload(rt.Reload)
			am.SetGlobalWatcher(watcher)
			watcher.Start()
			defer func() {
				watcher.Stop()
				am.SetGlobalWatcher(nil)
			}()
		}
	}

	err = rt.Run(ctx)
	logger.PulseCloseInfow("Stopped")
	return err
}
