package commands

import (
	"encoding/json"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/autoboat/pulse/schedule"
	"github.com/teranos/autoboat/sym"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [command]",
		Short: sym.Pulse + " Show recent dispatch cycles",
		Long: sym.Pulse + ` Show recent fire/reply cycles, newest first, with an outcome summary.

Examples:
  autoboat history              # Last 20 cycles of every command
  autoboat history work -n 50   # Last 50 work cycles`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistory,
	}
	cmd.Flags().IntP("limit", "n", 20, "Number of cycles to show")
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")
	var command string
	if len(args) == 1 {
		command = args[0]
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

	store := schedule.NewCycleStore(database)
	cycles, err := store.List(cmd.Context(), command, limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(cycles)
	}

	if len(cycles) == 0 {
		pterm.Info.WithWriter(out).Println("No cycles recorded yet")
		return nil
	}

	data := pterm.TableData{{"Fired", "Command", "Outcome", "Took", "Reply / error"}}
	for _, c := range cycles {
		took := "-"
		if c.DurationMS != nil {
			took = (time.Duration(*c.DurationMS) * time.Millisecond).String()
		}
		detail := ""
		switch {
		case c.ReplyExcerpt != nil:
			detail = *c.ReplyExcerpt
		case c.ErrorMessage != nil:
			detail = *c.ErrorMessage
		}
		data = append(data, []string{
			c.FiredAt.Local().Format(time.DateTime),
			c.Command,
			string(c.Outcome),
			took,
			detail,
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(data).Render(); err != nil {
		return err
	}

	counts, err := store.CountByOutcome(cmd.Context(), command)
	if err != nil {
		return err
	}
	pterm.Info.WithWriter(out).Printfln("matched %d, timed out %d, send failed %d, interrupted %d",
		counts[schedule.OutcomeMatched], counts[schedule.OutcomeTimedOut],
		counts[schedule.OutcomeSendFailed], counts[schedule.OutcomeInterrupted])
	return nil
}
