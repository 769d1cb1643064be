package commands

import (
	"encoding/json"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/autoboat/pulse/schedule"
	"github.com/teranos/autoboat/sym"
)

func newStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: sym.Pulse + " Show each command's cooldown state",
		Long: sym.Pulse + ` Show each enabled command's durable state and when it is next due,
computed exactly as the running loop would.`,
		RunE: runState,
	}
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

type stateRow struct {
	Command             string     `json:"command"`
	Invocation          string     `json:"invocation"`
	Cooldown            string     `json:"cooldown"`
	LastFiredAt         *time.Time `json:"last_fired_at,omitempty"`
	LastSucceededAt     *time.Time `json:"last_succeeded_at,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	NextDueAt           *time.Time `json:"next_due_at,omitempty"` // nil = due now
	Due                 bool       `json:"due"`
}

func runState(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	states, err := schedule.NewStore(database).Load(cmd.Context())
	if err != nil {
		return err
	}
	sched := schedule.NewScheduler(states, schedule.WithUnknownCooldownRetry(cfg.Timing.UnknownCooldownRetry()))
	sched.Reconcile(cfg.CommandSpecs())

	now := time.Now()
	var rows []stateRow
	for _, st := range sched.Statuses(now) {
		row := stateRow{
			Command:             st.Spec.Name,
			Invocation:          st.Spec.Invocation,
			Cooldown:            st.Cooldown.String(),
			LastFiredAt:         st.State.LastFiredAt,
			LastSucceededAt:     st.State.LastSucceededAt,
			ConsecutiveFailures: st.State.ConsecutiveFailures,
			Due:                 st.Due,
		}
		if !st.NextDueAt.IsZero() {
			at := st.NextDueAt
			row.NextDueAt = &at
		}
		rows = append(rows, row)
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	data := pterm.TableData{{"Command", "Invocation", "Cooldown", "Last fired", "Failures", "Next due"}}
	for _, r := range rows {
		data = append(data, []string{
			r.Command,
			r.Invocation,
			r.Cooldown,
			formatWhen(r.LastFiredAt, now),
			pterm.Sprint(r.ConsecutiveFailures),
			formatDue(r, now),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(data).Render()
}

func formatWhen(t *time.Time, now time.Time) string {
	if t == nil {
		return "never"
	}
	return now.Sub(*t).Round(time.Second).String() + " ago"
}

func formatDue(r stateRow, now time.Time) string {
	if r.Due || r.NextDueAt == nil {
		return "now"
	}
	return "in " + r.NextDueAt.Sub(now).Round(time.Second).String()
}
