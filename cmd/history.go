package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/kilianp07/obsched/app"
	"github.com/kilianp07/obsched/core/runlog"
)

var historyFlags struct {
	status      string
	observation string
	since       time.Duration
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past runs from the run log",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	f := historyCmd.Flags()
	f.StringVar(&historyFlags.status, "status", "", "only runs with this status")
	f.StringVar(&historyFlags.observation, "observation", "", "only runs involving this observation")
	f.DurationVar(&historyFlags.since, "since", 0, "only runs newer than this")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	q := runlog.RunQuery{Status: historyFlags.status, Observation: historyFlags.observation}
	if historyFlags.since > 0 {
		q.Start = time.Now().Add(-historyFlags.since)
	}
	recs, err := svc.History(context.Background(), q)
	if err != nil {
		return err
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("RUN", "TIME", "SOLVER", "STATUS", "SCORE", "SCHEDULED", "UNSCHEDULED")
	for _, r := range recs {
		t.Row(
			r.RunID,
			r.Timestamp.Format(time.RFC3339),
			r.Solver,
			r.Status,
			fmt.Sprintf("%.3f", r.Score),
			fmt.Sprint(len(r.Starts)),
			fmt.Sprint(len(r.Unscheduled)),
		)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), t.String())
	return err
}
