package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/obsched/app"
	"github.com/kilianp07/obsched/core/report"
	"github.com/kilianp07/obsched/core/runlog"
	"github.com/kilianp07/obsched/infra/logger"
	"github.com/kilianp07/obsched/internal/dataset"
)

var solveFlags struct {
	dataset string
	example string
	format  string
	serve   bool
}

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Schedule the observations of a dataset",
	Args:  cobra.NoArgs,
	RunE:  runSolve,
}

func init() {
	f := solveCmd.Flags()
	f.StringVarP(&solveFlags.dataset, "dataset", "d", "", "dataset file (yaml or json)")
	f.StringVarP(&solveFlags.example, "example", "e", "", "built-in example name")
	f.StringVarP(&solveFlags.format, "format", "f", "", "output format: text or json (default from config)")
	f.BoolVar(&solveFlags.serve, "serve", false, "keep serving metrics after the run until interrupted")
	solveCmd.MarkFlagsMutuallyExclusive("dataset", "example")
	rootCmd.AddCommand(solveCmd)
}

func loadDataset() (*dataset.File, error) {
	switch {
	case solveFlags.dataset != "":
		return dataset.Load(solveFlags.dataset)
	case solveFlags.example != "":
		return dataset.Example(solveFlags.example)
	default:
		return nil, errors.New("one of --dataset or --example is required")
	}
}

func runSolve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	f, err := loadDataset()
	if err != nil {
		return err
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()

	metricsErr := make(chan error, 1)
	if solveFlags.serve {
		go func() { metricsErr <- svc.ServeMetrics(ctx) }()
	}

	out, err := svc.Solve(ctx, f)
	if out == nil {
		return err
	}
	format := solveFlags.format
	if format == "" {
		format = cfg.Report.Format
	}
	if werr := writeOutcome(cmd.OutOrStdout(), format, cfg.Report.Observations, out); werr != nil {
		return errors.Join(err, werr)
	}
	if err != nil {
		return err
	}
	if !solveFlags.serve {
		return nil
	}
	logger.New("main").Infof("run %s done, serving metrics until interrupted", out.Result.RunID)
	return <-metricsErr
}

type jsonOutcome struct {
	Record  runlog.RunRecord `json:"record"`
	Summary *report.Summary  `json:"summary"`
}

func writeOutcome(w io.Writer, format string, observations bool, out *app.Outcome) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(jsonOutcome{Record: out.Result.Record, Summary: out.Summary})
	case "", "text":
		if observations {
			if err := report.WriteObservations(w, out.Grid, out.Set); err != nil {
				return err
			}
		}
		return report.Write(w, out.Summary)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
