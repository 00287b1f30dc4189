package cmd

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/arcticwatch/arcticwatch/internal/config"
	"github.com/arcticwatch/arcticwatch/internal/history"
	"github.com/arcticwatch/arcticwatch/internal/models"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		format string
		limit  int
		path   string
		stats  bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past runs",
		Example: `  # Last 20 runs
  arcticwatch history

  # Everything as YAML
  arcticwatch history --limit 0 --format yaml

  # Outcome counts over the last week of hourly runs
  arcticwatch history --limit 168 --stats`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				cfg, err := config.Read(opts.configPath)
				if errors.Is(err, config.ErrNotFound) {
					cfg = config.Default()
				} else if err != nil {
					return err
				}
				path = cfg.History.Path
			}

			ledger, err := history.NewLedger(path)
			if err != nil {
				return err
			}
			runs, err := ledger.Tail(limit)
			if err != nil {
				return err
			}
			if stats {
				history.Aggregate(runs).Print(cmd.OutOrStdout())
				return nil
			}
			return printHistory(cmd.OutOrStdout(), runs, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, yaml, json, csv)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show (0 for all)")
	cmd.Flags().StringVar(&path, "file", "", "History file (overrides history.path)")
	cmd.Flags().BoolVar(&stats, "stats", false, "Print a summary instead of the runs")

	return cmd
}

func printHistory(w io.Writer, runs []models.RunSummary, format string) error {
	switch format {
	case "table":
		return printHistoryTable(w, runs)
	case "yaml":
		data, err := yaml.Marshal(runs)
		if err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
		_, err = w.Write(data)
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	case "csv":
		return printHistoryCSV(w, runs)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func printHistoryTable(w io.Writer, runs []models.RunSummary) error {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return nil
	}

	fmt.Fprintf(w, "%-20s %-24s %-26s %8s %6s  %s\n", "STARTED", "OUTCOME", "STATE", "DURATION", "STATES", "DETAIL")
	for _, r := range runs {
		detail := r.Entry
		if r.Error != "" {
			detail = r.Error
		}
		fmt.Fprintf(w, "%-20s %-24s %-26s %8s %6d  %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Outcome,
			r.State,
			r.Duration().Round(time.Second),
			r.CorpusSize,
			detail,
		)
	}
	return nil
}

func printHistoryCSV(w io.Writer, runs []models.RunSummary) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"id", "started_at", "duration_s", "outcome", "state", "step", "error", "entry", "corpus_size"}); err != nil {
		return err
	}
	for _, r := range runs {
		record := []string{
			r.ID,
			r.StartedAt.Format(time.RFC3339),
			strconv.FormatFloat(r.Duration().Seconds(), 'f', 1, 64),
			r.Outcome,
			r.State,
			r.Step,
			r.Error,
			r.Entry,
			strconv.Itoa(r.CorpusSize),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
