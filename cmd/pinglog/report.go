package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/pinglog/internal/report"
	"github.com/hazz-dev/pinglog/internal/storage"
)

func reportCmd() *cobra.Command {
	var (
		date   string
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render a latency chart for one UTC day from the history database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			day, err := parseDay(date, time.Now())
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Storage.Path == "" {
				return errors.New("storage.path is not configured")
			}
			db, err := storage.Open(cfg.Storage.Path)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close()

			return executeReport(cmd, report.NewGenerator(db, cfg.Hosts), day, outDir)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "UTC day to chart as YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&outDir, "out", ".", "output directory")
	return cmd
}

// parseDay parses a YYYY-MM-DD date; empty means the UTC day of now.
func parseDay(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return now.UTC().Truncate(24 * time.Hour), nil
	}
	day, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q: want YYYY-MM-DD", s)
	}
	return day, nil
}

func executeReport(cmd *cobra.Command, gen *report.Generator, day time.Time, outDir string) error {
	path, err := gen.WriteLatency(context.Background(), day, outDir)
	if errors.Is(err, report.ErrNoData) {
		fmt.Fprintf(cmd.OutOrStdout(), "No successful pings recorded on %s.\n", day.Format("2006-01-02"))
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
