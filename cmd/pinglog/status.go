package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/pinglog/internal/logfile"
	"github.com/hazz-dev/pinglog/internal/storage"
)

type statusStore interface {
	AllLatest(ctx context.Context) ([]storage.Ping, error)
	LatestSpeed(ctx context.Context) (*storage.Speed, error)
}

func executeStatus(cmd *cobra.Command, db statusStore) error {
	out := cmd.OutOrStdout()
	ctx := context.Background()

	pings, err := db.AllLatest(ctx)
	if err != nil {
		return fmt.Errorf("querying status: %w", err)
	}
	sp, err := db.LatestSpeed(ctx)
	if err != nil {
		return fmt.Errorf("querying speed: %w", err)
	}

	if len(pings) == 0 && sp == nil {
		fmt.Fprintln(out, "No history. Run 'pinglog' with storage.path set first.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "HOST\tSTATUS\tRTT\tLAST CHECKED (UTC)\tERROR")
	for _, p := range pings {
		rtt := "—"
		if p.Status == "up" {
			rtt = (time.Duration(p.RTTMs) * time.Millisecond).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			p.Host,
			p.Status,
			rtt,
			p.CheckedAt.UTC().Format(logfile.TimestampLayout),
			p.Error,
		)
	}
	w.Flush()

	if sp != nil {
		at := sp.MeasuredAt.UTC().Format(logfile.TimestampLayout)
		if sp.Error != "" {
			fmt.Fprintf(out, "\nLast speed test %s: error: %s\n", at, sp.Error)
		} else {
			fmt.Fprintf(out, "\nLast speed test %s: %.3f MB/s\n", at, sp.MBps)
		}
	}
	return nil
}
