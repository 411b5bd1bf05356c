package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/pinglog/internal/config"
	"github.com/hazz-dev/pinglog/internal/monitor"
	"github.com/hazz-dev/pinglog/internal/probe"
)

func executeCheck(cmd *cobra.Command, cfg *config.Config, p probe.Prober) error {
	return runChecks(cmd.Context(), cmd.OutOrStdout(), cfg, p)
}

// runChecks probes every host once, in order, and prints one row per host.
func runChecks(ctx context.Context, out io.Writer, cfg *config.Config, p probe.Prober) error {
	if ctx == nil {
		ctx = context.Background()
	}

	results := make([]probe.Result, 0, len(cfg.Hosts))
	for _, host := range cfg.Hosts {
		req := probe.Request{
			Host:         host,
			Timeout:      cfg.Ping.Timeout.Duration,
			Payload:      cfg.Ping.Payload(),
			DontFragment: cfg.Ping.DF(),
		}
		pctx, cancel := context.WithTimeout(ctx, cfg.Ping.Timeout.Duration+time.Second)
		results = append(results, probe.Run(pctx, p, req))
		cancel()
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "HOST\tTOKEN\tSTATUS\tRTT\tERROR")
	allUp := true
	for _, r := range results {
		rtt := "—"
		if r.Status == probe.StatusUp {
			rtt = r.RTT.Round(time.Millisecond).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.Host,
			monitor.Token(r),
			r.Status,
			rtt,
			r.Error,
		)
		if r.Status != probe.StatusUp {
			allUp = false
		}
	}
	w.Flush()

	if !allUp {
		return fmt.Errorf("one or more hosts are down")
	}
	return nil
}
