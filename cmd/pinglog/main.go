package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/hazz-dev/pinglog/internal/alert"
	"github.com/hazz-dev/pinglog/internal/config"
	"github.com/hazz-dev/pinglog/internal/logfile"
	"github.com/hazz-dev/pinglog/internal/metrics"
	"github.com/hazz-dev/pinglog/internal/monitor"
	"github.com/hazz-dev/pinglog/internal/probe"
	"github.com/hazz-dev/pinglog/internal/retention"
	"github.com/hazz-dev/pinglog/internal/server"
	"github.com/hazz-dev/pinglog/internal/speed"
	"github.com/hazz-dev/pinglog/internal/storage"
	"github.com/hazz-dev/pinglog/internal/version"
)

var (
	cfgFile  string
	logLevel string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pinglog [logdir]",
		Short: "Log ping and download speed results to daily files",
		Long: `pinglog pings a fixed list of hosts every few seconds and measures
download speed every half hour. Results are appended to
<logdir>/<date>-ping.log and <logdir>/<date>-speed.log (UTC dates).
The log directory defaults to the current directory.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE:         runMonitor,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (built-in defaults when empty)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(versionCmd())
	root.AddCommand(checkCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(reportCmd())

	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}

func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func newMeter(cfg *config.Config, logger *slog.Logger) speed.Meter {
	if cfg.Speed.Method == config.SpeedMethodSpeedtest {
		return speed.NewSpeedtestMeter(logger)
	}
	d := speed.NewHTTPDownloader(cfg.Speed.Timeout.Duration)
	return speed.NewStreamMeter(cfg.Speed.URL, d, cfg.Speed.BufferSize, logger)
}

func monitorOptions(cfg *config.Config) monitor.Options {
	return monitor.Options{
		Hosts:         cfg.Hosts,
		PingInterval:  cfg.Ping.Interval.Duration,
		SpeedInterval: cfg.Speed.Interval.Duration,
		PingTimeout:   cfg.Ping.Timeout.Duration,
		Payload:       cfg.Ping.Payload(),
		DontFragment:  cfg.Ping.DF(),
		SpeedTimeout:  cfg.Speed.Timeout.Duration,
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(logLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	// 1. Load config
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.Log.Dir = args[0]
	}
	if cfg.Retention.KeepDays > 0 {
		if err := retention.ValidateSchedule(cfg.Retention.Schedule); err != nil {
			return fmt.Errorf("retention.schedule: %w", err)
		}
	}
	logger.Info("config loaded", "hosts", strings.Join(cfg.Hosts, ","), "dir", cfg.Log.Dir)

	// 2. Build prober and meter
	prober, err := probe.New(cfg.Ping.Method)
	if err != nil {
		return err
	}
	if cfg.Ping.Method == config.PingMethodICMP && cfg.Ping.DF() && !probe.DontFragmentEnforced {
		logger.Warn("dont_fragment is not enforced by the icmp method on this platform; use method exec")
	}
	logs := logfile.New(cfg.Log.Dir)
	mon := monitor.New(monitorOptions(cfg), prober, newMeter(cfg, logger), logs, cmd.OutOrStdout(), logger)

	// 3. Open history. The status API needs a store, so it gets an
	// in-memory one when no path is configured.
	dbPath := cfg.Storage.Path
	if dbPath == "" && cfg.Server.Address != "" {
		dbPath = ":memory:"
	}
	var db *storage.DB
	if dbPath != "" {
		db, err = storage.Open(dbPath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()
		mon.SetStore(db)
	}

	// 4. Alerts
	if cfg.Alerts.Webhook.URL != "" {
		alerter := alert.New(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Cooldown.Duration, cfg.Alerts.Webhook.RatePerMinute, logger)
		mon.SetOnResult(alerter.Notify)
		defer alerter.Wait()
	}

	// 5. Cancel on SIGINT/SIGTERM. The current cycle always finishes.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("interrupt received, stopping after current cycle", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	// 6. Retention
	if cfg.Retention.KeepDays > 0 {
		var history retention.HistoryPruner
		if db != nil {
			history = db
		}
		pruner := retention.New(logs, history, cfg.Retention.KeepDays, logger)
		if err := pruner.Start(ctx, cfg.Retention.Schedule); err != nil {
			return err
		}
		defer pruner.Stop()
	}

	// 7. Metrics and status API
	var httpServer *http.Server
	serverErr := make(chan error, 1)
	if cfg.Server.Address != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		mon.SetMetrics(metrics.New(reg))

		api := server.New(db, cfg.Hosts, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), logger)
		httpServer = &http.Server{
			Addr:              cfg.Server.Address,
			Handler:           api.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("listening", "address", cfg.Server.Address)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
				cancel()
			}
		}()
	}

	// 8. Run until cancelled
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Warn("systemd notify failed", "error", err)
	} else if ok {
		logger.Debug("notified systemd ready")
	}

	runErr := mon.Run(ctx)

	daemon.SdNotify(false, daemon.SdNotifyStopping)

	// 9. Graceful shutdown
	if httpServer != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown", "error", err)
		}
	}

	if runErr != nil {
		return fmt.Errorf("monitor: %w", runErr)
	}
	select {
	case err := <-serverErr:
		return fmt.Errorf("HTTP server: %w", err)
	default:
	}
	logger.Info("shutdown complete")
	return nil
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Ping every host once and print a table",
		RunE:  runCheck,
	}
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	prober, err := probe.New(cfg.Ping.Method)
	if err != nil {
		return err
	}
	return executeCheck(cmd, cfg, prober)
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the latest results from the history database",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
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

	return executeStatus(cmd, db)
}
