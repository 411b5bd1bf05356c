// Package monitor runs the ping sweep and speed test loop and writes their
// results to the daily log files.
package monitor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hazz-dev/pinglog/internal/logfile"
	"github.com/hazz-dev/pinglog/internal/metrics"
	"github.com/hazz-dev/pinglog/internal/probe"
	"github.com/hazz-dev/pinglog/internal/speed"
	"github.com/hazz-dev/pinglog/internal/storage"
)

// Store defines the history operations used by the monitor.
type Store interface {
	InsertPing(ctx context.Context, r probe.Result) error
	InsertSpeed(ctx context.Context, s storage.Speed) error
}

// Clock abstracts time for the loop.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Options configures a Monitor.
type Options struct {
	Hosts         []string
	PingInterval  time.Duration
	SpeedInterval time.Duration
	PingTimeout   time.Duration
	Payload       []byte
	DontFragment  bool
	SpeedTimeout  time.Duration
}

// Monitor pings a fixed host list every cycle and runs the speed test when it is due.
type Monitor struct {
	opts    Options
	prober  probe.Prober
	meter   speed.Meter
	logs    *logfile.Dir
	console io.Writer
	clock   Clock
	logger  *slog.Logger

	store    Store
	metrics  *metrics.Metrics
	onResult func(probe.Result, *probe.Status)
	last     map[string]probe.Status
}

// New creates a Monitor. Pass an untyped nil console to discard result lines
// and nil logger to use the default logger.
func New(opts Options, prober probe.Prober, meter speed.Meter, logs *logfile.Dir, console io.Writer, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if console == nil {
		console = io.Discard
	}
	return &Monitor{
		opts:    opts,
		prober:  prober,
		meter:   meter,
		logs:    logs,
		console: console,
		clock:   realClock{},
		logger:  logger,
		last:    make(map[string]probe.Status, len(opts.Hosts)),
	}
}

// SetClock replaces the clock (for testing).
func (m *Monitor) SetClock(c Clock) {
	m.clock = c
}

// SetStore enables history persistence.
func (m *Monitor) SetStore(s Store) {
	m.store = s
}

// SetMetrics enables Prometheus metrics.
func (m *Monitor) SetMetrics(mt *metrics.Metrics) {
	m.metrics = mt
}

// SetOnResult sets the callback invoked after each probe.
// result is the current probe result; prev is the previous status (nil on first probe).
func (m *Monitor) SetOnResult(fn func(probe.Result, *probe.Status)) {
	m.onResult = fn
}

// Run loops until ctx is cancelled. Cancellation is only observed between
// cycles; a cycle in progress always finishes its writes. It returns nil on
// cancellation and an error when the log files cannot be written.
func (m *Monitor) Run(ctx context.Context) error {
	// Cycle work is detached from cancellation; per-operation timeouts bound it.
	work := context.WithoutCancel(ctx)

	var speedStarted bool
	var speedLast time.Time

	for {
		start := m.clock.Now()

		if err := m.logs.Ensure(); err != nil {
			return err
		}
		pingLog := m.logs.File(logfile.KindPing, start)
		speedLog := m.logs.File(logfile.KindSpeed, start)
		created, err := logfile.EnsureHeader(pingLog, m.opts.Hosts)
		if err != nil {
			return err
		}
		if created {
			m.logger.Info("started ping log", "path", pingLog, "hosts", len(m.opts.Hosts))
		}

		if _, err := m.Sweep(work, pingLog); err != nil {
			return err
		}

		now := m.clock.Now()
		if SpeedDue(speedStarted, speedLast, now, m.opts.SpeedInterval) {
			if _, err := m.SpeedTest(work, speedLog); err != nil {
				return err
			}
			speedStarted = true
			speedLast = m.clock.Now()
		}

		if m.metrics != nil {
			m.metrics.Cycles.Inc()
		}

		remaining := m.opts.PingInterval - m.clock.Now().Sub(start)
		if remaining <= 0 {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-m.clock.After(remaining):
		}
	}
}

// SpeedDue reports whether the speed test should run: it has never run, or
// strictly more than every has passed since it last did.
func SpeedDue(started bool, last, now time.Time, every time.Duration) bool {
	return !started || now.Sub(last) > every
}

// Sweep probes every host in order and appends one summary line to path.
// Probe failures are recorded in the line; only a write failure is returned.
func (m *Monitor) Sweep(ctx context.Context, path string) (string, error) {
	tokens := make([]string, 0, len(m.opts.Hosts))
	for _, host := range m.opts.Hosts {
		req := probe.Request{
			Host:         host,
			Timeout:      m.opts.PingTimeout,
			Payload:      m.opts.Payload,
			DontFragment: m.opts.DontFragment,
		}
		pctx, cancel := context.WithTimeout(ctx, m.opts.PingTimeout+time.Second)
		result := probe.Run(pctx, m.prober, req)
		cancel()

		fmt.Fprintf(m.console, "%s - ping %s - %s\n", m.timestamp(), host, consoleOutcome(result))
		tokens = append(tokens, Token(result))
		m.observe(ctx, result)
	}

	line := fmt.Sprintf("%s - %s", m.timestamp(), strings.Join(tokens, ", "))
	if err := logfile.AppendLine(path, line); err != nil {
		return "", err
	}
	return line, nil
}

// SpeedTest runs one measurement and appends the outcome to path. A failed
// measurement is logged as an error line; only a write failure is returned.
func (m *Monitor) SpeedTest(ctx context.Context, path string) (string, error) {
	if m.opts.SpeedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.SpeedTimeout)
		defer cancel()
	}

	res, err := m.meter.Measure(ctx)
	at := m.clock.Now()

	var line string
	rec := storage.Speed{MeasuredAt: at}
	if err != nil {
		line = fmt.Sprintf("%s - speed - error: %v", at.UTC().Format(logfile.TimestampLayout), err)
		rec.Error = err.Error()
		m.logger.Warn("speed test failed", "error", err)
	} else {
		line = SpeedLine(at, res.MBps)
		rec.MBps = res.MBps
		rec.Bytes = res.Bytes
		rec.ElapsedMs = res.Elapsed.Milliseconds()
	}

	fmt.Fprintln(m.console, line)
	if err := logfile.AppendLine(path, line); err != nil {
		return "", err
	}

	if m.metrics != nil {
		m.metrics.ObserveSpeed(res, err)
	}
	if m.store != nil {
		if err := m.store.InsertSpeed(ctx, rec); err != nil {
			m.logger.Error("storing speed test", "error", err)
		}
	}
	return line, nil
}

func (m *Monitor) observe(ctx context.Context, result probe.Result) {
	if m.metrics != nil {
		m.metrics.ObservePing(result)
	}
	if m.store != nil {
		if err := m.store.InsertPing(ctx, result); err != nil {
			m.logger.Error("storing ping result", "host", result.Host, "error", err)
		}
	}

	prev, seen := m.last[result.Host]
	m.last[result.Host] = result.Status
	if m.onResult != nil {
		var prevStatus *probe.Status
		if seen {
			prevStatus = &prev
		}
		m.onResult(result, prevStatus)
	}
}

func (m *Monitor) timestamp() string {
	return m.clock.Now().UTC().Format(logfile.TimestampLayout)
}

// lineBreaks flattens multi-line error text so each result stays on one line.
var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// Token formats a probe result as "<initial>:<rtt-ms>" or "<initial>:<error>".
// Hosts sharing an initial produce identical tags.
func Token(r probe.Result) string {
	initial, _ := utf8.DecodeRuneInString(r.Host)
	if r.Status == probe.StatusUp {
		return fmt.Sprintf("%c:%d", initial, r.RTT.Milliseconds())
	}
	return fmt.Sprintf("%c:%s", initial, lineBreaks.Replace(r.Error))
}

// SpeedLine formats a successful speed test line.
func SpeedLine(at time.Time, mbps float64) string {
	return fmt.Sprintf("%s - speed - %.3f MB/s", at.UTC().Format(logfile.TimestampLayout), mbps)
}

func consoleOutcome(r probe.Result) string {
	if r.Status == probe.StatusUp {
		return fmt.Sprintf("%dms", r.RTT.Milliseconds())
	}
	return lineBreaks.Replace(r.Error)
}
