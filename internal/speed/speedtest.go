package speed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/showwin/speedtest-go/speedtest"
)

// SpeedtestMeter measures download speed against the closest speedtest.net server.
type SpeedtestMeter struct {
	logger *slog.Logger
}

// NewSpeedtestMeter creates a SpeedtestMeter. Pass nil logger to use the default logger.
func NewSpeedtestMeter(logger *slog.Logger) *SpeedtestMeter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SpeedtestMeter{logger: logger}
}

func (m *SpeedtestMeter) Measure(ctx context.Context) (Result, error) {
	// A fresh client per run; the package-level default client retains
	// snapshots between tests.
	st := speedtest.New()

	servers, err := st.FetchServerListContext(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("fetch server list: %w", err)
	}
	targets, err := servers.FindServer([]int{})
	if err != nil {
		return Result{}, fmt.Errorf("find server: %w", err)
	}
	if len(targets) == 0 {
		return Result{}, fmt.Errorf("no servers available")
	}
	s := targets[0]

	start := time.Now()
	if err := s.DownloadTestContext(ctx); err != nil {
		return Result{}, fmt.Errorf("download test on %s: %w", s.Host, err)
	}
	elapsed := time.Since(start)

	res := Result{
		MBps:    float64(s.DLSpeed) / mebibyte,
		Elapsed: elapsed,
		Source:  s.Host,
	}
	m.logger.Debug("speedtest.net download finished",
		"server", s.Sponsor,
		"host", s.Host,
		"mbps", s.DLSpeed.Mbps(),
	)
	return res, nil
}
