// Package report renders daily latency charts from the ping history.
package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/hazz-dev/pinglog/internal/storage"
)

// ErrNoData is returned when the day has no successful pings to plot.
var ErrNoData = errors.New("no successful pings in range")

// Source provides stored pings for a time range.
type Source interface {
	PingsBetween(ctx context.Context, from, to time.Time) ([]storage.Ping, error)
}

// Generator builds charts from a Source.
type Generator struct {
	src   Source
	hosts []string
}

// NewGenerator creates a Generator. Hosts fixes the series order and color.
func NewGenerator(src Source, hosts []string) *Generator {
	return &Generator{src: src, hosts: hosts}
}

type series struct {
	times  []time.Time
	values []float64
}

// Latency renders a PNG of per-host round-trip times for the UTC day
// containing day. Failed pings are left out of the series.
func (g *Generator) Latency(ctx context.Context, day time.Time, w io.Writer) error {
	from := day.UTC().Truncate(24 * time.Hour)
	to := from.Add(24 * time.Hour)

	pings, err := g.src.PingsBetween(ctx, from, to)
	if err != nil {
		return fmt.Errorf("loading pings: %w", err)
	}

	byHost := make(map[string]*series, len(g.hosts))
	maxRTT := 0.0
	for _, p := range pings {
		if p.Status != "up" {
			continue
		}
		s, ok := byHost[p.Host]
		if !ok {
			s = &series{}
			byHost[p.Host] = s
		}
		v := float64(p.RTTMs)
		s.times = append(s.times, p.CheckedAt)
		s.values = append(s.values, v)
		if v > maxRTT {
			maxRTT = v
		}
	}

	var all []chart.Series
	for i, host := range g.hosts {
		s, ok := byHost[host]
		if !ok {
			continue
		}
		all = append(all, chart.TimeSeries{
			Name: host,
			Style: chart.Style{
				StrokeColor: chart.GetDefaultColor(i),
				StrokeWidth: 2,
			},
			XValues: s.times,
			YValues: s.values,
		})
	}
	if len(all) == 0 {
		return ErrNoData
	}

	graph := chart.Chart{
		Title: fmt.Sprintf("Round-trip time %s", from.Format("2006-01-02")),
		TitleStyle: chart.Style{
			FontSize: 16,
		},
		Background: chart.Style{
			Padding: chart.Box{Top: 50, Left: 20, Right: 20, Bottom: 20},
		},
		Width:  1200,
		Height: 400,
		XAxis: chart.XAxis{
			Name:           "Time (UTC)",
			ValueFormatter: chart.TimeHourValueFormatter,
			Range: &chart.ContinuousRange{
				Min: chart.TimeToFloat64(from),
				Max: chart.TimeToFloat64(to),
			},
		},
		YAxis: chart.YAxis{
			Name: "RTT (ms)",
			// Explicit range so a flat series still renders.
			Range: &chart.ContinuousRange{Min: 0, Max: maxRTT*1.1 + 1},
			GridMajorStyle: chart.Style{
				StrokeColor: drawing.Color{R: 200, G: 200, B: 200, A: 255},
				StrokeWidth: 1.0,
			},
		},
		Series: all,
	}
	graph.Elements = []chart.Renderable{chart.LegendThin(&graph)}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("rendering chart: %w", err)
	}
	return nil
}

// WriteLatency renders the chart for day into dir and returns the file path.
func (g *Generator) WriteLatency(ctx context.Context, day time.Time, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-latency.png", day.UTC().Format("2006-01-02")))

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := g.Latency(ctx, day, f); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}
