package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hazz-dev/pinglog/internal/probe"
	"github.com/hazz-dev/pinglog/internal/speed"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Ping metrics
	PingRTT      *prometheus.GaugeVec
	HostUp       *prometheus.GaugeVec
	PingFailures *prometheus.CounterVec

	// Speed metrics
	SpeedMBps     prometheus.Gauge
	SpeedFailures prometheus.Counter

	// Loop metrics
	Cycles prometheus.Counter
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PingRTT: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pinglog_ping_rtt_seconds",
				Help: "Round-trip time of the last successful echo",
			},
			[]string{"host"},
		),

		HostUp: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pinglog_host_up",
				Help: "1 if the last probe of the host succeeded, 0 otherwise",
			},
			[]string{"host"},
		),

		PingFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pinglog_ping_failures_total",
				Help: "Total number of failed probes",
			},
			[]string{"host"},
		),

		SpeedMBps: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "pinglog_speed_mbytes_per_second",
				Help: "Throughput of the last successful speed test in MB/s",
			},
		),

		SpeedFailures: f.NewCounter(
			prometheus.CounterOpts{
				Name: "pinglog_speed_failures_total",
				Help: "Total number of failed speed tests",
			},
		),

		Cycles: f.NewCounter(
			prometheus.CounterOpts{
				Name: "pinglog_cycles_total",
				Help: "Total number of completed monitor cycles",
			},
		),
	}
}

// ObservePing records one probe result.
func (m *Metrics) ObservePing(r probe.Result) {
	if r.Status == probe.StatusUp {
		m.HostUp.WithLabelValues(r.Host).Set(1)
		m.PingRTT.WithLabelValues(r.Host).Set(r.RTT.Seconds())
		return
	}
	m.HostUp.WithLabelValues(r.Host).Set(0)
	m.PingFailures.WithLabelValues(r.Host).Inc()
}

// ObserveSpeed records one speed test outcome.
func (m *Metrics) ObserveSpeed(r speed.Result, err error) {
	if err != nil {
		m.SpeedFailures.Inc()
		return
	}
	m.SpeedMBps.Set(r.MBps)
}
