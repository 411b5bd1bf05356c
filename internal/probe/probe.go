// Package probe sends single ICMP echo requests and reports the round-trip time.
package probe

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout is returned when no echo reply arrives before the deadline.
	ErrTimeout = errors.New("timeout")
	// ErrUnreachable is returned when the network reports the host unreachable.
	ErrUnreachable = errors.New("unreachable")
)

// Request describes one echo probe.
type Request struct {
	Host         string
	Timeout      time.Duration
	Payload      []byte
	DontFragment bool
}

// Prober issues one echo request and returns the round-trip time.
type Prober interface {
	Probe(ctx context.Context, req Request) (time.Duration, error)
}

// New returns the Prober for method ("exec" or "icmp").
func New(method string) (Prober, error) {
	switch method {
	case "exec":
		return newExecProber(), nil
	case "icmp":
		return newICMPProber(), nil
	default:
		return nil, fmt.Errorf("unknown probe method %q", method)
	}
}

// Run probes req.Host and wraps the outcome in a Result.
func Run(ctx context.Context, p Prober, req Request) Result {
	result := Result{
		Host:      req.Host,
		CheckedAt: time.Now(),
	}
	rtt, err := p.Probe(ctx, req)
	if err != nil {
		result.Status = StatusDown
		result.Error = err.Error()
		return result
	}
	result.Status = StatusUp
	result.RTT = rtt
	return result
}
