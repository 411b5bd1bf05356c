package probe_test

import (
	"context"
	"testing"
	"time"

	"github.com/hazz-dev/pinglog/internal/probe"
)

type fixedProber struct {
	rtt time.Duration
	err error
}

func (f fixedProber) Probe(context.Context, probe.Request) (time.Duration, error) {
	return f.rtt, f.err
}

func TestNew_UnknownMethod(t *testing.T) {
	if _, err := probe.New("udp"); err == nil {
		t.Fatal("expected error for unknown probe method, got nil")
	}
}

func TestNew_KnownMethods(t *testing.T) {
	for _, m := range []string{"exec", "icmp"} {
		p, err := probe.New(m)
		if err != nil {
			t.Errorf("New(%q): %v", m, err)
		}
		if p == nil {
			t.Errorf("New(%q) returned nil prober", m)
		}
	}
}

func TestStatusConstants(t *testing.T) {
	if probe.StatusUp != "up" {
		t.Errorf("StatusUp should be 'up', got %q", probe.StatusUp)
	}
	if probe.StatusDown != "down" {
		t.Errorf("StatusDown should be 'down', got %q", probe.StatusDown)
	}
}

func TestRun_Up(t *testing.T) {
	r := probe.Run(context.Background(), fixedProber{rtt: 12 * time.Millisecond}, probe.Request{Host: "google.com"})
	if r.Status != probe.StatusUp {
		t.Errorf("expected up, got %q", r.Status)
	}
	if r.RTT != 12*time.Millisecond {
		t.Errorf("expected 12ms, got %v", r.RTT)
	}
	if r.Host != "google.com" || r.Error != "" || r.CheckedAt.IsZero() {
		t.Errorf("unexpected result %+v", r)
	}
}

func TestRun_Down(t *testing.T) {
	r := probe.Run(context.Background(), fixedProber{err: probe.ErrTimeout}, probe.Request{Host: "microsoft.com"})
	if r.Status != probe.StatusDown {
		t.Errorf("expected down, got %q", r.Status)
	}
	if r.Error != "timeout" {
		t.Errorf("expected error 'timeout', got %q", r.Error)
	}
}
