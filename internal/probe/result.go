package probe

import "time"

// Status represents the reachability of a host.
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// Result is the outcome of a single probe.
type Result struct {
	Host      string
	Status    Status
	RTT       time.Duration
	Error     string
	CheckedAt time.Time
}
