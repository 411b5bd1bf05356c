package probe

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"time"
)

// CommandExecutor abstracts os/exec for testability.
type CommandExecutor interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// execProber shells out to the system ping binary.
type execProber struct {
	executor CommandExecutor
	goos     string
}

func newExecProber() *execProber {
	return &execProber{executor: &osExecutor{}, goos: runtime.GOOS}
}

// NewExecProber creates an exec prober with a custom executor and target OS (for testing).
func NewExecProber(exec CommandExecutor, goos string) Prober {
	return &execProber{executor: exec, goos: goos}
}

var (
	rttRegex         = regexp.MustCompile(`time[=<](\d+\.?\d*)\s*ms`)
	unreachableRegex = regexp.MustCompile(`(?i)unreachable`)
)

// execGrace is how long the ping process may outlive its own timeout flag.
const execGrace = time.Second

func (p *execProber) Probe(ctx context.Context, req Request) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, req.Timeout+execGrace)
	defer cancel()

	stdout, stderr, err := p.executor.Run(ctx, "ping", p.args(req)...)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, ErrTimeout
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			if unreachableRegex.Match(stdout) {
				return 0, ErrUnreachable
			}
			return 0, ErrTimeout
		}
		if msg := lastLine(stderr); msg != "" {
			return 0, errors.New(msg)
		}
		return 0, fmt.Errorf("ping %s: %w", req.Host, err)
	}

	rtt, ok := parseRTT(stdout)
	if !ok {
		if unreachableRegex.Match(stdout) {
			return 0, ErrUnreachable
		}
		return 0, errors.New("could not parse RTT from ping output")
	}
	return rtt, nil
}

// args builds the platform-specific ping command line for a single echo.
func (p *execProber) args(req Request) []string {
	size := strconv.Itoa(len(req.Payload))

	if p.goos == "windows" {
		args := []string{"-n", "1", "-w", strconv.FormatInt(req.Timeout.Milliseconds(), 10), "-l", size}
		if req.DontFragment {
			args = append(args, "-f")
		}
		return append(args, req.Host)
	}

	timeoutSec := int(math.Ceil(req.Timeout.Seconds()))
	if timeoutSec < 1 {
		timeoutSec = 1
	}

	var args []string
	if p.goos == "darwin" {
		args = []string{"-c", "1", "-t", strconv.Itoa(timeoutSec), "-s", size}
		if req.DontFragment {
			args = append(args, "-D")
		}
	} else {
		args = []string{"-c", "1", "-W", strconv.Itoa(timeoutSec), "-s", size}
		if req.DontFragment {
			args = append(args, "-M", "do")
		}
	}
	if pattern := payloadPattern(req.Payload); pattern != "" {
		args = append(args, "-p", pattern)
	}
	return append(args, req.Host)
}

// payloadPattern returns the hex fill pattern accepted by ping -p (at most 16 bytes).
func payloadPattern(payload []byte) string {
	if len(payload) > 16 {
		payload = payload[:16]
	}
	return hex.EncodeToString(payload)
}

func parseRTT(out []byte) (time.Duration, bool) {
	matches := rttRegex.FindSubmatch(out)
	if matches == nil {
		return 0, false
	}
	ms, err := strconv.ParseFloat(string(matches[1]), 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(ms * float64(time.Millisecond)), true
}

// lastLine returns the last non-empty line of out. ping prints warnings
// before the error that caused the failure.
func lastLine(out []byte) string {
	lines := bytes.Split(out, []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		if l := bytes.TrimSpace(lines[i]); len(l) > 0 {
			return string(l)
		}
	}
	return ""
}
