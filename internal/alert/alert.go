package alert

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hazz-dev/pinglog/internal/probe"
)

// Alerter posts webhook notifications when a host flips between up and down.
type Alerter struct {
	webhookURL string
	cooldown   time.Duration
	client     *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
	lastAlert  map[string]time.Time
	mu         sync.Mutex
	wg         sync.WaitGroup
	logger     *slog.Logger
}

// New creates a new Alerter. perMinute caps outgoing webhooks across all
// hosts; zero or less means unlimited. Pass nil logger to use the default logger.
func New(webhookURL string, cooldown time.Duration, perMinute int, logger *slog.Logger) *Alerter {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	burst := 0
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / 60)
		burst = perMinute
	}
	return &Alerter{
		webhookURL: webhookURL,
		cooldown:   cooldown,
		client:     &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(limit, burst),
		now:        time.Now,
		lastAlert:  make(map[string]time.Time),
		logger:     logger,
	}
}

// SetClock replaces the time source used for cooldowns (for testing).
func (a *Alerter) SetClock(now func() time.Time) {
	a.now = now
}

type webhookPayload struct {
	Host           string `json:"host"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status"`
	Error          string `json:"error"`
	RTTMs          int64  `json:"rtt_ms"`
	CheckedAt      string `json:"checked_at"`
	Source         string `json:"source"`
}

// Notify sends a webhook if the host state has changed and neither the
// per-host cooldown nor the global rate limit holds it back.
func (a *Alerter) Notify(result probe.Result, previousStatus *probe.Status) {
	// First probe of a host.
	if previousStatus == nil {
		return
	}
	if result.Status == *previousStatus {
		return
	}

	a.mu.Lock()
	now := a.now()
	last, exists := a.lastAlert[result.Host]
	if exists && now.Sub(last) < a.cooldown {
		a.mu.Unlock()
		a.logger.Info("alert suppressed by cooldown", "host", result.Host)
		return
	}
	if !a.limiter.AllowN(now, 1) {
		a.mu.Unlock()
		a.logger.Warn("alert dropped by rate limit", "host", result.Host)
		return
	}
	a.lastAlert[result.Host] = now
	a.mu.Unlock()

	// Send asynchronously so Notify never blocks the monitor loop.
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.send(result, string(*previousStatus))
	}()
}

// Wait blocks until all in-flight webhooks have finished.
func (a *Alerter) Wait() {
	a.wg.Wait()
}

func (a *Alerter) send(result probe.Result, prevStatus string) {
	payload := webhookPayload{
		Host:           result.Host,
		Status:         string(result.Status),
		PreviousStatus: prevStatus,
		Error:          result.Error,
		RTTMs:          result.RTT.Milliseconds(),
		CheckedAt:      result.CheckedAt.UTC().Format(time.RFC3339),
		Source:         "pinglog",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		a.logger.Error("marshaling webhook payload", "host", result.Host, "error", err)
		return
	}

	resp, err := a.client.Post(a.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		a.logger.Error("sending webhook", "host", result.Host, "url", a.webhookURL, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		a.logger.Warn("webhook returned non-2xx status",
			"host", result.Host,
			"status", resp.StatusCode,
		)
	}
}
