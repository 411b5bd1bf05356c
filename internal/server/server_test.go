package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazz-dev/pinglog/internal/server"
	"github.com/hazz-dev/pinglog/internal/storage"
)

// mockStore implements server.ServerStore for testing.
type mockStore struct {
	pings     []storage.Ping
	latest    map[string]*storage.Ping
	history   map[string][]storage.Ping
	totalHist map[string]int
	uptime    map[string]float64
	speeds    []storage.Speed
	limits    []int
	err       error
}

func (m *mockStore) AllLatest(_ context.Context) ([]storage.Ping, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.pings, nil
}

func (m *mockStore) LatestPing(_ context.Context, host string) (*storage.Ping, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.latest != nil {
		return m.latest[host], nil
	}
	return nil, nil
}

func (m *mockStore) PingHistory(_ context.Context, host string, limit, offset int) ([]storage.Ping, int, error) {
	if m.err != nil {
		return nil, 0, m.err
	}
	m.limits = append(m.limits, limit)
	return m.history[host], m.totalHist[host], nil
}

func (m *mockStore) UptimePercent(_ context.Context, host string, last int) (float64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.uptime[host], nil
}

func (m *mockStore) LatestSpeed(_ context.Context) (*storage.Speed, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(m.speeds) == 0 {
		return nil, nil
	}
	return &m.speeds[0], nil
}

func (m *mockStore) SpeedHistory(_ context.Context, limit int) ([]storage.Speed, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.limits = append(m.limits, limit)
	return m.speeds, nil
}

var hosts = []string{"google.com", "microsoft.com"}

func makePing(host, status string) storage.Ping {
	return storage.Ping{
		ID:        1,
		Host:      host,
		Status:    status,
		RTTMs:     12,
		CheckedAt: time.Now().UTC(),
	}
}

func doRequest(t *testing.T, router http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decoding JSON response: %v", err)
	}
}

func TestHealth(t *testing.T) {
	s := server.New(&mockStore{}, hosts, nil, nil)
	w := doRequest(t, s.Router(), "GET", "/api/health")

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var resp map[string]string
	decodeJSON(t, w, &resp)
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestListHosts_NoHistory(t *testing.T) {
	s := server.New(&mockStore{}, hosts, nil, nil)
	w := doRequest(t, s.Router(), "GET", "/api/hosts")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Data []map[string]interface{} `json:"data"`
	}
	decodeJSON(t, w, &resp)
	if len(resp.Data) != 2 {
		t.Fatalf("expected 2 hosts, got %d", len(resp.Data))
	}
	for _, d := range resp.Data {
		if d["status"] != "unknown" {
			t.Errorf("expected status 'unknown', got %v", d["status"])
		}
	}
}

func TestListHosts_KeepsConfiguredOrder(t *testing.T) {
	store := &mockStore{
		pings:  []storage.Ping{makePing("microsoft.com", "down"), makePing("google.com", "up")},
		uptime: map[string]float64{"google.com": 100, "microsoft.com": 50},
	}
	s := server.New(store, hosts, nil, nil)
	w := doRequest(t, s.Router(), "GET", "/api/hosts")

	var resp struct {
		Data []map[string]interface{} `json:"data"`
	}
	decodeJSON(t, w, &resp)
	if len(resp.Data) != 2 {
		t.Fatalf("expected 2 hosts, got %d", len(resp.Data))
	}
	if resp.Data[0]["name"] != "google.com" || resp.Data[0]["status"] != "up" {
		t.Errorf("unexpected first host %v", resp.Data[0])
	}
	if resp.Data[1]["name"] != "microsoft.com" || resp.Data[1]["uptime_percent"] != 50.0 {
		t.Errorf("unexpected second host %v", resp.Data[1])
	}
}

func TestListHosts_StoreError(t *testing.T) {
	s := server.New(&mockStore{err: errors.New("db closed")}, hosts, nil, nil)
	w := doRequest(t, s.Router(), "GET", "/api/hosts")

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestGetHost_Found(t *testing.T) {
	p := makePing("google.com", "up")
	store := &mockStore{
		latest:    map[string]*storage.Ping{"google.com": &p},
		history:   map[string][]storage.Ping{"google.com": {p}},
		totalHist: map[string]int{"google.com": 1},
		uptime:    map[string]float64{"google.com": 99.5},
	}
	s := server.New(store, hosts, nil, nil)
	w := doRequest(t, s.Router(), "GET", "/api/hosts/google.com")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Data map[string]interface{} `json:"data"`
	}
	decodeJSON(t, w, &resp)
	if resp.Data["name"] != "google.com" {
		t.Errorf("expected name 'google.com', got %v", resp.Data["name"])
	}
	if resp.Data["rtt_ms"] != 12.0 {
		t.Errorf("expected rtt_ms 12, got %v", resp.Data["rtt_ms"])
	}
	if recent, ok := resp.Data["recent_pings"].([]interface{}); !ok || len(recent) != 1 {
		t.Errorf("expected 1 recent ping, got %v", resp.Data["recent_pings"])
	}
}

func TestGetHost_NotFound(t *testing.T) {
	s := server.New(&mockStore{}, hosts, nil, nil)
	w := doRequest(t, s.Router(), "GET", "/api/hosts/nonexistent")

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestGetHostHistory_Pagination(t *testing.T) {
	pings := make([]storage.Ping, 5)
	for i := range pings {
		pings[i] = makePing("google.com", "up")
	}
	store := &mockStore{
		history:   map[string][]storage.Ping{"google.com": pings},
		totalHist: map[string]int{"google.com": 50},
	}
	s := server.New(store, hosts, nil, nil)
	w := doRequest(t, s.Router(), "GET", "/api/hosts/google.com/history?limit=5&offset=0")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Data struct {
			Pings []interface{} `json:"pings"`
			Total int           `json:"total"`
		} `json:"data"`
	}
	decodeJSON(t, w, &resp)
	if resp.Data.Total != 50 {
		t.Errorf("expected total 50, got %d", resp.Data.Total)
	}
	if len(resp.Data.Pings) != 5 {
		t.Errorf("expected 5 pings, got %d", len(resp.Data.Pings))
	}
}

func TestGetHostHistory_LimitCapped(t *testing.T) {
	store := &mockStore{}
	s := server.New(store, hosts, nil, nil)
	w := doRequest(t, s.Router(), "GET", "/api/hosts/google.com/history?limit=99999")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(store.limits) != 1 || store.limits[0] != 1000 {
		t.Errorf("expected limit capped to 1000, got %v", store.limits)
	}
}

func TestGetHostHistory_NotFound(t *testing.T) {
	s := server.New(&mockStore{}, hosts, nil, nil)
	w := doRequest(t, s.Router(), "GET", "/api/hosts/nonexistent/history")

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestGetHostHistory_InvalidLimit(t *testing.T) {
	s := server.New(&mockStore{}, hosts, nil, nil)
	w := doRequest(t, s.Router(), "GET", "/api/hosts/google.com/history?limit=bad")

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", w.Code)
	}
}

func TestGetHostHistory_InvalidOffset(t *testing.T) {
	s := server.New(&mockStore{}, hosts, nil, nil)
	w := doRequest(t, s.Router(), "GET", "/api/hosts/google.com/history?offset=-1")

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad offset, got %d", w.Code)
	}
}

func TestSpeed(t *testing.T) {
	store := &mockStore{speeds: []storage.Speed{
		{ID: 2, MBps: 11.5, MeasuredAt: time.Now().UTC()},
		{ID: 1, Error: "timeout", MeasuredAt: time.Now().Add(-time.Hour).UTC()},
	}}
	s := server.New(store, hosts, nil, nil)
	w := doRequest(t, s.Router(), "GET", "/api/speed?limit=2")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Data struct {
			Latest  map[string]interface{}   `json:"latest"`
			History []map[string]interface{} `json:"history"`
		} `json:"data"`
	}
	decodeJSON(t, w, &resp)
	if resp.Data.Latest["mbps"] != 11.5 {
		t.Errorf("expected latest mbps 11.5, got %v", resp.Data.Latest["mbps"])
	}
	if len(resp.Data.History) != 2 || resp.Data.History[1]["error"] != "timeout" {
		t.Errorf("unexpected history %v", resp.Data.History)
	}
}

func TestSpeed_Empty(t *testing.T) {
	s := server.New(&mockStore{}, hosts, nil, nil)
	w := doRequest(t, s.Router(), "GET", "/api/speed")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"latest":null`) || !strings.Contains(w.Body.String(), `"history":[]`) {
		t.Errorf("unexpected body %s", w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "pinglog_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	s := server.New(&mockStore{}, hosts, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil)
	w := doRequest(t, s.Router(), "GET", "/metrics")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "pinglog_test_total 1") {
		t.Errorf("expected metric in body, got %s", w.Body.String())
	}
}

func TestMetricsEndpoint_Disabled(t *testing.T) {
	s := server.New(&mockStore{}, hosts, nil, nil)
	w := doRequest(t, s.Router(), "GET", "/metrics")

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 without metrics handler, got %d", w.Code)
	}
}
