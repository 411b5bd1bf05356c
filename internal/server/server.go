package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazz-dev/pinglog/internal/storage"
)

// ServerStore defines the storage queries the server needs.
type ServerStore interface {
	AllLatest(ctx context.Context) ([]storage.Ping, error)
	LatestPing(ctx context.Context, host string) (*storage.Ping, error)
	PingHistory(ctx context.Context, host string, limit, offset int) ([]storage.Ping, int, error)
	UptimePercent(ctx context.Context, host string, last int) (float64, error)
	LatestSpeed(ctx context.Context) (*storage.Speed, error)
	SpeedHistory(ctx context.Context, limit int) ([]storage.Speed, error)
}

// uptimeWindow is the number of recent probes uptime is computed over.
const uptimeWindow = 100

// Server holds the chi router and its dependencies.
type Server struct {
	store   ServerStore
	hosts   []string
	metrics http.Handler
	router  chi.Router
	logger  *slog.Logger
}

// New creates a new Server and registers all routes. metrics, when non-nil,
// is mounted at /metrics.
func New(store ServerStore, hosts []string, metrics http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:   store,
		hosts:   hosts,
		metrics: metrics,
		router:  chi.NewRouter(),
		logger:  logger,
	}
	s.registerRoutes()
	return s
}

// Router returns the chi router (for mounting or testing).
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/hosts", s.handleListHosts)
	r.Get("/api/hosts/{name}", s.handleGetHost)
	r.Get("/api/hosts/{name}/history", s.handleGetHostHistory)
	r.Get("/api/speed", s.handleSpeed)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
}

// --- Response helpers ---

type envelope struct {
	Data  interface{} `json:"data"`
	Error string      `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Error: msg})
}

func (s *Server) knownHost(name string) bool {
	for _, h := range s.hosts {
		if h == name {
			return true
		}
	}
	return false
}

// queryInt parses a non-negative integer query parameter, returning def when absent.
func queryInt(r *http.Request, key string, def, max int) (int, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	if max > 0 && n > max {
		n = max
	}
	return n, true
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type hostDetail struct {
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	RTTMs       int64      `json:"rtt_ms"`
	Error       string     `json:"error,omitempty"`
	UptimePct   float64    `json:"uptime_percent"`
	LastChecked *time.Time `json:"last_checked"`
}

func (s *Server) detail(ctx context.Context, host string, latest *storage.Ping) hostDetail {
	d := hostDetail{Name: host, Status: "unknown"}
	if latest == nil {
		return d
	}
	d.Status = latest.Status
	d.RTTMs = latest.RTTMs
	d.Error = latest.Error
	t := latest.CheckedAt
	d.LastChecked = &t
	pct, err := s.store.UptimePercent(ctx, host, uptimeWindow)
	if err != nil {
		s.logger.Warn("UptimePercent", "host", host, "error", err)
	}
	d.UptimePct = pct
	return d
}

func (s *Server) handleListHosts(w http.ResponseWriter, r *http.Request) {
	latest, err := s.store.AllLatest(r.Context())
	if err != nil {
		s.logger.Error("AllLatest", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	byHost := make(map[string]storage.Ping, len(latest))
	for _, p := range latest {
		byHost[p.Host] = p
	}

	details := make([]hostDetail, 0, len(s.hosts))
	for _, host := range s.hosts {
		var p *storage.Ping
		if found, ok := byHost[host]; ok {
			p = &found
		}
		details = append(details, s.detail(r.Context(), host, p))
	}

	writeJSON(w, http.StatusOK, details)
}

type hostDetailResponse struct {
	hostDetail
	RecentPings []storage.Ping `json:"recent_pings"`
}

func (s *Server) handleGetHost(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !s.knownHost(name) {
		writeError(w, http.StatusNotFound, "host not found")
		return
	}

	latest, err := s.store.LatestPing(r.Context(), name)
	if err != nil {
		s.logger.Error("LatestPing", "host", name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	recent, _, err := s.store.PingHistory(r.Context(), name, 10, 0)
	if err != nil {
		s.logger.Error("PingHistory", "host", name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, hostDetailResponse{
		hostDetail:  s.detail(r.Context(), name, latest),
		RecentPings: recent,
	})
}

type historyResponse struct {
	Pings []storage.Ping `json:"pings"`
	Total int            `json:"total"`
}

func (s *Server) handleGetHostHistory(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !s.knownHost(name) {
		writeError(w, http.StatusNotFound, "host not found")
		return
	}

	limit, ok := queryInt(r, "limit", 50, 1000)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid limit parameter")
		return
	}
	offset, ok := queryInt(r, "offset", 0, 0)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid offset parameter")
		return
	}

	pings, total, err := s.store.PingHistory(r.Context(), name, limit, offset)
	if err != nil {
		s.logger.Error("PingHistory", "host", name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, historyResponse{Pings: pings, Total: total})
}

type speedResponse struct {
	Latest  *storage.Speed  `json:"latest"`
	History []storage.Speed `json:"history"`
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", 20, 500)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid limit parameter")
		return
	}

	latest, err := s.store.LatestSpeed(r.Context())
	if err != nil {
		s.logger.Error("LatestSpeed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	history, err := s.store.SpeedHistory(r.Context(), limit)
	if err != nil {
		s.logger.Error("SpeedHistory", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if history == nil {
		history = []storage.Speed{}
	}

	writeJSON(w, http.StatusOK, speedResponse{Latest: latest, History: history})
}

// --- Middleware ---

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
		)
	})
}
