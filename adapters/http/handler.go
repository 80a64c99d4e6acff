package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/artpar/apiward/adapters/metrics"
	"github.com/artpar/apiward/app"
	"github.com/artpar/apiward/domain/govern"
	"github.com/artpar/apiward/ports"
)

// VersionResponse represents the version endpoint response.
type VersionResponse struct {
	Version string `json:"version"`
	Service string `json:"service"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status    string `json:"status"`
	Online    bool   `json:"online,omitempty"`
	Transport string `json:"transport,omitempty"`
}

// StatsResponse represents the rate limiter statistics endpoint response.
type StatsResponse struct {
	TokensAvailable     int     `json:"tokens_available"`
	Capacity            int     `json:"capacity"`
	WindowRequests      int64   `json:"window_requests"`
	BlockedAcquisitions int64   `json:"blocked_acquisitions"`
	AverageWaitMs       float64 `json:"average_wait_ms"`
	Timeouts            int64   `json:"timeouts"`
	Throttling          bool    `json:"throttling"`
	Summary             string  `json:"summary"`
}

// ProxyHandler forwards local requests through the governor.
type ProxyHandler struct {
	gov    *app.Governor
	logger zerolog.Logger
}

// NewProxyHandler creates a new HTTP proxy handler.
func NewProxyHandler(gov *app.Governor, logger zerolog.Logger) *ProxyHandler {
	return &ProxyHandler{gov: gov, logger: logger}
}

// ServeHTTP handles incoming proxy requests.
func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(io.LimitReader(r.Body, 10<<20)) // 10MB limit
		if err != nil {
			h.logger.Error().Err(err).Msg("failed to read request body")
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
	}

	target := r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	resp, err := h.gov.Handle(ctx, govern.Request{
		Method:  r.Method,
		URL:     target,
		Headers: extractHeaders(r),
		Body:    body,
		TraceID: middleware.GetReqID(ctx),
	})
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("upstream error")
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.Status)
	if len(resp.Body) > 0 {
		if _, err := w.Write(resp.Body); err != nil {
			h.logger.Error().Err(err).Msg("failed to write response body")
		}
	}
}

// Stats reports rate limiter statistics as JSON.
func (h *ProxyHandler) Stats(w http.ResponseWriter, r *http.Request) {
	limiter := h.gov.Limiter()
	stats := limiter.Statistics()
	writeJSON(w, http.StatusOK, StatsResponse{
		TokensAvailable:     stats.AvailableTokens,
		Capacity:            stats.Capacity,
		WindowRequests:      stats.WindowRequests,
		BlockedAcquisitions: stats.TotalBlocked,
		AverageWaitMs:       float64(stats.AverageWait.Microseconds()) / 1000.0,
		Timeouts:            stats.Timeouts,
		Throttling:          limiter.IsThrottling(),
		Summary:             limiter.StatsSummary(),
	})
}

// ResetStats clears the rate limiter counters.
func (h *ProxyHandler) ResetStats(w http.ResponseWriter, r *http.Request) {
	h.gov.Limiter().ResetStatistics()
	w.WriteHeader(http.StatusNoContent)
}

func extractHeaders(r *http.Request) map[string]string {
	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		if !skipHeaders[k] {
			headers[k] = r.Header.Get(k)
		}
	}
	return headers
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	connectivity ports.Connectivity
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(connectivity ports.Connectivity) *HealthHandler {
	return &HealthHandler{connectivity: connectivity}
}

// Liveness reports that the process is up.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Readiness reports whether the network monitor currently sees connectivity.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if h.connectivity != nil {
		state := h.connectivity.State()
		resp.Online = state.Online
		resp.Transport = string(state.Transport)
		if !state.Online {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Version reports the service version.
func Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{
		Version: "1.0.0",
		Service: "apiward",
	})
}

// RouterConfig holds optional configuration for the router.
type RouterConfig struct {
	Metrics        *metrics.Collector
	MetricsHandler http.Handler // Optional metrics exporter handler (for /metrics endpoint)
}

// NewRouter creates the main HTTP router.
func NewRouter(proxyHandler *ProxyHandler, healthHandler *HealthHandler, logger zerolog.Logger) chi.Router {
	return NewRouterWithConfig(proxyHandler, healthHandler, logger, RouterConfig{})
}

// NewRouterWithConfig creates the main HTTP router with optional config.
func NewRouterWithConfig(proxyHandler *ProxyHandler, healthHandler *HealthHandler, logger zerolog.Logger, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	// Health endpoints
	r.Get("/apiward/health", healthHandler.Liveness)
	r.Get("/apiward/health/live", healthHandler.Liveness)
	r.Get("/apiward/health/ready", healthHandler.Readiness)

	// Metrics endpoint (prefer exporter handler, fall back to promhttp)
	if cfg.MetricsHandler != nil {
		r.Handle("/apiward/metrics", cfg.MetricsHandler)
	} else if cfg.Metrics != nil {
		r.Handle("/apiward/metrics", promhttp.Handler())
	}

	// Version and statistics
	r.Get("/apiward/version", Version)
	r.Get("/apiward/stats", proxyHandler.Stats)
	r.Post("/apiward/stats/reset", proxyHandler.ResetStats)

	// Everything else is forwarded through the governor
	r.NotFound(proxyHandler.ServeHTTP)
	r.MethodNotAllowed(proxyHandler.ServeHTTP)

	return r
}

// NewLoggingMiddleware logs each request after it completes.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			// Skip logging for the service's own endpoints
			if strings.HasPrefix(r.URL.Path, "/apiward/") {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
