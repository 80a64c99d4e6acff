package http_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/apiward/adapters/clock"
	apihttp "github.com/artpar/apiward/adapters/http"
	"github.com/artpar/apiward/adapters/idgen"
	"github.com/artpar/apiward/adapters/memory"
	"github.com/artpar/apiward/app"
	"github.com/artpar/apiward/domain/bucket"
	"github.com/artpar/apiward/domain/cachepolicy"
	"github.com/artpar/apiward/ports"
)

type stubConnectivity struct {
	state ports.NetworkState
}

func (s *stubConnectivity) State() ports.NetworkState { return s.state }

func newTestGovernor(t *testing.T, upstreamURL string, online bool) *app.Governor {
	t.Helper()

	client, err := apihttp.NewClient(apihttp.ClientConfig{BaseURL: upstreamURL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	realClock := clock.Real{}
	limiter := app.NewRateLimiter(
		bucket.Config{Capacity: 100, Window: time.Hour},
		app.LimiterDeps{Clock: realClock, Sleeper: realClock, Logger: zerolog.Nop()},
	)

	state := ports.NetworkState{Online: online}
	if online {
		state.Transport = ports.TransportWired
	} else {
		state.Transport = ports.TransportNone
	}

	return app.NewGovernor(app.GovernorDeps{
		Limiter:      limiter,
		Upstream:     client,
		Connectivity: &stubConnectivity{state: state},
		Cache:        memory.NewCacheStore(),
		Clock:        realClock,
		IDGen:        idgen.NewSequential("req"),
		Logger:       zerolog.Nop(),
	}, cachepolicy.DefaultTable())
}

func newTestRouter(t *testing.T, upstreamURL string, online bool) (http.Handler, *app.Governor) {
	t.Helper()
	gov := newTestGovernor(t, upstreamURL, online)
	proxyHandler := apihttp.NewProxyHandler(gov, zerolog.Nop())
	healthHandler := apihttp.NewHealthHandler(&stubConnectivity{state: ports.NetworkState{
		Online:    online,
		Transport: ports.TransportWired,
	}})
	return apihttp.NewRouter(proxyHandler, healthHandler, zerolog.Nop()), gov
}

func TestProxy_RewritesCacheControl(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		w.Write([]byte(`{"id":4}`))
	}))
	defer upstream.Close()

	router, _ := newTestRouter(t, upstream.URL, true)

	req := httptest.NewRequest("GET", "/nice/servant/4?lang=en", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Cache-Control"); got != "public, max-age=86400" {
		t.Errorf("Cache-Control = %q, want public, max-age=86400", got)
	}
	if rec.Header().Get("Pragma") != "" {
		t.Errorf("Pragma should be stripped")
	}
	if rec.Body.String() != `{"id":4}` {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestProxy_ForwardsQueryAndMethod(t *testing.T) {
	var gotMethod, gotQuery string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusAccepted)
	}))
	defer upstream.Close()

	router, _ := newTestRouter(t, upstream.URL, true)

	req := httptest.NewRequest("POST", "/nice/event/list?page=2", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if gotMethod != "POST" {
		t.Errorf("method = %q, want POST", gotMethod)
	}
	if gotQuery != "page=2" {
		t.Errorf("query = %q, want page=2", gotQuery)
	}
}

func TestProxy_UpstreamErrorReturns502(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	upstream.Close() // unreachable

	router, _ := newTestRouter(t, upstream.URL, true)

	req := httptest.NewRequest("GET", "/nice/servant/4", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	router, _ := newTestRouter(t, upstream.URL, true)

	// Drive one request through so the window counter moves.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/nice/item/1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("proxy status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/apiward/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}

	var stats apihttp.StatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Capacity != 100 {
		t.Errorf("capacity = %d, want 100", stats.Capacity)
	}
	if stats.TokensAvailable != 99 {
		t.Errorf("tokens = %d, want 99", stats.TokensAvailable)
	}
	if stats.WindowRequests != 1 {
		t.Errorf("window requests = %d, want 1", stats.WindowRequests)
	}
	if stats.Throttling {
		t.Errorf("should not be throttling")
	}
	if !strings.Contains(stats.Summary, "99/100 tokens") {
		t.Errorf("summary = %q", stats.Summary)
	}
}

func TestStatsReset(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	router, gov := newTestRouter(t, upstream.URL, true)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/nice/item/1", nil))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/apiward/stats/reset", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("reset status = %d, want 204", rec.Code)
	}

	stats := gov.Limiter().Statistics()
	if stats.WindowRequests != 0 {
		t.Errorf("window requests after reset = %d, want 0", stats.WindowRequests)
	}
}

func TestHealthEndpoints(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer upstream.Close()

	router, _ := newTestRouter(t, upstream.URL, true)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/apiward/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("liveness status = %d", rec.Code)
	}
	var health apihttp.HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("status = %q, want ok", health.Status)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/apiward/health/ready", nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode readiness: %v", err)
	}
	if !health.Online {
		t.Errorf("readiness should report online")
	}
	if health.Transport != string(ports.TransportWired) {
		t.Errorf("transport = %q, want wired", health.Transport)
	}
}

func TestReadiness_Degraded(t *testing.T) {
	healthHandler := apihttp.NewHealthHandler(&stubConnectivity{state: ports.NetworkState{
		Online:    false,
		Transport: ports.TransportNone,
	}})

	rec := httptest.NewRecorder()
	healthHandler.Readiness(rec, httptest.NewRequest("GET", "/apiward/health/ready", nil))

	var health apihttp.HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode readiness: %v", err)
	}
	if health.Status != "degraded" {
		t.Errorf("status = %q, want degraded", health.Status)
	}
}

func TestVersionEndpoint(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer upstream.Close()

	router, _ := newTestRouter(t, upstream.URL, true)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/apiward/version", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var version apihttp.VersionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &version); err != nil {
		t.Fatalf("decode version: %v", err)
	}
	if version.Service != "apiward" {
		t.Errorf("service = %q, want apiward", version.Service)
	}
}
