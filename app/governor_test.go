package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/artpar/apiward/adapters/clock"
	"github.com/artpar/apiward/adapters/idgen"
	"github.com/artpar/apiward/adapters/memory"
	"github.com/artpar/apiward/app"
	"github.com/artpar/apiward/domain/bucket"
	"github.com/artpar/apiward/domain/cachepolicy"
	"github.com/artpar/apiward/domain/govern"
	"github.com/artpar/apiward/ports"
	"github.com/rs/zerolog"
)

// stubUpstream returns a canned response or error and records calls.
type stubUpstream struct {
	resp    govern.Response
	err     error
	calls   int
	lastReq govern.Request
}

func (s *stubUpstream) Forward(ctx context.Context, req govern.Request) (govern.Response, error) {
	s.calls++
	s.lastReq = req
	if s.err != nil {
		return govern.Response{}, s.err
	}
	resp := s.resp
	resp.Headers = govern.CloneHeaders(s.resp.Headers)
	return resp, nil
}

// stubConnectivity reports a fixed state.
type stubConnectivity struct {
	online bool
}

func (s stubConnectivity) State() ports.NetworkState {
	if s.online {
		return ports.NetworkState{Online: true, Transport: ports.TransportWifi}
	}
	return ports.NetworkState{Online: false, Transport: ports.TransportNone}
}

func newTestGovernor(upstream ports.Upstream, online bool, cache ports.CacheStore) (*app.Governor, *clock.Fake) {
	fake := clock.NewFake(baseTime)
	limiter := app.NewRateLimiter(
		bucket.Config{Capacity: 60, Window: time.Minute},
		app.LimiterDeps{Clock: fake, Sleeper: fake, Logger: zerolog.Nop()},
	)
	gov := app.NewGovernor(app.GovernorDeps{
		Limiter:      limiter,
		Upstream:     upstream,
		Connectivity: stubConnectivity{online: online},
		Cache:        cache,
		Clock:        fake,
		IDGen:        idgen.NewSequential("trace-"),
		Logger:       zerolog.Nop(),
	}, cachepolicy.DefaultTable())
	return gov, fake
}

func TestHandle_RewritesCacheControl_Online(t *testing.T) {
	upstream := &stubUpstream{resp: govern.Response{
		Status:  200,
		Headers: map[string]string{"Cache-Control": "no-store", "Content-Type": "application/json"},
		Body:    []byte(`{}`),
	}}
	gov, _ := newTestGovernor(upstream, true, nil)

	tests := []struct {
		url  string
		want string
	}{
		{"https://api.example.com/nice/servant/123", "public, max-age=86400"},
		{"https://api.example.com/nice/event/456", "public, max-age=300"},
		{"https://api.example.com/nice/unknown/789", "public, max-age=600"},
	}

	for _, tt := range tests {
		resp, err := gov.Handle(context.Background(), govern.Request{Method: "GET", URL: tt.url})
		if err != nil {
			t.Fatalf("Handle(%q) error: %v", tt.url, err)
		}
		if got := resp.Headers["Cache-Control"]; got != tt.want {
			t.Errorf("Cache-Control for %q = %q, want %q", tt.url, got, tt.want)
		}
		if resp.Headers["Content-Type"] != "application/json" {
			t.Errorf("unrelated header lost for %q", tt.url)
		}
	}
}

func TestHandle_OfflineDirective(t *testing.T) {
	upstream := &stubUpstream{resp: govern.Response{Status: 200, Headers: map[string]string{}}}
	gov, _ := newTestGovernor(upstream, false, nil)

	resp, err := gov.Handle(context.Background(), govern.Request{
		Method: "GET",
		URL:    "https://api.example.com/nice/servant/123",
	})
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}

	want := "public, only-if-cached, max-stale=604800"
	if got := resp.Headers["Cache-Control"]; got != want {
		t.Errorf("Cache-Control = %q, want %q", got, want)
	}
}

func TestHandle_StripsPragma(t *testing.T) {
	upstream := &stubUpstream{resp: govern.Response{
		Status:  200,
		Headers: map[string]string{"Pragma": "no-cache"},
	}}
	gov, _ := newTestGovernor(upstream, true, nil)

	resp, _ := gov.Handle(context.Background(), govern.Request{Method: "GET", URL: "https://api.example.com/x"})

	if _, ok := resp.Headers["Pragma"]; ok {
		t.Error("Pragma not stripped from response")
	}
}

func TestHandle_AssignsTraceID(t *testing.T) {
	upstream := &stubUpstream{resp: govern.Response{Status: 200}}
	gov, _ := newTestGovernor(upstream, true, nil)

	// The governor assigns an ID when the caller did not.
	_, err := gov.Handle(context.Background(), govern.Request{Method: "GET", URL: "https://api.example.com/x"})
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if upstream.lastReq.TraceID != "trace-1" {
		t.Errorf("traceID = %q, want assigned trace-1", upstream.lastReq.TraceID)
	}

	// A caller-supplied ID is kept.
	gov.Handle(context.Background(), govern.Request{Method: "GET", URL: "https://api.example.com/x", TraceID: "mine"})
	if upstream.lastReq.TraceID != "mine" {
		t.Errorf("traceID = %q, want caller's preserved", upstream.lastReq.TraceID)
	}
}

func TestHandle_TransportErrorPropagates(t *testing.T) {
	wantErr := errors.New("connection refused")
	gov, _ := newTestGovernor(&stubUpstream{err: wantErr}, true, nil)

	_, err := gov.Handle(context.Background(), govern.Request{Method: "GET", URL: "https://api.example.com/x"})

	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want transport error untouched", err)
	}
}

func TestHandle_OnlineStoresCacheCopy(t *testing.T) {
	cache := memory.NewCacheStore()
	upstream := &stubUpstream{resp: govern.Response{Status: 200, Body: []byte("data")}}
	gov, fake := newTestGovernor(upstream, true, cache)
	ctx := context.Background()

	_, err := gov.Handle(ctx, govern.Request{Method: "GET", URL: "https://api.example.com/nice/servant/1"})
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}

	cached, _ := cache.Get(ctx, "https://api.example.com/nice/servant/1", fake.Now(), 0)
	if cached == nil {
		t.Fatal("expected response stored in offline cache")
	}
	if cached.MaxAge != cachepolicy.DefaultStaticMaxAge {
		t.Errorf("cached maxAge = %v, want static policy max-age", cached.MaxAge)
	}
}

func TestHandle_OfflineServesCachedCopy(t *testing.T) {
	cache := memory.NewCacheStore()
	upstream := &stubUpstream{err: errors.New("network unreachable")}
	gov, fake := newTestGovernor(upstream, false, cache)
	ctx := context.Background()

	cache.Put(ctx, "https://api.example.com/nice/servant/1", govern.CachedResponse{
		Status:   200,
		Headers:  map[string]string{"Content-Type": "application/json", "Pragma": "no-cache"},
		Body:     []byte("stale data"),
		StoredAt: fake.Now().Add(-2 * time.Hour),
		MaxAge:   cachepolicy.DefaultStaticMaxAge,
	})

	resp, err := gov.Handle(ctx, govern.Request{Method: "GET", URL: "https://api.example.com/nice/servant/1"})
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}

	if !resp.Stale {
		t.Error("response not marked stale")
	}
	if string(resp.Body) != "stale data" {
		t.Errorf("body = %q", resp.Body)
	}
	if upstream.calls != 0 {
		t.Errorf("upstream called %d times while a cached copy existed", upstream.calls)
	}
	if got := resp.Headers["Cache-Control"]; got != "public, only-if-cached, max-stale=604800" {
		t.Errorf("Cache-Control = %q", got)
	}
	if _, ok := resp.Headers["Pragma"]; ok {
		t.Error("Pragma not stripped from cached copy")
	}
}

func TestHandle_OfflineWithoutCopyStillForwards(t *testing.T) {
	cache := memory.NewCacheStore()
	wantErr := errors.New("network unreachable")
	upstream := &stubUpstream{err: wantErr}
	gov, _ := newTestGovernor(upstream, false, cache)

	_, err := gov.Handle(context.Background(), govern.Request{Method: "GET", URL: "https://api.example.com/nice/servant/1"})

	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want transport error", err)
	}
	if upstream.calls != 1 {
		t.Errorf("upstream calls = %d, want 1", upstream.calls)
	}
}

func TestHandle_OfflineCacheIgnoredForNonGET(t *testing.T) {
	cache := memory.NewCacheStore()
	gov, fake := newTestGovernor(&stubUpstream{resp: govern.Response{Status: 200}}, false, cache)
	ctx := context.Background()

	cache.Put(ctx, "https://api.example.com/submit", govern.CachedResponse{
		Status: 200, StoredAt: fake.Now(), MaxAge: time.Hour,
	})

	resp, err := gov.Handle(ctx, govern.Request{Method: "POST", URL: "https://api.example.com/submit"})
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if resp.Stale {
		t.Error("POST served from cache")
	}
}

func TestUpdateTable_HotSwap(t *testing.T) {
	upstream := &stubUpstream{resp: govern.Response{Status: 200}}
	gov, _ := newTestGovernor(upstream, true, nil)

	table := cachepolicy.DefaultTable()
	table.StaticKeywords = []string{"mystery"}
	gov.UpdateTable(table)

	resp, _ := gov.Handle(context.Background(), govern.Request{
		Method: "GET",
		URL:    "https://api.example.com/mystery/1",
	})
	if got := resp.Headers["Cache-Control"]; got != "public, max-age=86400" {
		t.Errorf("Cache-Control = %q, want static directive after table swap", got)
	}
}
