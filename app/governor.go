package app

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/artpar/apiward/adapters/metrics"
	"github.com/artpar/apiward/domain/cachepolicy"
	"github.com/artpar/apiward/domain/govern"
	"github.com/artpar/apiward/ports"
	"github.com/rs/zerolog"
)

// Governor mediates every outbound request: token admission first, then
// the transport call, then a Cache-Control rewrite based on endpoint
// classification and the current connectivity reading.
//
// When the platform is offline, GET requests are answered from the
// offline cache when a usable copy exists; otherwise the request still
// goes to the transport and its failure propagates untouched - transport
// errors are not this layer's to interpret.
type Governor struct {
	limiter      *RateLimiter
	upstream     ports.Upstream
	connectivity ports.Connectivity
	cache        ports.CacheStore // optional
	clock        ports.Clock
	idGen        ports.IDGenerator
	logger       zerolog.Logger
	metrics      *metrics.Collector

	// Hot-reloadable classification table.
	table atomic.Pointer[cachepolicy.Table]
}

// GovernorDeps contains dependencies for Governor.
type GovernorDeps struct {
	Limiter      *RateLimiter
	Upstream     ports.Upstream
	Connectivity ports.Connectivity
	Cache        ports.CacheStore // optional
	Clock        ports.Clock
	IDGen        ports.IDGenerator
	Logger       zerolog.Logger
	Metrics      *metrics.Collector // optional
}

// NewGovernor creates a request governor.
func NewGovernor(deps GovernorDeps, table cachepolicy.Table) *Governor {
	g := &Governor{
		limiter:      deps.Limiter,
		upstream:     deps.Upstream,
		connectivity: deps.Connectivity,
		cache:        deps.Cache,
		clock:        deps.Clock,
		idGen:        deps.IDGen,
		logger:       deps.Logger.With().Str("component", "governor").Logger(),
		metrics:      deps.Metrics,
	}
	g.table.Store(&table)
	return g
}

// UpdateTable swaps the classification table. Safe to call while
// requests are in flight.
func (g *Governor) UpdateTable(table cachepolicy.Table) {
	g.table.Store(&table)
	g.logger.Info().
		Strs("static", table.StaticKeywords).
		Strs("dynamic", table.DynamicKeywords).
		Msg("cache policy updated")
}

// Table returns the current classification table.
func (g *Governor) Table() cachepolicy.Table {
	return *g.table.Load()
}

// Limiter exposes the rate limiter for statistics reporting.
func (g *Governor) Limiter() *RateLimiter {
	return g.limiter
}

// Handle governs one outbound request.
func (g *Governor) Handle(ctx context.Context, req govern.Request) (govern.Response, error) {
	if req.TraceID == "" && g.idGen != nil {
		req.TraceID = g.idGen.New()
	}

	waited := g.limiter.Acquire(ctx)

	table := g.Table()
	class := cachepolicy.Classify(table, req.URL)
	policy := table.PolicyFor(class)

	state := g.connectivity.State()
	if g.metrics != nil {
		if state.Online {
			g.metrics.ConnectivityOnline.Set(1)
		} else {
			g.metrics.ConnectivityOnline.Set(0)
		}
	}

	if !state.Online {
		if resp, ok := g.serveCached(ctx, req, policy); ok {
			g.observe(req, class, state, resp, waited)
			return resp, nil
		}
	}

	start := g.clock.Now()
	resp, err := g.upstream.Forward(ctx, req)
	if err != nil {
		return govern.Response{}, err
	}
	if g.metrics != nil {
		g.metrics.UpstreamDuration.WithLabelValues(req.Method).
			Observe(g.clock.Now().Sub(start).Seconds())
	}

	headers := govern.CloneHeaders(resp.Headers)
	delete(headers, "Pragma")
	headers["Cache-Control"] = cachepolicy.Directive(policy, state.Online)
	resp.Headers = headers

	if state.Online && g.cache != nil && req.Method == http.MethodGet && resp.Status == http.StatusOK {
		cached := govern.CachedResponse{
			Status:   resp.Status,
			Headers:  govern.CloneHeaders(resp.Headers),
			Body:     resp.Body,
			StoredAt: g.clock.Now(),
			MaxAge:   policy.MaxAge,
		}
		if err := g.cache.Put(ctx, req.URL, cached); err != nil {
			g.logger.Warn().Err(err).Str("trace_id", req.TraceID).Msg("offline cache write failed")
		}
	}

	g.observe(req, class, state, resp, waited)
	return resp, nil
}

// serveCached answers a GET from the offline cache when a copy within
// the policy's staleness ceiling exists.
func (g *Governor) serveCached(ctx context.Context, req govern.Request, policy cachepolicy.Policy) (govern.Response, bool) {
	if g.cache == nil || req.Method != http.MethodGet {
		return govern.Response{}, false
	}

	cached, err := g.cache.Get(ctx, req.URL, g.clock.Now(), policy.MaxStale)
	if err != nil {
		g.logger.Warn().Err(err).Str("trace_id", req.TraceID).Msg("offline cache read failed")
		return govern.Response{}, false
	}
	if cached == nil {
		if g.metrics != nil {
			g.metrics.CacheMisses.Inc()
		}
		return govern.Response{}, false
	}

	if g.metrics != nil {
		g.metrics.CacheHits.Inc()
	}

	headers := govern.CloneHeaders(cached.Headers)
	delete(headers, "Pragma")
	headers["Cache-Control"] = cachepolicy.Directive(policy, false)

	return govern.Response{
		Status:  cached.Status,
		Headers: headers,
		Body:    cached.Body,
		Stale:   true,
	}, true
}

func (g *Governor) observe(req govern.Request, class cachepolicy.Class, state ports.NetworkState, resp govern.Response, waited time.Duration) {
	connectivity := "online"
	if !state.Online {
		connectivity = "offline"
	}
	if g.metrics != nil {
		g.metrics.RequestsTotal.WithLabelValues(string(class), connectivity).Inc()
	}

	g.logger.Debug().
		Str("trace_id", req.TraceID).
		Str("method", req.Method).
		Str("url", req.URL).
		Str("class", string(class)).
		Str("connectivity", connectivity).
		Str("transport", string(state.Transport)).
		Int("status", resp.Status).
		Bool("stale", resp.Stale).
		Float64("waited_s", waited.Seconds()).
		Msg("request governed")
}
