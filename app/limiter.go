// Package app provides application services that orchestrate domain logic.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/artpar/apiward/adapters/metrics"
	"github.com/artpar/apiward/domain/bucket"
	"github.com/artpar/apiward/ports"
	"github.com/rs/zerolog"
)

// RateLimiter admits requests against a token bucket with bounded waiting.
//
// Acquire never fails: a caller that exhausts the bounded wait proceeds
// anyway and the event is recorded for observability. The remote API's
// own throttling is the authoritative backstop; a local conservative
// estimate of the quota should never itself cause a visible failure.
type RateLimiter struct {
	clock   ports.Clock
	sleeper ports.Sleeper
	logger  zerolog.Logger
	metrics *metrics.Collector

	mu    sync.Mutex
	cfg   bucket.Config
	state bucket.State
	retry time.Duration

	// Statistics counters share mu with the bucket state so a snapshot
	// can never observe a blocked count without its matching wait time.
	blocked     int64
	waitTotal   time.Duration
	timeouts    int64
	windowCount int64
	windowStart time.Time
}

// LimiterDeps contains dependencies for RateLimiter.
type LimiterDeps struct {
	Clock   ports.Clock
	Sleeper ports.Sleeper
	Logger  zerolog.Logger
	Metrics *metrics.Collector // optional
}

// NewRateLimiter creates a rate limiter with a full bucket.
func NewRateLimiter(cfg bucket.Config, deps LimiterDeps) *RateLimiter {
	now := deps.Clock.Now()
	l := &RateLimiter{
		clock:       deps.Clock,
		sleeper:     deps.Sleeper,
		logger:      deps.Logger.With().Str("component", "ratelimit").Logger(),
		metrics:     deps.Metrics,
		cfg:         cfg,
		state:       bucket.NewState(cfg, now),
		retry:       bucket.RetryInterval(cfg),
		windowStart: now,
	}
	l.publishGauges()
	return l
}

// Acquire blocks until a token is available, the cumulative wait exceeds
// the window duration, or ctx is cancelled - whichever comes first. It
// returns the time spent waiting (zero when a token was immediately
// available). Cancellation is treated like a timeout: stop waiting and
// let the request proceed.
//
// No fairness is guaranteed among waiters; any of them may take the next
// freed token. Contention is expected to be light at real traffic levels.
func (l *RateLimiter) Acquire(ctx context.Context) time.Duration {
	start := l.clock.Now()
	now := start

	for {
		waited := now.Sub(start)

		l.mu.Lock()
		before := l.state.Tokens
		l.state = bucket.Refill(l.state, l.cfg, now)
		if l.state.Tokens > before {
			l.logger.Trace().
				Int("tokens", l.state.Tokens).
				Int("added", l.state.Tokens-before).
				Msg("tokens refilled")
		}

		var ok bool
		l.state, ok = bucket.Take(l.state)
		if ok {
			l.noteAdmission(now, waited, false)
			l.mu.Unlock()

			if waited > 0 {
				l.logger.Debug().
					Dur("waited", waited).
					Msg("token acquired after wait")
			}
			return waited
		}
		l.mu.Unlock()

		if waited >= l.cfg.Window {
			l.recordOverride(now, waited, "timeout")
			return waited
		}

		if !l.sleeper.Sleep(ctx, l.retry) {
			now = l.clock.Now()
			l.recordOverride(now, now.Sub(start), "cancelled")
			return now.Sub(start)
		}
		now = l.clock.Now()
	}
}

// IsThrottling reports whether the bucket is empty at the instant of the
// call, after applying any pending refill.
func (l *RateLimiter) IsThrottling() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = bucket.Refill(l.state, l.cfg, l.clock.Now())
	return l.state.Tokens <= 0
}

// Statistics is a read-only snapshot of limiter counters (value type).
type Statistics struct {
	Capacity        int
	AvailableTokens int
	TotalBlocked    int64
	TotalWait       time.Duration
	AverageWait     time.Duration
	Timeouts        int64
	WindowRequests  int64
	WindowStart     time.Time
}

// Statistics returns a consistent snapshot of the limiter counters.
func (l *RateLimiter) Statistics() Statistics {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.state = bucket.Refill(l.state, l.cfg, l.clock.Now())

	s := Statistics{
		Capacity:        l.cfg.Capacity,
		AvailableTokens: l.state.Tokens,
		TotalBlocked:    l.blocked,
		TotalWait:       l.waitTotal,
		Timeouts:        l.timeouts,
		WindowRequests:  l.windowCount,
		WindowStart:     l.windowStart,
	}
	if l.blocked > 0 {
		s.AverageWait = l.waitTotal / time.Duration(l.blocked)
	}
	return s
}

// StatsSummary returns a human-readable multi-line report.
func (l *RateLimiter) StatsSummary() string {
	s := l.Statistics()

	var b strings.Builder
	fmt.Fprintf(&b, "Rate limiter: %d/%d tokens available\n", s.AvailableTokens, s.Capacity)
	fmt.Fprintf(&b, "Current window: %d requests since %s\n", s.WindowRequests, s.WindowStart.Format(time.RFC3339))
	fmt.Fprintf(&b, "Blocked acquisitions: %d (total wait %s, average %s)\n", s.TotalBlocked, s.TotalWait, s.AverageWait)
	fmt.Fprintf(&b, "Timeouts: %d", s.Timeouts)
	return b.String()
}

// ResetStatistics zeroes the blocked, wait-time, timeout, and window
// counters. Bucket state (available tokens) is untouched; this is for
// periodic reporting, not for resetting admission.
func (l *RateLimiter) ResetStatistics() {
	l.mu.Lock()
	l.blocked = 0
	l.waitTotal = 0
	l.timeouts = 0
	l.windowCount = 0
	l.windowStart = l.clock.Now()
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.WindowRequests.Set(0)
	}
	l.logger.Info().Msg("statistics reset")
}

// UpdateConfig applies a new capacity and window, preserving statistics
// counters. Available tokens are clamped to the new capacity.
func (l *RateLimiter) UpdateConfig(cfg bucket.Config) {
	l.mu.Lock()
	l.cfg = cfg
	l.retry = bucket.RetryInterval(cfg)
	if l.state.Tokens > cfg.Capacity {
		l.state.Tokens = cfg.Capacity
	}
	l.mu.Unlock()

	l.publishGauges()
	l.logger.Info().
		Int("capacity", cfg.Capacity).
		Dur("window", cfg.Window).
		Msg("rate limit updated")
}

// noteAdmission updates statistics for an admitted request. Caller holds mu.
func (l *RateLimiter) noteAdmission(now time.Time, waited time.Duration, timedOut bool) {
	if now.Sub(l.windowStart) >= l.cfg.Window {
		l.windowCount = 0
		l.windowStart = now
	}
	l.windowCount++

	if waited > 0 {
		l.blocked++
		l.waitTotal += waited
	}
	if timedOut {
		l.timeouts++
	}

	if l.metrics != nil {
		l.metrics.TokensAvailable.Set(float64(l.state.Tokens))
		l.metrics.WindowRequests.Set(float64(l.windowCount))
		if waited > 0 {
			l.metrics.AcquireWaitSeconds.Observe(waited.Seconds())
		}
		if timedOut {
			l.metrics.AcquireTimeouts.Inc()
		}
	}
}

// recordOverride accounts for a caller that stopped waiting (timeout or
// cancellation) and proceeds without a token.
func (l *RateLimiter) recordOverride(now time.Time, waited time.Duration, reason string) {
	l.mu.Lock()
	l.noteAdmission(now, waited, true)
	l.mu.Unlock()

	l.logger.Warn().
		Dur("waited", waited).
		Str("reason", reason).
		Msg("rate limiter wait exhausted, proceeding")
}

func (l *RateLimiter) publishGauges() {
	if l.metrics == nil {
		return
	}
	l.mu.Lock()
	tokens := l.state.Tokens
	window := l.windowCount
	l.mu.Unlock()
	l.metrics.TokensAvailable.Set(float64(tokens))
	l.metrics.WindowRequests.Set(float64(window))
}
