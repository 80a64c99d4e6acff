// Package bucket provides pure token bucket arithmetic.
// All functions are deterministic - same input always produces same output.
// The blocking acquire loop and its statistics live in app; this package
// only knows how tokens drain and regenerate.
package bucket

import "time"

// State represents the current state of a token bucket (value type).
type State struct {
	Tokens     int       // Tokens currently available, 0..Capacity
	LastRefill time.Time // When tokens were last added
}

// Config holds token bucket configuration (value type).
type Config struct {
	Capacity int           // Maximum tokens (= requests per window)
	Window   time.Duration // Refill window duration
}

// MinRetryInterval is the floor on the polling interval used while
// waiting for a token, to avoid busy-polling with large capacities.
const MinRetryInterval = 100 * time.Millisecond

// NewState returns a full bucket.
func NewState(cfg Config, now time.Time) State {
	return State{Tokens: cfg.Capacity, LastRefill: now}
}

// Refill regenerates tokens based on elapsed time.
// This is a PURE function - no side effects, deterministic.
//
// A full window elapsed means a full refill. A partial window adds
// floor(elapsed/window * capacity) tokens. LastRefill advances only when
// tokens were actually added, so sub-token elapses keep accumulating
// instead of being lost to spurious timestamp updates.
func Refill(state State, cfg Config, now time.Time) State {
	elapsed := now.Sub(state.LastRefill)
	if elapsed <= 0 || cfg.Window <= 0 {
		return state
	}

	if elapsed >= cfg.Window {
		state.Tokens = cfg.Capacity
		state.LastRefill = now
		return state
	}

	add := int(float64(cfg.Capacity) * (float64(elapsed) / float64(cfg.Window)))
	if add <= 0 {
		return state
	}

	state.Tokens += add
	if state.Tokens > cfg.Capacity {
		state.Tokens = cfg.Capacity
	}
	state.LastRefill = now
	return state
}

// Take removes one token if available.
// This is a PURE function. Returns the new state and whether a token
// was taken.
func Take(state State) (State, bool) {
	if state.Tokens <= 0 {
		return state, false
	}
	state.Tokens--
	return state, true
}

// RetryInterval returns how long a waiter should sleep before rechecking:
// the time one token theoretically needs to regenerate, floored at
// MinRetryInterval.
func RetryInterval(cfg Config) time.Duration {
	if cfg.Capacity <= 0 {
		return MinRetryInterval
	}
	interval := cfg.Window / time.Duration(cfg.Capacity)
	if interval < MinRetryInterval {
		return MinRetryInterval
	}
	return interval
}
