// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"

	"github.com/artpar/apiward/domain/govern"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// Sleeper abstracts waiting so blocked acquisitions can be tested without
// real time passing. Implementations return false when ctx was cancelled
// before the full duration elapsed.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) bool
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Network Ports
// -----------------------------------------------------------------------------

// Transport identifies the link type behind the active network path.
type Transport string

const (
	TransportWired    Transport = "wired"
	TransportWifi     Transport = "wifi"
	TransportCellular Transport = "cellular"
	TransportNone     Transport = "none"
)

// NetworkState is a point-in-time connectivity reading (value type).
type NetworkState struct {
	Online    bool
	Transport Transport
}

// Connectivity queries the platform for the current network state.
type Connectivity interface {
	// State returns a fresh reading on every call; implementations must
	// not cache, since connectivity can change between calls. Any query
	// failure maps to an offline reading rather than an error.
	State() NetworkState
}

// Upstream is the transport that performs the actual remote call.
type Upstream interface {
	// Forward sends the request to the remote API and returns its response.
	Forward(ctx context.Context, req govern.Request) (govern.Response, error)
}

// -----------------------------------------------------------------------------
// Storage Ports
// -----------------------------------------------------------------------------

// CacheStore persists successful responses for offline serving.
type CacheStore interface {
	// Get retrieves a stored copy usable at time now, tolerating staleness
	// up to maxStale past its freshness window. Returns nil when no usable
	// copy exists.
	Get(ctx context.Context, key string, now time.Time, maxStale time.Duration) (*govern.CachedResponse, error)

	// Put stores a response copy, replacing any previous one for the key.
	Put(ctx context.Context, key string, resp govern.CachedResponse) error

	// Purge removes copies whose freshness window ended before cutoff.
	// Returns the number of copies removed.
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}
