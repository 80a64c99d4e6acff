// Package govern provides request/response value types for the governed
// request pipeline. These are extracted from HTTP and passed through the
// governor so the coordination logic stays free of net/http.
package govern

import "time"

// Request represents an outbound request about to be governed (value type).
type Request struct {
	Method  string
	URL     string // Absolute URL of the remote resource
	Headers map[string]string
	Body    []byte

	// TraceID correlates log events for one governed request.
	// Assigned by the governor when empty.
	TraceID string
}

// Response represents a governed response (value type).
type Response struct {
	Status  int
	Headers map[string]string
	Body    []byte

	// Metadata (for logging and callers that care)
	LatencyMs int64
	Stale     bool // Served from the offline cache instead of the transport
}

// CachedResponse is a stored copy of a successful response, kept for
// offline serving (value type).
type CachedResponse struct {
	Status   int
	Headers  map[string]string
	Body     []byte
	StoredAt time.Time
	MaxAge   time.Duration // Freshness window at store time
}

// Usable reports whether a stored copy may still be served at time now,
// tolerating staleness up to maxStale past its freshness window.
func (c CachedResponse) Usable(now time.Time, maxStale time.Duration) bool {
	return now.Before(c.StoredAt.Add(c.MaxAge + maxStale))
}

// CloneHeaders returns a copy of h. Always non-nil so callers can mutate
// the result without aliasing the original response.
func CloneHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
