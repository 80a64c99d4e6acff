// Package cachepolicy provides pure endpoint classification and cache
// directive selection.
//
// Endpoints are tiered by how often their data changes: reference data
// (static) can be cached for a day, live data (dynamic) only minutes.
// A single fixed TTL would either over-fetch static data or serve stale
// dynamic data. When the client is offline every tier falls back to an
// only-if-cached directive with an extended staleness ceiling.
package cachepolicy

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Class identifies which cache tier an endpoint belongs to.
type Class string

const (
	ClassStatic  Class = "static"
	ClassDynamic Class = "dynamic"
	ClassDefault Class = "default"
)

// Policy holds the cache directives for one tier (value type).
type Policy struct {
	MaxAge   time.Duration // Online freshness window
	MaxStale time.Duration // Offline staleness ceiling
}

// Table is the immutable endpoint classification configuration.
// Construct once at startup; safe for concurrent readers.
type Table struct {
	StaticKeywords  []string
	DynamicKeywords []string

	Static  Policy
	Dynamic Policy
	Default Policy
}

// Default tier values. The default online max-age is twice the dynamic
// one: unclassified endpoints are assumed to change, just not as fast
// as known-live ones.
const (
	DefaultStaticMaxAge   = 24 * time.Hour
	DefaultDynamicMaxAge  = 5 * time.Minute
	DefaultDefaultMaxAge  = 2 * DefaultDynamicMaxAge
	DefaultOfflineMaxStale = 7 * 24 * time.Hour
)

// DefaultTable returns the built-in classification table.
func DefaultTable() Table {
	return Table{
		StaticKeywords:  []string{"servant", "equip", "item", "skill", "quest"},
		DynamicKeywords: []string{"event", "shop", "news"},
		Static:          Policy{MaxAge: DefaultStaticMaxAge, MaxStale: DefaultOfflineMaxStale},
		Dynamic:         Policy{MaxAge: DefaultDynamicMaxAge, MaxStale: DefaultOfflineMaxStale},
		Default:         Policy{MaxAge: DefaultDefaultMaxAge, MaxStale: DefaultOfflineMaxStale},
	}
}

// Classify determines which tier a URL belongs to.
// This is a PURE function.
//
// A keyword matches when it equals a path segment exactly, or when the
// final segment ends with it. Substring matches elsewhere in the path do
// not count. Unparseable URLs fall through to the default tier.
func Classify(t Table, rawURL string) Class {
	segments := pathSegments(rawURL)
	if len(segments) == 0 {
		return ClassDefault
	}

	if matchesAny(segments, t.StaticKeywords) {
		return ClassStatic
	}
	if matchesAny(segments, t.DynamicKeywords) {
		return ClassDynamic
	}
	return ClassDefault
}

// PolicyFor returns the policy record for a tier.
func (t Table) PolicyFor(class Class) Policy {
	switch class {
	case ClassStatic:
		return t.Static
	case ClassDynamic:
		return t.Dynamic
	default:
		return t.Default
	}
}

// Resolve returns the Cache-Control directive for a URL given the
// current connectivity. This is a PURE function.
//
// Online:  "public, max-age=<seconds>"
// Offline: "public, only-if-cached, max-stale=<seconds>"
func Resolve(t Table, rawURL string, online bool) string {
	policy := t.PolicyFor(Classify(t, rawURL))
	return Directive(policy, online)
}

// Directive renders the Cache-Control value for a policy.
func Directive(p Policy, online bool) string {
	if online {
		return fmt.Sprintf("public, max-age=%d", int(p.MaxAge.Seconds()))
	}
	return fmt.Sprintf("public, only-if-cached, max-stale=%d", int(p.MaxStale.Seconds()))
}

func pathSegments(rawURL string) []string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}

	var segments []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			segments = append(segments, strings.ToLower(seg))
		}
	}
	return segments
}

func matchesAny(segments, keywords []string) bool {
	last := segments[len(segments)-1]
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		if kw == "" {
			continue
		}
		for _, seg := range segments {
			if seg == kw {
				return true
			}
		}
		if strings.HasSuffix(last, kw) {
			return true
		}
	}
	return false
}
