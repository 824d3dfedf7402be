// Package metrics records cache and request activity.
//
// Components accept a Recorder and default to Noop. NewPrometheus exposes the
// same events as Prometheus counters and histograms.
package metrics

import (
	"strings"
	"time"
)

// Recorder receives cache and transport events. Implementations must be safe
// for concurrent use.
type Recorder interface {
	// CacheHit is called when a read is served from a fresh entry.
	CacheHit(url string)
	// CacheMiss is called when a read has to fetch.
	CacheMiss(url string)
	// FetchApplied is called when a fetch result is written to an entry.
	FetchApplied(url string)
	// FetchDiscarded is called when a fetch result lost to a newer write.
	FetchDiscarded(url string)
	// Invalidated is called with the number of entries marked stale.
	Invalidated(url string, count int)
	// Request is called once per HTTP round-trip. status is 0 on transport failure.
	Request(method string, status int, duration time.Duration)
}

// Noop discards every event.
type Noop struct{}

func (Noop) CacheHit(string)                    {}
func (Noop) CacheMiss(string)                   {}
func (Noop) FetchApplied(string)                {}
func (Noop) FetchDiscarded(string)              {}
func (Noop) Invalidated(string, int)            {}
func (Noop) Request(string, int, time.Duration) {}

// ResourceLabel reduces a resource path to its first segment so by-id paths
// don't explode label cardinality: "/agents/a1" -> "agents".
func ResourceLabel(url string) string {
	trimmed := strings.TrimPrefix(url, "/")
	if i := strings.IndexAny(trimmed, "/?"); i >= 0 {
		trimmed = trimmed[:i]
	}
	if trimmed == "" {
		return "root"
	}
	return trimmed
}
