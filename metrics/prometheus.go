package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "resource_sync"

// Prometheus implements Recorder with client_golang collectors.
type Prometheus struct {
	cacheLookups    *prometheus.CounterVec
	fetches         *prometheus.CounterVec
	invalidations   *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewPrometheus creates the collectors and registers them with reg.
// A nil reg registers with prometheus.DefaultRegisterer.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	p := &Prometheus{
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache reads by resource and result (hit or miss).",
		}, []string{"resource", "result"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_results_total",
			Help:      "Fetch results by resource and outcome (applied or discarded).",
		}, []string{"resource", "outcome"}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalidated_entries_total",
			Help:      "Cache entries marked stale by resource.",
		}, []string{"resource"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	collectors := []prometheus.Collector{
		p.cacheLookups,
		p.fetches,
		p.invalidations,
		p.requests,
		p.requestDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func (p *Prometheus) CacheHit(url string) {
	p.cacheLookups.WithLabelValues(ResourceLabel(url), "hit").Inc()
}

func (p *Prometheus) CacheMiss(url string) {
	p.cacheLookups.WithLabelValues(ResourceLabel(url), "miss").Inc()
}

func (p *Prometheus) FetchApplied(url string) {
	p.fetches.WithLabelValues(ResourceLabel(url), "applied").Inc()
}

func (p *Prometheus) FetchDiscarded(url string) {
	p.fetches.WithLabelValues(ResourceLabel(url), "discarded").Inc()
}

func (p *Prometheus) Invalidated(url string, count int) {
	if count <= 0 {
		return
	}
	p.invalidations.WithLabelValues(ResourceLabel(url)).Add(float64(count))
}

func (p *Prometheus) Request(method string, status int, duration time.Duration) {
	p.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	p.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}
