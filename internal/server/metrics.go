package server

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	requests   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	cacheHits  prometheus.Counter
	cacheMiss  prometheus.Counter
	queryFails *prometheus.CounterVec
	products   prometheus.Gauge
}

// newMetrics registers the server's collectors on reg. Each Server owns its
// registry so several servers can live in one process.
func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecorecipes_http_requests_total",
				Help: "Number of HTTP requests by route and status code.",
			},
			[]string{"route", "code"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ecorecipes_http_request_duration_seconds",
				Help:    "Time taken to serve HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		cacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ecorecipes_cost_cache_hits_total",
				Help: "Number of cost queries answered from the memo cache.",
			},
		),
		cacheMiss: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ecorecipes_cost_cache_misses_total",
				Help: "Number of cost queries computed by the resolver.",
			},
		),
		queryFails: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecorecipes_query_errors_total",
				Help: "Number of failed recipe queries by error kind.",
			},
			[]string{"kind"},
		),
		products: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ecorecipes_catalog_products",
				Help: "Number of products in the served catalog.",
			},
		),
	}
	reg.MustRegister(m.requests, m.duration, m.cacheHits, m.cacheMiss, m.queryFails, m.products)
	return m
}
