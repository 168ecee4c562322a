package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upscaled_requests_total",
			Help: "Upscale requests by final backend and outcome.",
		},
		[]string{"backend", "outcome"},
	)

	attemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upscaled_backend_attempts_total",
			Help: "Individual backend attempts by backend and outcome.",
		},
		[]string{"backend", "outcome"},
	)

	fallbackDepth = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "upscaled_fallback_depth",
			Help:    "Number of failed attempts before a request succeeded.",
			Buckets: []float64{0, 1, 2, 3},
		},
	)

	memoryInFlightMB = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "upscaled_memory_inflight_mb",
			Help: "Sum of estimated memory for attempts currently executing.",
		},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal)
	prometheus.MustRegister(attemptsTotal)
	prometheus.MustRegister(fallbackDepth)
	prometheus.MustRegister(memoryInFlightMB)
}
