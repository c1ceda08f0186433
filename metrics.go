package main

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the application's Prometheus collectors on a private
// registry.
type Metrics struct {
	Registry        *prometheus.Registry
	SyncTotal       *prometheus.CounterVec
	TweetsInserted  prometheus.Counter
	RequestDuration *prometheus.HistogramVec
}

func NewMetrics(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()

	syncTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: serviceName,
			Name:      "sync_total",
			Help:      "Total number of add-or-update runs by result",
		},
		[]string{"result"},
	)

	tweetsInserted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: serviceName,
			Name:      "tweets_inserted_total",
			Help:      "Total number of tweets stored",
		},
	)

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	registry.MustRegister(syncTotal, tweetsInserted, requestDuration)

	return &Metrics{
		Registry:        registry,
		SyncTotal:       syncTotal,
		TweetsInserted:  tweetsInserted,
		RequestDuration: requestDuration,
	}
}
