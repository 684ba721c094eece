package kv

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestHistograms = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "kv_request_duration_seconds",
		Help:    "request durations for the kv Store",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	},
	[]string{"type", "operation"})

var requestFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "kv_request_failures_total",
		Help: "failed transactions of the kv Store",
	},
	[]string{"type", "operation"})

// StoreMetricsWrapper wraps any Store with metrics
type StoreMetricsWrapper struct {
	Store     Store
	StoreType string
}

func (s *StoreMetricsWrapper) observe(op string, start time.Time, err error) {
	requestHistograms.WithLabelValues(s.StoreType, op).Observe(time.Since(start).Seconds())
	if err != nil {
		requestFailures.WithLabelValues(s.StoreType, op).Inc()
	}
}

func (s *StoreMetricsWrapper) View(ctx context.Context, fn func(tx Tx) error) error {
	start := time.Now()
	err := s.Store.View(ctx, fn)
	s.observe("View", start, err)
	return err
}

func (s *StoreMetricsWrapper) Update(ctx context.Context, fn func(tx Tx) error) error {
	start := time.Now()
	err := s.Store.Update(ctx, fn)
	s.observe("Update", start, err)
	return err
}

func (s *StoreMetricsWrapper) Close() {
	s.Store.Close()
}
