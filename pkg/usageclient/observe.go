package usageclient

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// cacheMetrics holds prometheus metrics registered for the cache.
type cacheMetrics struct {
	refreshes *prometheus.CounterVec
	duration  prometheus.Histogram
}

func newCacheMetrics(reg prometheus.Registerer) (*cacheMetrics, error) {
	m := &cacheMetrics{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "usagemeter",
			Subsystem: "client",
			Name:      "refreshes_total",
			Help:      "Snapshot refreshes by result.",
		}, []string{"result"}), // "ok" / "error" / "ignored"
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "usagemeter",
			Subsystem: "client",
			Name:      "refresh_duration_seconds",
			Help:      "Snapshot fetch duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if err := registerOrReuse(reg, &m.refreshes); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

// registerOrReuse registers a collector or reuses an existing one.
func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	if err := reg.Register(*c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			existing, ok := are.ExistingCollector.(T)
			if !ok {
				return fmt.Errorf("usageclient: metric already registered with incompatible type: %T", are.ExistingCollector)
			}
			*c = existing
			return nil
		}
		return fmt.Errorf("usageclient: register metric: %w", err)
	}
	return nil
}

// observer provides logging and metrics for cache refreshes.
type observer struct {
	logger  *slog.Logger
	metrics *cacheMetrics
}

func newObserver(logger *slog.Logger, reg prometheus.Registerer) (*observer, error) {
	var m *cacheMetrics
	if reg != nil {
		var err error
		m, err = newCacheMetrics(reg)
		if err != nil {
			return nil, err
		}
	}
	return &observer{logger: logger, metrics: m}, nil
}

func (o *observer) refreshed(start time.Time, accepted bool, err error) {
	if o == nil {
		return
	}
	dur := time.Since(start)

	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case !accepted:
		result = "ignored"
	}

	if o.metrics != nil {
		o.metrics.refreshes.WithLabelValues(result).Inc()
		o.metrics.duration.Observe(dur.Seconds())
	}

	if o.logger != nil {
		switch result {
		case "error":
			o.logger.Warn("usage refresh failed, keeping last snapshot",
				"duration", dur,
				"error", err,
			)
		case "ignored":
			o.logger.Debug("usage refresh returned an older period, ignored",
				"duration", dur,
			)
		default:
			o.logger.Debug("usage refresh completed",
				"duration", dur,
			)
		}
	}
}
