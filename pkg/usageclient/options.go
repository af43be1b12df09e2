package usageclient

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Cache.
type Option interface {
	apply(*cacheConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*cacheConfig)

func (f optionFunc) apply(c *cacheConfig) { f(c) }

type cacheConfig struct {
	interval     time.Duration
	fetchTimeout time.Duration
	onUpdate     func(View)

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithInterval sets the periodic refresh interval. Default: 30s.
func WithInterval(d time.Duration) Option {
	return optionFunc(func(c *cacheConfig) {
		c.interval = d
	})
}

// WithFetchTimeout bounds a single fetch. Default: 10s.
func WithFetchTimeout(d time.Duration) Option {
	return optionFunc(func(c *cacheConfig) {
		c.fetchTimeout = d
	})
}

// WithOnUpdate registers a callback invoked after every state change.
// Calls never overlap and arrive in the order the changes were made, but may come
// from different goroutines (Invalidate notifies on the caller's goroutine).
// The callback must not block; it may call Current but not Refresh or Invalidate.
func WithOnUpdate(fn func(View)) Option {
	return optionFunc(func(c *cacheConfig) {
		c.onUpdate = fn
	})
}

// WithLogger enables structured logging for refreshes.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *cacheConfig) {
		c.logger = l
	})
}

// WithPrometheus registers cache metrics (refresh counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *cacheConfig) {
		c.metricsReg = reg
	})
}
