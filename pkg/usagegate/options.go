package usagegate

import (
	"log/slog"
	"time"
)

// Option configures a Gate.
type Option interface {
	apply(*Gate)
}

type optionFunc func(*Gate)

func (f optionFunc) apply(g *Gate) { f(g) }

// WithInvalidator registers a callback run after every successful tool run,
// typically (*usageclient.Cache).Invalidate.
func WithInvalidator(fn func()) Option {
	return optionFunc(func(g *Gate) {
		g.invalidate = fn
	})
}

// WithLogger enables structured logging. Pass nil to disable (default).
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	})
}

// WithRecordTimeout bounds the record call made after work succeeds. Default: 5s.
func WithRecordTimeout(d time.Duration) Option {
	return optionFunc(func(g *Gate) {
		if d > 0 {
			g.recordTimeout = d
		}
	})
}

// WithFailClosed makes an unreachable API block tool runs instead of letting them run degraded.
func WithFailClosed() Option {
	return optionFunc(func(g *Gate) {
		g.failClosed = true
	})
}
