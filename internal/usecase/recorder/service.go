package recorder

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/heritage-labs/usagemeter/internal/catalog"
	"github.com/heritage-labs/usagemeter/internal/domain"
	"github.com/heritage-labs/usagemeter/internal/domain/category"
	"github.com/heritage-labs/usagemeter/internal/domain/subject"
	"github.com/heritage-labs/usagemeter/internal/metrics"
)

// DefaultStoreTimeout bounds the counter write when no timeout is configured.
const DefaultStoreTimeout = 2 * time.Second

// Result describes what happened to a single usage record.
type Result struct {
	// Count is the counter value after the increment. Zero unless Persisted.
	Count int64
	// Persisted is false when the store failed and the use went uncounted.
	Persisted bool
	// Skipped is true for subjects that bypass metering.
	Skipped bool
}

// Service counts completed tool uses.
type Service struct {
	catalog  LimitCatalog
	periods  PeriodResolver
	counters CounterIncrementer
	timeout  time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// New creates a Service. A non-positive timeout falls back to DefaultStoreTimeout.
func New(
	cat LimitCatalog, periods PeriodResolver, counters CounterIncrementer,
	timeout time.Duration, logger *zap.Logger,
) *Service {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		catalog:  cat,
		periods:  periods,
		counters: counters,
		timeout:  timeout,
		now:      time.Now,
		logger:   logger,
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Record counts one use of cat. Call it only after the tool result has been stored.
// Storage failures are logged and reported through Result, never returned and never retried.
func (s *Service) Record(ctx context.Context, subj subject.Subject, cat category.Category) (Result, error) {
	if err := subj.Validate(); err != nil {
		return Result{}, err
	}
	if !cat.IsValid() {
		return Result{}, fmt.Errorf("%w: %q", domain.ErrInvalidCategory, cat)
	}

	if subj.Tier.IsAdmin() {
		metrics.RecordsTotal.WithLabelValues(string(cat), metrics.StatusSkipped).Inc()
		return Result{Skipped: true}, nil
	}

	p := s.periods.Current(s.now(), subj.RenewalAnchor)

	// The use already happened: a client disconnect must not make it free.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	start := time.Now()
	n, err := s.counters.Increment(writeCtx, subj.UserID, cat, p)
	metrics.StoreLatency.WithLabelValues("record").Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Error("Failed to record usage",
			zap.String("user_id", subj.UserID),
			zap.String("category", string(cat)),
			zap.String("period", p.Key()),
			zap.Error(err),
		)
		metrics.StoreErrorsTotal.WithLabelValues("record").Inc()
		metrics.RecordsTotal.WithLabelValues(string(cat), metrics.StatusFailed).Inc()
		domain.TrailFromContext(ctx).MarkDegraded("record")
		return Result{}, nil
	}

	if limit := s.catalog.LimitFor(subj.Tier, cat); !catalog.IsUnlimited(limit) && n > int64(limit) {
		s.logger.Info("Usage above limit after concurrent checks",
			zap.String("user_id", subj.UserID),
			zap.String("category", string(cat)),
			zap.Int64("count", n),
			zap.Int("limit", limit),
		)
	}

	metrics.RecordsTotal.WithLabelValues(string(cat), metrics.StatusPersisted).Inc()
	return Result{Count: n, Persisted: true}, nil
}
