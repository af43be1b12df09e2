package usage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/heritage-labs/usagemeter/internal/catalog"
	"github.com/heritage-labs/usagemeter/internal/domain"
	"github.com/heritage-labs/usagemeter/internal/domain/category"
	"github.com/heritage-labs/usagemeter/internal/domain/subject"
	domusage "github.com/heritage-labs/usagemeter/internal/domain/usage"
	"github.com/heritage-labs/usagemeter/internal/metrics"
)

// DefaultStoreTimeout bounds the batched read when no timeout is configured.
const DefaultStoreTimeout = 2 * time.Second

// Service builds usage snapshots for display.
type Service struct {
	catalog  LimitCatalog
	periods  PeriodResolver
	counters CounterBatchReader
	timeout  time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// New creates a Service. A non-positive timeout falls back to DefaultStoreTimeout.
func New(
	cat LimitCatalog, periods PeriodResolver, counters CounterBatchReader,
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

// Snapshot returns one entry per category in display order. Limits follow the same
// rules as the entitlement check. It never records usage.
func (s *Service) Snapshot(ctx context.Context, subj subject.Subject) (domusage.Snapshot, error) {
	if err := subj.Validate(); err != nil {
		return domusage.Snapshot{}, err
	}

	p := s.periods.Current(s.now(), subj.RenewalAnchor)
	cats := category.All()
	entries := make([]domusage.Entry, len(cats))

	var toRead []category.Category
	for i, c := range cats {
		limit := s.catalog.LimitFor(subj.Tier, c)
		entries[i] = domusage.Entry{Category: c, Limit: limit, Unlimited: catalog.IsUnlimited(limit)}
		if limit > 0 {
			toRead = append(toRead, c)
		}
	}

	if len(toRead) > 0 {
		readCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		start := time.Now()
		used, err := s.counters.ReadMany(readCtx, subj.UserID, toRead, p)
		metrics.StoreLatency.WithLabelValues("snapshot").Observe(time.Since(start).Seconds())
		if err != nil {
			s.logger.Warn("Usage snapshot unavailable",
				zap.String("user_id", subj.UserID),
				zap.String("period", p.Key()),
				zap.Error(err),
			)
			metrics.StoreErrorsTotal.WithLabelValues("snapshot").Inc()
			return domusage.Snapshot{}, fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
		}
		for i := range entries {
			entries[i].Used = used[entries[i].Category]
		}
	}

	return domusage.NewSnapshot(subj.Tier, p, entries), nil
}
