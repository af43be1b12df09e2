package entitlement

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/heritage-labs/usagemeter/internal/catalog"
	"github.com/heritage-labs/usagemeter/internal/domain"
	"github.com/heritage-labs/usagemeter/internal/domain/category"
	"github.com/heritage-labs/usagemeter/internal/domain/subject"
	"github.com/heritage-labs/usagemeter/internal/domain/usage/decision"
	"github.com/heritage-labs/usagemeter/internal/metrics"
)

// DefaultStoreTimeout bounds the counter read when no timeout is configured.
const DefaultStoreTimeout = 2 * time.Second

// Service decides whether a subject may use a category in the current period.
type Service struct {
	catalog  LimitCatalog
	periods  PeriodResolver
	counters CounterReader
	timeout  time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// New creates a Service. A non-positive timeout falls back to DefaultStoreTimeout.
func New(
	cat LimitCatalog, periods PeriodResolver, counters CounterReader,
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

// Check returns the decision for one category. The error is non-nil only for caller
// errors (missing identity, unknown tier or category); storage trouble fails open.
func (s *Service) Check(ctx context.Context, subj subject.Subject, cat category.Category) (decision.Decision, error) {
	if err := subj.Validate(); err != nil {
		return decision.Decision{}, err
	}
	if !cat.IsValid() {
		return decision.Decision{}, fmt.Errorf("%w: %q", domain.ErrInvalidCategory, cat)
	}

	if subj.Tier.IsAdmin() {
		metrics.ChecksTotal.WithLabelValues(string(cat), string(subj.Tier), metrics.OutcomeBypass).Inc()
		return decision.AllowUnlimited(string(cat)), nil
	}

	limit := s.catalog.LimitFor(subj.Tier, cat)
	if catalog.IsUnlimited(limit) {
		metrics.ChecksTotal.WithLabelValues(string(cat), string(subj.Tier), metrics.OutcomeAllowed).Inc()
		return decision.AllowUnlimited(string(cat)), nil
	}
	if limit == catalog.Disabled {
		metrics.ChecksTotal.WithLabelValues(string(cat), string(subj.Tier), metrics.OutcomeDenied).Inc()
		return decision.Deny(string(cat), 0, limit, decision.ReasonFeatureNotIncluded), nil
	}

	p := s.periods.Current(s.now(), subj.RenewalAnchor)

	readCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	used, err := s.counters.Read(readCtx, subj.UserID, cat, p)
	metrics.StoreLatency.WithLabelValues("check").Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Warn("Usage counter unavailable, allowing request",
			zap.String("user_id", subj.UserID),
			zap.String("category", string(cat)),
			zap.String("period", p.Key()),
			zap.Error(err),
		)
		metrics.StoreErrorsTotal.WithLabelValues("check").Inc()
		metrics.ChecksTotal.WithLabelValues(string(cat), string(subj.Tier), metrics.OutcomeDegraded).Inc()
		domain.TrailFromContext(ctx).MarkDegraded("check")
		return decision.FailOpen(string(cat), limit), nil
	}

	if used >= int64(limit) {
		metrics.ChecksTotal.WithLabelValues(string(cat), string(subj.Tier), metrics.OutcomeDenied).Inc()
		return decision.Deny(string(cat), used, limit, decision.ReasonQuotaExceeded), nil
	}

	metrics.ChecksTotal.WithLabelValues(string(cat), string(subj.Tier), metrics.OutcomeAllowed).Inc()
	return decision.Allow(string(cat), used, limit), nil
}
