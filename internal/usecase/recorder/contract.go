package recorder

import (
	"context"
	"time"

	"github.com/heritage-labs/usagemeter/internal/domain/category"
	"github.com/heritage-labs/usagemeter/internal/domain/period"
	"github.com/heritage-labs/usagemeter/internal/domain/tier"
)

// LimitCatalog resolves the cap for a tier and category.
type LimitCatalog interface {
	LimitFor(t tier.Tier, cat category.Category) int
}

// PeriodResolver returns the usage window containing now.
type PeriodResolver interface {
	Current(now time.Time, anchor *time.Time) period.Period
}

// CounterIncrementer atomically adds one to a counter, creating it on first use.
// Implementations must be safe for concurrent use across processes.
type CounterIncrementer interface {
	Increment(ctx context.Context, userID string, cat category.Category, p period.Period) (int64, error)
}
