package usage

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

// CounterBatchReader reads several counters of one period in a single round-trip.
// Every requested category is present in the result; missing counters read as 0.
type CounterBatchReader interface {
	ReadMany(
		ctx context.Context, userID string, cats []category.Category, p period.Period,
	) (map[category.Category]int64, error)
}
