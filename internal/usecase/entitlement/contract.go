package entitlement

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

// CounterReader reads a single usage counter. Missing counters read as 0.
type CounterReader interface {
	Read(ctx context.Context, userID string, cat category.Category, p period.Period) (int64, error)
}
