package usage

import (
	"github.com/heritage-labs/usagemeter/internal/domain/category"
	"github.com/heritage-labs/usagemeter/internal/domain/period"
	"github.com/heritage-labs/usagemeter/internal/domain/tier"
)

// SchemaV1 tags the snapshot wire format.
const SchemaV1 = "usage_snapshot/v1"

// Entry is the read model for one category.
type Entry struct {
	Category  category.Category
	Used      int64
	Limit     int // -1 when Unlimited
	Unlimited bool
}

// Snapshot aggregates every category for one subject and period.
type Snapshot struct {
	tier    tier.Tier
	period  period.Period
	entries []Entry
}

// NewSnapshot creates a snapshot. Entries are kept in the given order.
func NewSnapshot(t tier.Tier, p period.Period, entries []Entry) Snapshot {
	return Snapshot{tier: t, period: p, entries: entries}
}

// Tier returns the subject's tier.
func (s Snapshot) Tier() tier.Tier { return s.tier }

// Period returns the window the counters belong to.
func (s Snapshot) Period() period.Period { return s.period }

// Entries returns per-category usage in display order.
func (s Snapshot) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Entry returns the entry for a category.
func (s Snapshot) Entry(c category.Category) (Entry, bool) {
	for _, e := range s.entries {
		if e.Category == c {
			return e, true
		}
	}
	return Entry{}, false
}
