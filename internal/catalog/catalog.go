// Package catalog holds the per-tier, per-category usage limits.
// The checker, the recorder and the query service share one Catalog so enforcement
// and displayed limits never drift apart.
package catalog

import (
	"fmt"

	"github.com/heritage-labs/usagemeter/internal/domain/category"
	"github.com/heritage-labs/usagemeter/internal/domain/tier"
)

const (
	// Unlimited marks a category without a cap.
	Unlimited = -1
	// Disabled marks a category the tier cannot use.
	Disabled = 0
)

// defaults is the built-in limit table (uses per period).
var defaults = map[tier.Tier]map[category.Category]int{
	tier.Free: {
		category.Document:    2,
		category.DNA:         Disabled,
		category.Tree:        1,
		category.Research:    3,
		category.Photo:       2,
		category.Translation: Disabled,
	},
	tier.Explorer: {
		category.Document:    20,
		category.DNA:         2,
		category.Tree:        10,
		category.Research:    30,
		category.Photo:       20,
		category.Translation: 10,
	},
	tier.Researcher: {
		category.Document:    100,
		category.DNA:         10,
		category.Tree:        50,
		category.Research:    150,
		category.Photo:       100,
		category.Translation: 50,
	},
	tier.Professional: {
		category.Document:    Unlimited,
		category.DNA:         50,
		category.Tree:        Unlimited,
		category.Research:    Unlimited,
		category.Photo:       Unlimited,
		category.Translation: Unlimited,
	},
}

// Catalog is an immutable limit table.
type Catalog struct {
	limits map[tier.Tier]map[category.Category]int
}

// Default returns the built-in table.
func Default() *Catalog {
	return &Catalog{limits: clone(defaults)}
}

// New returns the built-in table with per-cell overrides applied.
// Overrides are keyed by tier name, then category name.
func New(overrides map[string]map[string]int) (*Catalog, error) {
	limits := clone(defaults)
	for tn, cats := range overrides {
		t, err := tier.Parse(tn)
		if err != nil {
			return nil, fmt.Errorf("limits: %w", err)
		}
		if t.IsAdmin() {
			return nil, fmt.Errorf("limits: admin tier is always unlimited")
		}
		for cn, v := range cats {
			c, err := category.Parse(cn)
			if err != nil {
				return nil, fmt.Errorf("limits.%s: %w", tn, err)
			}
			if v < Unlimited {
				return nil, fmt.Errorf("limits.%s.%s must be >= -1, got %d", tn, cn, v)
			}
			limits[t][c] = v
		}
	}
	return &Catalog{limits: limits}, nil
}

// LimitFor returns the cap for a tier and category: a non-negative count or Unlimited.
// Admin is always Unlimited. Combinations outside the table are Disabled.
func (c *Catalog) LimitFor(t tier.Tier, cat category.Category) int {
	if t.IsAdmin() {
		return Unlimited
	}
	row, ok := c.limits[t]
	if !ok {
		return Disabled
	}
	limit, ok := row[cat]
	if !ok {
		return Disabled
	}
	return limit
}

// IsUnlimited checks if a limit value represents no cap.
func IsUnlimited(limit int) bool {
	return limit < 0
}

func clone(src map[tier.Tier]map[category.Category]int) map[tier.Tier]map[category.Category]int {
	out := make(map[tier.Tier]map[category.Category]int, len(src))
	for t, row := range src {
		r := make(map[category.Category]int, len(row))
		for c, v := range row {
			r[c] = v
		}
		out[t] = r
	}
	return out
}
