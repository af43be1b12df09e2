package tier

import (
	"fmt"
	"strings"

	"github.com/heritage-labs/usagemeter/internal/domain"
)

// Tier is a subscription level.
type Tier string

// Subscription tiers, cheapest first.
const (
	Free         Tier = "free"
	Explorer     Tier = "explorer"
	Researcher   Tier = "researcher"
	Professional Tier = "professional"
	// Admin bypasses every counter.
	Admin Tier = "admin"
)

var all = []Tier{Free, Explorer, Researcher, Professional, Admin}

// All returns every tier in ascending order.
func All() []Tier {
	out := make([]Tier, len(all))
	copy(out, all)
	return out
}

// IsValid checks if the tier is one of the known values.
func (t Tier) IsValid() bool {
	for _, v := range all {
		if v == t {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the tier bypasses metering.
func (t Tier) IsAdmin() bool { return t == Admin }

// Parse converts a case-insensitive tier name. Unknown names are an error, never defaulted.
func Parse(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidTier, s)
	}
	return t, nil
}
