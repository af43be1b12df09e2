// Package subject describes who a metering call is made for.
package subject

import (
	"fmt"
	"time"

	"github.com/heritage-labs/usagemeter/internal/domain"
	"github.com/heritage-labs/usagemeter/internal/domain/tier"
)

// Subject is the explicit identity passed into every check, record and snapshot call.
// It is produced by the auth hand-off and never read from ambient state.
type Subject struct {
	UserID        string
	Tier          tier.Tier
	RenewalAnchor *time.Time
	Anonymous     bool
}

// New builds a subject. Anonymous subjects are always metered as free tier.
func New(userID string, t tier.Tier, anchor *time.Time, anonymous bool) Subject {
	if anonymous {
		t = tier.Free
	}
	return Subject{UserID: userID, Tier: t, RenewalAnchor: anchor, Anonymous: anonymous}
}

// Validate fails loudly on a missing identity or unknown tier.
func (s Subject) Validate() error {
	if s.UserID == "" {
		return fmt.Errorf("%w: empty user id", domain.ErrUnauthenticated)
	}
	if !s.Tier.IsValid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidTier, s.Tier)
	}
	return nil
}
