package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrQuotaExceeded signals that the period quota for a category is used up.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrFeatureNotIncluded signals that the tier has no access to a category (limit 0).
	ErrFeatureNotIncluded = errors.New("feature not included")
	// ErrStorageUnavailable signals a transient counter store failure or timeout.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrInvalidCategory signals an unknown tool category.
	ErrInvalidCategory = errors.New("invalid category")
	// ErrInvalidTier signals an unknown subscription tier.
	ErrInvalidTier = errors.New("invalid tier")
	// ErrUnauthenticated signals a request without a usable identity.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// UpgradeRequiredError is the structured denial returned to callers.
// It unwraps to ErrQuotaExceeded or ErrFeatureNotIncluded.
type UpgradeRequiredError struct {
	Category string
	Reason   error
	Used     int64
	Limit    int
}

func (e *UpgradeRequiredError) Error() string {
	if errors.Is(e.Reason, ErrFeatureNotIncluded) {
		return fmt.Sprintf("%s: %s is not included in the current plan", e.Reason.Error(), e.Category)
	}
	return fmt.Sprintf("%s: %s used %d of %d", e.Reason.Error(), e.Category, e.Used, e.Limit)
}

func (e *UpgradeRequiredError) Unwrap() error { return e.Reason }

// NewUpgradeRequired creates an upgrade-required error for the given reason sentinel.
func NewUpgradeRequired(category string, reason error, used int64, limit int) error {
	return &UpgradeRequiredError{Category: category, Reason: reason, Used: used, Limit: limit}
}
