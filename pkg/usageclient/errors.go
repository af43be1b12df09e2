package usageclient

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSnapshot signals a payload that does not match SchemaV1.
	ErrInvalidSnapshot = errors.New("usageclient: invalid snapshot")
	// ErrQuotaExceeded matches a denial because the period's limit is used up.
	ErrQuotaExceeded = errors.New("usageclient: quota exceeded")
	// ErrFeatureNotIncluded matches a denial because the tier does not include the category.
	ErrFeatureNotIncluded = errors.New("usageclient: feature not included")

	errMalformed = errors.New("usageclient: malformed response")
)

// Denial codes sent with a 402.
const (
	CodeQuotaExceeded      = "quota_exceeded"
	CodeFeatureNotIncluded = "feature_not_included"
)

// APIError is a non-200 answer from the usage API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("usageclient: http %d", e.Status)
	}
	return fmt.Sprintf("usageclient: http %d %s: %s", e.Status, e.Code, e.Message)
}

// UpgradeRequiredError is a 402 denial carrying the counters for an upgrade prompt.
type UpgradeRequiredError struct {
	Code     string
	Message  string
	Category string
	Used     int64
	Limit    int
}

func (e *UpgradeRequiredError) Error() string {
	return fmt.Sprintf("usageclient: upgrade required for %s (%d/%d): %s", e.Category, e.Used, e.Limit, e.Code)
}

// Is matches the denial against ErrQuotaExceeded or ErrFeatureNotIncluded.
func (e *UpgradeRequiredError) Is(target error) bool {
	switch target {
	case ErrQuotaExceeded:
		return e.Code == CodeQuotaExceeded
	case ErrFeatureNotIncluded:
		return e.Code == CodeFeatureNotIncluded
	}
	return false
}
