package decision

// Reason explains a denial.
type Reason string

// Denial reasons.
const (
	ReasonNone               Reason = ""
	ReasonQuotaExceeded      Reason = "quota_exceeded"
	ReasonFeatureNotIncluded Reason = "feature_not_included"
)

// Decision is the result of an entitlement check. It is recomputed on every call.
type Decision struct {
	category  string
	allowed   bool
	used      int64
	limit     int
	unlimited bool
	reason    Reason
	degraded  bool
}

// Allow creates an allowing decision for a capped category.
func Allow(category string, used int64, limit int) Decision {
	return Decision{category: category, allowed: true, used: used, limit: limit}
}

// AllowUnlimited creates an allowing decision for an uncapped category.
func AllowUnlimited(category string) Decision {
	return Decision{category: category, allowed: true, limit: -1, unlimited: true}
}

// Deny creates a denying decision.
func Deny(category string, used int64, limit int, reason Reason) Decision {
	return Decision{category: category, used: used, limit: limit, reason: reason}
}

// FailOpen creates an allowing decision taken without a counter read.
func FailOpen(category string, limit int) Decision {
	return Decision{category: category, allowed: true, limit: limit, degraded: true}
}

// Category returns the checked category.
func (d Decision) Category() string { return d.category }

// Allowed reports whether the action may proceed.
func (d Decision) Allowed() bool { return d.allowed }

// Used returns the counter value observed by the check.
func (d Decision) Used() int64 { return d.used }

// Limit returns the tier limit (-1 when unlimited).
func (d Decision) Limit() int { return d.limit }

// Unlimited reports whether the category has no cap.
func (d Decision) Unlimited() bool { return d.unlimited }

// Reason returns the denial reason, empty when allowed.
func (d Decision) Reason() Reason { return d.reason }

// Degraded reports whether the decision was taken without a successful counter read.
func (d Decision) Degraded() bool { return d.degraded }
