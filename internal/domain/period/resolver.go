package period

import (
	"fmt"
	"time"
)

// Policy selects how windows are derived.
type Policy string

const (
	// PolicyCalendar always uses calendar months.
	PolicyCalendar Policy = "calendar"
	// PolicyAnchor uses the subscription renewal anchor when known, calendar months otherwise.
	PolicyAnchor Policy = "anchor"
)

// ParsePolicy validates a policy name. Empty selects PolicyAnchor.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyAnchor:
		return PolicyAnchor, nil
	case PolicyCalendar:
		return PolicyCalendar, nil
	default:
		return "", fmt.Errorf("unknown period policy %q", s)
	}
}

// Resolver computes the current usage window. Same inputs always give the same window.
type Resolver struct {
	policy Policy
}

// NewResolver creates a resolver for the given policy.
func NewResolver(p Policy) Resolver {
	if p == "" {
		p = PolicyAnchor
	}
	return Resolver{policy: p}
}

// Policy returns the configured policy.
func (r Resolver) Policy() Policy { return r.policy }

// Current returns the window containing now.
func (r Resolver) Current(now time.Time, anchor *time.Time) Period {
	if r.policy == PolicyAnchor && anchor != nil && !anchor.IsZero() {
		return Anchored(now, *anchor)
	}
	return CalendarMonth(now)
}
