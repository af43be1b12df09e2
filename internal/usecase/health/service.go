package health

import (
	"context"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates the counter store is unreachable. Checks still fail open.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

const defaultPingTimeout = time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db      DBPinger
	driver  string
	timeout time.Duration
}

// New creates a Service. driver labels the database check (e.g. "redis").
func New(db DBPinger, driver string) *Service {
	return &Service{db: db, driver: driver, timeout: defaultPingTimeout}
}

// Check pings the counter store.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	name := "database"
	if s.driver != "" {
		name = "database:" + s.driver
	}
	if err := s.db.Ping(ctx); err != nil {
		checks[name] = CheckError
	} else {
		checks[name] = CheckOK
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks}
}
