package domain

import "context"

type meteringTrailKey struct{}

// MeteringTrail collects metering side notes for a single HTTP request.
// The handler puts a mutable pointer into the context before calling the service;
// the service marks degraded operations; the handler reads it for response headers.
type MeteringTrail struct {
	Degraded bool
	Ops      []string
}

// NewContextWithTrail returns a context with an embedded trail collector.
func NewContextWithTrail(ctx context.Context) (context.Context, *MeteringTrail) {
	t := &MeteringTrail{}
	return context.WithValue(ctx, meteringTrailKey{}, t), t
}

// TrailFromContext extracts the trail collector from context. Returns nil if not set.
func TrailFromContext(ctx context.Context) *MeteringTrail {
	t, _ := ctx.Value(meteringTrailKey{}).(*MeteringTrail)
	return t
}

// MarkDegraded records that op completed without its counter round-trip.
func (t *MeteringTrail) MarkDegraded(op string) {
	if t != nil {
		t.Degraded = true
		t.Ops = append(t.Ops, op)
	}
}
