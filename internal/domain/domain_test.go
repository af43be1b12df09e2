package domain

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestUpgradeRequiredError_Unwrap(t *testing.T) {
	err := NewUpgradeRequired("document", ErrQuotaExceeded, 2, 2)

	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if errors.Is(err, ErrFeatureNotIncluded) {
		t.Error("quota denial must not match ErrFeatureNotIncluded")
	}

	var ure *UpgradeRequiredError
	if !errors.As(err, &ure) {
		t.Fatalf("expected *UpgradeRequiredError, got %T", err)
	}
	if ure.Used != 2 || ure.Limit != 2 {
		t.Errorf("unexpected used/limit %d/%d", ure.Used, ure.Limit)
	}
}

func TestUpgradeRequiredError_Messages(t *testing.T) {
	q := NewUpgradeRequired("document", ErrQuotaExceeded, 3, 2).Error()
	if !strings.Contains(q, "used 3 of 2") {
		t.Errorf("unexpected quota message %q", q)
	}

	f := NewUpgradeRequired("dna", ErrFeatureNotIncluded, 0, 0).Error()
	if !strings.Contains(f, "not included") {
		t.Errorf("unexpected feature message %q", f)
	}
}

func TestMeteringTrail(t *testing.T) {
	ctx, trail := NewContextWithTrail(context.Background())

	TrailFromContext(ctx).MarkDegraded("check")
	if !trail.Degraded {
		t.Fatal("expected trail to be degraded")
	}
	if len(trail.Ops) != 1 || trail.Ops[0] != "check" {
		t.Errorf("unexpected ops %v", trail.Ops)
	}
}

func TestMeteringTrail_NilSafe(t *testing.T) {
	// no trail in context
	TrailFromContext(context.Background()).MarkDegraded("record")
}
