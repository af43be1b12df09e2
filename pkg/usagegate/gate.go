// Package usagegate wraps a metered tool run in check, work and record calls
// against the usagemeter API.
//
//	client := usageclient.NewClient(apiURL, usageclient.WithToken(tokens))
//	gate := usagegate.New(client, client, usagegate.WithInvalidator(cache.Invalidate))
//
//	res, err := gate.Run(ctx, "document", func(ctx context.Context) error {
//	    return analyzeAndSave(ctx, doc)
//	})
//	if errors.Is(err, usageclient.ErrQuotaExceeded) {
//	    // show upgrade prompt
//	}
package usagegate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/heritage-labs/usagemeter/pkg/usageclient"
)

const defaultRecordTimeout = 5 * time.Second

// Result describes a completed run.
type Result struct {
	Decision usageclient.Decision
	Record   usageclient.RecordResult
	// Recorded is false when the record call failed; the run itself still succeeded.
	Recorded bool
}

// Gate runs tool work only when the API allows it and counts it only on success.
type Gate struct {
	checker       Checker
	recorder      Recorder
	invalidate    func()
	logger        *slog.Logger
	recordTimeout time.Duration
	failClosed    bool
}

// New creates a Gate.
func New(checker Checker, recorder Recorder, opts ...Option) *Gate {
	g := &Gate{
		checker:       checker,
		recorder:      recorder,
		logger:        slog.New(slog.DiscardHandler),
		recordTimeout: defaultRecordTimeout,
	}
	for _, o := range opts {
		o.apply(g)
	}
	return g
}

// Run checks category, runs work and records one use when work succeeds.
//
// A denial is returned as *usageclient.UpgradeRequiredError and work is not run.
// When the API is unreachable or answers 5xx the run goes ahead with a degraded
// decision unless WithFailClosed was given. Failed or cancelled work is not counted.
// A failed record is logged and reported through Result.Recorded, not as an error.
func (g *Gate) Run(ctx context.Context, category string, work Work) (Result, error) {
	d, err := g.checker.Check(ctx, category)
	if err != nil {
		if g.failClosed || !unavailable(ctx, err) {
			return Result{}, fmt.Errorf("check %s: %w", category, err)
		}
		g.logger.WarnContext(ctx, "usage check unavailable, running degraded",
			slog.String("category", category),
			slog.Any("error", err),
		)
		d = usageclient.Decision{Allowed: true, Category: category, Degraded: true}
	}
	res := Result{Decision: d}

	if err := work(ctx); err != nil {
		g.logger.DebugContext(ctx, "metered work failed, not recording",
			slog.String("category", category),
			slog.Any("error", err),
		)
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("work cancelled: %w", err)
	}

	// The work is done; count it even if the caller goes away now.
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.recordTimeout)
	defer cancel()

	rec, err := g.recorder.Record(recCtx, category)
	if err != nil {
		g.logger.WarnContext(ctx, "usage record failed",
			slog.String("category", category),
			slog.Any("error", err),
		)
	} else {
		res.Record = rec
		res.Recorded = true
		if !rec.Persisted && !rec.Skipped {
			g.logger.WarnContext(ctx, "usage record not persisted",
				slog.String("category", category),
			)
		}
	}

	if g.invalidate != nil {
		g.invalidate()
	}
	return res, nil
}

// unavailable reports whether a check error means the API could not answer,
// as opposed to answering no.
func unavailable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var upgrade *usageclient.UpgradeRequiredError
	if errors.As(err, &upgrade) {
		return false
	}
	var apiErr *usageclient.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError
	}
	return true
}
