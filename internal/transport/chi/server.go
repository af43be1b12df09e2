package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/heritage-labs/usagemeter/internal/domain"
	"github.com/heritage-labs/usagemeter/internal/domain/category"
	"github.com/heritage-labs/usagemeter/internal/domain/subject"
	domusage "github.com/heritage-labs/usagemeter/internal/domain/usage"
	"github.com/heritage-labs/usagemeter/internal/domain/usage/decision"
	"github.com/heritage-labs/usagemeter/internal/logger"
	entitlementuc "github.com/heritage-labs/usagemeter/internal/usecase/entitlement"
	healthuc "github.com/heritage-labs/usagemeter/internal/usecase/health"
	recorderuc "github.com/heritage-labs/usagemeter/internal/usecase/recorder"
	usageuc "github.com/heritage-labs/usagemeter/internal/usecase/usage"
	"github.com/heritage-labs/usagemeter/internal/version"
)

// Error codes returned in the JSON error body.
const (
	codeBadRequest         = "bad_request"
	codeInvalidCategory    = "invalid_category"
	codeInvalidTier        = "invalid_tier"
	codeUnauthenticated    = "unauthenticated"
	codeQuotaExceeded      = "quota_exceeded"
	codeFeatureNotIncluded = "feature_not_included"
	codeStorageUnavailable = "storage_unavailable"
	codeInternalError      = "internal_error"
)

// degradedHeader marks responses produced without a counter round-trip.
const degradedHeader = "X-Metering-Degraded"

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the metering HTTP API.
type Server struct {
	checker       *entitlementuc.Service
	recorder      *recorderuc.Service
	usage         *usageuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	checker *entitlementuc.Service,
	recorder *recorderuc.Service,
	usage *usageuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		checker:  checker,
		recorder: recorder,
		usage:    usage,
		health:   health,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		upgradeRequiredHandler,
		sentinelHandler(domain.ErrUnauthenticated, http.StatusUnauthorized, codeUnauthenticated),
		sentinelHandler(domain.ErrInvalidCategory, http.StatusBadRequest, codeInvalidCategory),
		sentinelHandler(domain.ErrInvalidTier, http.StatusBadRequest, codeInvalidTier),
		sentinelHandler(domain.ErrQuotaExceeded, http.StatusPaymentRequired, codeQuotaExceeded),
		sentinelHandler(domain.ErrFeatureNotIncluded, http.StatusPaymentRequired, codeFeatureNotIncluded),
		sentinelHandler(domain.ErrStorageUnavailable, http.StatusServiceUnavailable, codeStorageUnavailable),
	}
	return s
}

// Routes mounts the API on r.
func (s *Server) Routes(r chi.Router) {
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeBadRequest, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, codeBadRequest, "method not allowed")
	})
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/v1/usage", func(r chi.Router) {
		r.Get("/", s.GetUsage)
		r.Post("/{category}/check", s.CheckUsage)
		r.Post("/{category}/record", s.RecordUsage)
	})
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type upgradeRequiredResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Used     int64  `json:"used"`
	Limit    int    `json:"limit"`
}

type snapshotEntryResponse struct {
	Category  string `json:"category"`
	Used      int64  `json:"used"`
	Limit     *int   `json:"limit"`
	Unlimited bool   `json:"unlimited"`
}

type snapshotResponse struct {
	Schema      string                  `json:"schema"`
	Tier        string                  `json:"tier"`
	PeriodStart time.Time               `json:"period_start"`
	PeriodEnd   time.Time               `json:"period_end"`
	Categories  []snapshotEntryResponse `json:"categories"`
}

type checkResponse struct {
	Allowed   bool   `json:"allowed"`
	Category  string `json:"category"`
	Used      int64  `json:"used"`
	Limit     *int   `json:"limit"`
	Unlimited bool   `json:"unlimited"`
	Degraded  bool   `json:"degraded,omitempty"`
}

type recordResponse struct {
	Count     int64 `json:"count"`
	Persisted bool  `json:"persisted"`
	Skipped   bool  `json:"skipped"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Build  string            `json:"build"`
	Checks map[string]string `json:"checks"`
}

// GetUsage handles GET /v1/usage.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	subj, ok := s.subject(w, r)
	if !ok {
		return
	}

	snap, err := s.usage.Snapshot(r.Context(), subj)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, snapshotToResponse(snap))
}

// CheckUsage handles POST /v1/usage/{category}/check.
func (s *Server) CheckUsage(w http.ResponseWriter, r *http.Request) {
	subj, ok := s.subject(w, r)
	if !ok {
		return
	}
	cat, err := category.Parse(chi.URLParam(r, "category"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	ctx, trail := domain.NewContextWithTrail(r.Context())
	d, err := s.checker.Check(ctx, subj, cat)
	setMeteringHeaders(w, trail)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if !d.Allowed() {
		s.handleDomainError(w, r, decisionError(d))
		return
	}

	writeJSON(w, http.StatusOK, checkResponse{
		Allowed:   true,
		Category:  d.Category(),
		Used:      d.Used(),
		Limit:     limitPtr(d.Limit(), d.Unlimited()),
		Unlimited: d.Unlimited(),
		Degraded:  d.Degraded(),
	})
}

// RecordUsage handles POST /v1/usage/{category}/record.
func (s *Server) RecordUsage(w http.ResponseWriter, r *http.Request) {
	subj, ok := s.subject(w, r)
	if !ok {
		return
	}
	cat, err := category.Parse(chi.URLParam(r, "category"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	ctx, trail := domain.NewContextWithTrail(r.Context())
	res, err := s.recorder.Record(ctx, subj, cat)
	setMeteringHeaders(w, trail)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, recordResponse{
		Count:     res.Count,
		Persisted: res.Persisted,
		Skipped:   res.Skipped,
	})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Build:  version.UserAgent(),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) subject(w http.ResponseWriter, r *http.Request) (subject.Subject, bool) {
	subj, ok := SubjectFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthenticated, "unauthenticated")
		return subject.Subject{}, false
	}
	return subj, true
}

func snapshotToResponse(snap domusage.Snapshot) snapshotResponse {
	entries := snap.Entries()
	cats := make([]snapshotEntryResponse, len(entries))
	for i, e := range entries {
		cats[i] = snapshotEntryResponse{
			Category:  string(e.Category),
			Used:      e.Used,
			Limit:     limitPtr(e.Limit, e.Unlimited),
			Unlimited: e.Unlimited,
		}
	}
	return snapshotResponse{
		Schema:      domusage.SchemaV1,
		Tier:        string(snap.Tier()),
		PeriodStart: snap.Period().Start,
		PeriodEnd:   snap.Period().End,
		Categories:  cats,
	}
}

// limitPtr renders an uncapped limit as JSON null.
func limitPtr(limit int, unlimited bool) *int {
	if unlimited {
		return nil
	}
	return &limit
}

func decisionError(d decision.Decision) error {
	reason := domain.ErrQuotaExceeded
	if d.Reason() == decision.ReasonFeatureNotIncluded {
		reason = domain.ErrFeatureNotIncluded
	}
	return domain.NewUpgradeRequired(d.Category(), reason, d.Used(), d.Limit())
}

func setMeteringHeaders(w http.ResponseWriter, trail *domain.MeteringTrail) {
	if trail != nil && trail.Degraded {
		w.Header().Set(degradedHeader, "true")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrUnauthenticated,
		domain.ErrInvalidCategory,
		domain.ErrInvalidTier,
		domain.ErrQuotaExceeded,
		domain.ErrFeatureNotIncluded,
		domain.ErrStorageUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// upgradeRequiredHandler renders a denial with the counters the client needs for an upgrade prompt.
func upgradeRequiredHandler(w http.ResponseWriter, err error, _ string) bool {
	var ure *domain.UpgradeRequiredError
	if !errors.As(err, &ure) {
		return false
	}
	code := codeQuotaExceeded
	if errors.Is(ure.Reason, domain.ErrFeatureNotIncluded) {
		code = codeFeatureNotIncluded
	}
	writeJSON(w, http.StatusPaymentRequired, upgradeRequiredResponse{
		Code:     code,
		Message:  ure.Error(),
		Category: ure.Category,
		Used:     ure.Used,
		Limit:    ure.Limit,
	})
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
