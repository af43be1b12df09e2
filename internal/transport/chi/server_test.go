package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/heritage-labs/usagemeter/internal/catalog"
	"github.com/heritage-labs/usagemeter/internal/domain/category"
	"github.com/heritage-labs/usagemeter/internal/domain/period"
	domusage "github.com/heritage-labs/usagemeter/internal/domain/usage"
	"github.com/heritage-labs/usagemeter/internal/repository/counter"
	entitlementuc "github.com/heritage-labs/usagemeter/internal/usecase/entitlement"
	healthuc "github.com/heritage-labs/usagemeter/internal/usecase/health"
	recorderuc "github.com/heritage-labs/usagemeter/internal/usecase/recorder"
	usageuc "github.com/heritage-labs/usagemeter/internal/usecase/usage"
)

// --- Fakes ---

type brokenStore struct{}

var errBroken = errors.New("connection refused")

func (brokenStore) Read(context.Context, string, category.Category, period.Period) (int64, error) {
	return 0, errBroken
}

func (brokenStore) ReadMany(context.Context, string, []category.Category, period.Period) (map[category.Category]int64, error) {
	return nil, errBroken
}

func (brokenStore) Increment(context.Context, string, category.Category, period.Period) (int64, error) {
	return 0, errBroken
}

func (brokenStore) Ping(context.Context) error { return errBroken }

type counterStore interface {
	entitlementuc.CounterReader
	recorderuc.CounterIncrementer
	usageuc.CounterBatchReader
	healthuc.DBPinger
}

func newTestRouter(store counterStore) http.Handler {
	cat := catalog.Default()
	res := period.NewResolver(period.PolicyAnchor)
	log := zap.NewNop()

	srv := NewServer(
		entitlementuc.New(cat, res, store, time.Second, log),
		recorderuc.New(cat, res, store, time.Second, log),
		usageuc.New(cat, res, store, time.Second, log),
		healthuc.New(store, "memory"),
		log,
	)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(NewTokenVerifier(testSecret, "", "")))
	srv.Routes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, http.NoBody)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// --- Tests ---

func TestCheckRecordFlow_FreeDocument(t *testing.T) {
	h := newTestRouter(counter.NewMemory())
	tok := signToken(t, testSecret, userClaims("u1", "free"))

	for i := range 2 {
		rr := do(t, h, "POST", "/v1/usage/document/check", tok)
		if rr.Code != http.StatusOK {
			t.Fatalf("check %d: got %d: %s", i+1, rr.Code, rr.Body.String())
		}
		rr = do(t, h, "POST", "/v1/usage/document/record", tok)
		if rr.Code != http.StatusOK {
			t.Fatalf("record %d: got %d", i+1, rr.Code)
		}
		var rec recordResponse
		if err := json.NewDecoder(rr.Body).Decode(&rec); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !rec.Persisted || rec.Count != int64(i+1) {
			t.Errorf("record %d: unexpected %+v", i+1, rec)
		}
	}

	rr := do(t, h, "POST", "/v1/usage/document/check", tok)
	if rr.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rr.Code)
	}
	var up upgradeRequiredResponse
	if err := json.NewDecoder(rr.Body).Decode(&up); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if up.Code != codeQuotaExceeded || up.Category != "document" || up.Used != 2 || up.Limit != 2 {
		t.Errorf("unexpected upgrade body %+v", up)
	}
}

func TestCheck_FeatureNotIncluded_402(t *testing.T) {
	h := newTestRouter(counter.NewMemory())
	tok := signToken(t, testSecret, userClaims("u1", "free"))

	rr := do(t, h, "POST", "/v1/usage/dna/check", tok)
	if rr.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rr.Code)
	}
	var up upgradeRequiredResponse
	_ = json.NewDecoder(rr.Body).Decode(&up)
	if up.Code != codeFeatureNotIncluded || up.Limit != 0 {
		t.Errorf("unexpected upgrade body %+v", up)
	}
}

func TestCheck_InvalidCategory_400(t *testing.T) {
	h := newTestRouter(counter.NewMemory())
	tok := signToken(t, testSecret, userClaims("u1", "free"))

	rr := do(t, h, "POST", "/v1/usage/video/check", tok)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if errResp := decodeError(t, rr); errResp.Code != codeInvalidCategory {
		t.Errorf("expected %q, got %q", codeInvalidCategory, errResp.Code)
	}
}

func TestCheck_Unlimited_NullLimit(t *testing.T) {
	h := newTestRouter(counter.NewMemory())
	tok := signToken(t, testSecret, userClaims("u1", "professional"))

	rr := do(t, h, "POST", "/v1/usage/photo/check", tok)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]any
	_ = json.NewDecoder(rr.Body).Decode(&body)
	if body["limit"] != nil || body["unlimited"] != true {
		t.Errorf("expected null limit and unlimited=true, got %v", body)
	}
}

func TestGetUsage_Snapshot(t *testing.T) {
	store := counter.NewMemory()
	h := newTestRouter(store)
	tok := signToken(t, testSecret, userClaims("u1", "explorer"))

	do(t, h, "POST", "/v1/usage/tree/record", tok)

	rr := do(t, h, "GET", "/v1/usage", tok)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var snap snapshotResponse
	if err := json.NewDecoder(rr.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Schema != domusage.SchemaV1 || snap.Tier != "explorer" {
		t.Errorf("unexpected header fields %+v", snap)
	}
	if !snap.PeriodEnd.After(snap.PeriodStart) {
		t.Errorf("bad period %v..%v", snap.PeriodStart, snap.PeriodEnd)
	}
	if len(snap.Categories) != len(category.All()) {
		t.Fatalf("expected %d categories, got %d", len(category.All()), len(snap.Categories))
	}
	for i, c := range category.All() {
		if snap.Categories[i].Category != string(c) {
			t.Errorf("entry %d: expected %q, got %q", i, c, snap.Categories[i].Category)
		}
	}
	tree := snap.Categories[2]
	if tree.Used != 1 || tree.Limit == nil || *tree.Limit != 10 {
		t.Errorf("unexpected tree entry %+v", tree)
	}
}

func TestGetUsage_StorageUnavailable_503(t *testing.T) {
	h := newTestRouter(brokenStore{})
	tok := signToken(t, testSecret, userClaims("u1", "free"))

	rr := do(t, h, "GET", "/v1/usage", tok)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if errResp := decodeError(t, rr); errResp.Code != codeStorageUnavailable {
		t.Errorf("expected %q, got %q", codeStorageUnavailable, errResp.Code)
	}
}

func TestCheckAndRecord_Degraded(t *testing.T) {
	h := newTestRouter(brokenStore{})
	tok := signToken(t, testSecret, userClaims("u1", "free"))

	rr := do(t, h, "POST", "/v1/usage/document/check", tok)
	if rr.Code != http.StatusOK {
		t.Fatalf("check must fail open, got %d", rr.Code)
	}
	if rr.Header().Get(degradedHeader) != "true" {
		t.Error("expected degraded header on check")
	}

	rr = do(t, h, "POST", "/v1/usage/document/record", tok)
	if rr.Code != http.StatusOK {
		t.Fatalf("record must not fail the request, got %d", rr.Code)
	}
	var rec recordResponse
	_ = json.NewDecoder(rr.Body).Decode(&rec)
	if rec.Persisted {
		t.Error("expected persisted=false")
	}
	if rr.Header().Get(degradedHeader) != "true" {
		t.Error("expected degraded header on record")
	}
}

func TestRecord_AdminSkipped(t *testing.T) {
	h := newTestRouter(counter.NewMemory())
	tok := signToken(t, testSecret, userClaims("root", "admin"))

	rr := do(t, h, "POST", "/v1/usage/dna/record", tok)
	var rec recordResponse
	_ = json.NewDecoder(rr.Body).Decode(&rec)
	if rr.Code != http.StatusOK || !rec.Skipped {
		t.Errorf("expected skipped, got %d %+v", rr.Code, rec)
	}
}

func TestUnauthenticated_401(t *testing.T) {
	h := newTestRouter(counter.NewMemory())
	rr := do(t, h, "GET", "/v1/usage", "")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
}

func TestHealth(t *testing.T) {
	rr := do(t, newTestRouter(counter.NewMemory()), "GET", "/health", "")
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
	var body healthResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if body.Checks["database:memory"] != "ok" || !strings.HasPrefix(body.Build, "usagemeter/") {
		t.Errorf("unexpected health body %+v", body)
	}

	rr = do(t, newTestRouter(brokenStore{}), "GET", "/health", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rr.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestRouter(counter.NewMemory())
	tok := signToken(t, testSecret, userClaims("u1", "free"))
	rr := do(t, h, "GET", "/v1/usage/document/check", tok)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rr.Code)
	}
}
