package chi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/heritage-labs/usagemeter/internal/domain"
	"github.com/heritage-labs/usagemeter/internal/domain/subject"
	"github.com/heritage-labs/usagemeter/internal/domain/tier"
	"github.com/heritage-labs/usagemeter/internal/logger"
)

// exemptPaths are routes that bypass authentication (health, metrics).
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// Claims is the identity hand-off issued by the auth service.
type Claims struct {
	jwt.RegisteredClaims
	Tier          string `json:"tier"`
	RenewalAnchor int64  `json:"renewal_anchor,omitempty"` // unix seconds
	Anonymous     bool   `json:"anon,omitempty"`
}

// TokenVerifier validates HS256 hand-off tokens and turns them into subjects.
type TokenVerifier struct {
	secret   []byte
	issuer   string
	audience string
}

// NewTokenVerifier creates a verifier. issuer and audience are checked only when non-empty.
func NewTokenVerifier(secret, issuer, audience string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: issuer, audience: audience}
}

// Verify parses the token and returns the subject it names.
func (v *TokenVerifier) Verify(token string) (subject.Subject, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30 * time.Second),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return subject.Subject{}, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, err)
	}

	t := tier.Free
	if !claims.Anonymous {
		t, err = tier.Parse(claims.Tier)
		if err != nil {
			return subject.Subject{}, err
		}
	}

	var anchor *time.Time
	if claims.RenewalAnchor > 0 {
		a := time.Unix(claims.RenewalAnchor, 0).UTC()
		anchor = &a
	}

	subj := subject.New(claims.Subject, t, anchor, claims.Anonymous)
	if err := subj.Validate(); err != nil {
		return subject.Subject{}, err
	}
	return subj, nil
}

type subjectKey struct{}

// ContextWithSubject stores the authenticated subject in the context.
func ContextWithSubject(ctx context.Context, s subject.Subject) context.Context {
	return context.WithValue(ctx, subjectKey{}, s)
}

// SubjectFromContext returns the authenticated subject, if any.
func SubjectFromContext(ctx context.Context) (subject.Subject, bool) {
	s, ok := ctx.Value(subjectKey{}).(subject.Subject)
	return s, ok
}

// AuthMiddleware returns a middleware that verifies Bearer hand-off tokens.
func AuthMiddleware(v *TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Exempt paths
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				writeError(w, http.StatusUnauthorized, codeUnauthenticated, "missing authorization header")
				return
			}

			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(auth, bearerPrefix) {
				writeError(w, http.StatusUnauthorized, codeUnauthenticated, "authorization header must use Bearer scheme")
				return
			}

			subj, err := v.Verify(auth[len(bearerPrefix):])
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, domain.ErrInvalidTier) {
					msg = "invalid tier claim"
				}
				writeError(w, http.StatusUnauthorized, codeUnauthenticated, msg)
				return
			}

			ctx := logger.ContextWithSubject(r.Context(), subj.UserID, string(subj.Tier))
			next.ServeHTTP(w, r.WithContext(ContextWithSubject(ctx, subj)))
		})
	}
}
