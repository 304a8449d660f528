package v1

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"

	"github.com/tinoosan/budgetledger/internal/errs"
	"github.com/tinoosan/budgetledger/internal/ledger"
)

// SubjectHeader carries the caller's external auth id when no JWT secret is configured.
const SubjectHeader = "X-Auth-Subject"

// AuthConfig selects how the caller's subject is established. With a Secret,
// an HS256 bearer JWT is required and its sub claim is the subject; without
// one the SubjectHeader is trusted as-is (local development behind a proxy).
type AuthConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

type ctxKey string

const ctxKeyUser ctxKey = "user"

func userFrom(ctx context.Context) ledger.User {
	u, _ := ctx.Value(ctxKeyUser).(ledger.User)
	return u
}

// authenticate resolves the caller to a ledger user before any handler runs.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := s.auth.subject(r, time.Now())
		if err != nil {
			writeError(w, errs.ErrUnauthorized)
			return
		}
		if s.deps.Identity == nil {
			writeError(w, errs.ErrUnauthorized)
			return
		}
		user, err := s.deps.Identity.Resolve(r.Context(), subject)
		if err != nil {
			if !errors.Is(err, errs.ErrUnauthorized) {
				s.log.Warn("identity resolution failed", "err", err)
			}
			writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyUser, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (c AuthConfig) subject(r *http.Request, now time.Time) (string, error) {
	if c.Secret == "" {
		sub := strings.TrimSpace(r.Header.Get(SubjectHeader))
		if sub == "" {
			return "", errs.ErrUnauthorized
		}
		return sub, nil
	}
	raw, ok := parseBearerToken(r)
	if !ok {
		return "", errs.ErrUnauthorized
	}
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return "", err
	}
	var claims jwt.Claims
	if err := tok.Claims([]byte(c.Secret), &claims); err != nil {
		return "", err
	}
	if err := claims.ValidateWithLeeway(jwt.Expected{Time: now}, 0); err != nil {
		return "", err
	}
	switch {
	case c.Issuer != "" && !strings.EqualFold(claims.Issuer, c.Issuer):
		return "", errors.New("issuer mismatch")
	case c.Audience != "" && !claims.Audience.Contains(c.Audience):
		return "", errors.New("audience mismatch")
	case strings.TrimSpace(claims.Subject) == "":
		return "", errors.New("missing subject")
	}
	return claims.Subject, nil
}

func parseBearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < len("Bearer ") || !strings.EqualFold(h[:len("Bearer ")], "Bearer ") {
		return "", false
	}
	return strings.TrimSpace(h[len("Bearer "):]), true
}
