package auth

import (
	"log/slog"
	"net/http"
	"strings"

	mcerr "github.com/mathchange/backend/pkg/errors"
	"github.com/mathchange/backend/pkg/models"
)

// genericUnauthorizedBody is the single response body returned for every
// authentication failure. One body for all failure kinds keeps rejection
// responses from aiding token-forgery probing.
const genericUnauthorizedBody = `{"error":"unauthorized"}`

// ExtractBearerToken returns the bearer token from an Authorization header
// value, or an AUTH-coded error when the header is absent or not a bearer
// scheme. The scheme comparison is case-insensitive per RFC 7235.
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", mcerr.New(mcerr.CodeAuthMalformedToken, "auth: missing authorization header")
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", mcerr.New(mcerr.CodeAuthMalformedToken, "auth: authorization header is not a bearer token")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", mcerr.New(mcerr.CodeAuthMalformedToken, "auth: empty bearer token")
	}
	return token, nil
}

// Middleware authenticates every request passing through it: it extracts
// the bearer token, verifies it, resolves the local account, and stores the
// account in the request context for downstream handlers.
//
// Responses follow a strict policy:
//   - any token failure answers 401 with a generic body, the internal
//     reason appearing only in the server log
//   - a banned account answers 403
//   - account store unavailability answers the error's own 5xx status, so
//     infrastructure trouble is not mistaken for a bad credential
type Middleware struct {
	verifier *Verifier
	resolver *Resolver
}

// NewMiddleware creates the authentication middleware from its two stages.
func NewMiddleware(verifier *Verifier, resolver *Resolver) (*Middleware, error) {
	if verifier == nil || resolver == nil {
		return nil, mcerr.New(mcerr.CodeValidation, "auth: middleware requires a verifier and a resolver")
	}
	return &Middleware{verifier: verifier, resolver: resolver}, nil
}

// Authenticate wraps next so it only runs for authenticated requests.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token, err := ExtractBearerToken(r.Header.Get("Authorization"))
		if err != nil {
			writeUnauthorized(w, r, err)
			return
		}

		claims, err := m.verifier.Verify(ctx, token)
		if err != nil {
			writeUnauthorized(w, r, err)
			return
		}

		acct, err := m.resolver.Resolve(ctx, claims)
		if err != nil {
			// Identity defects (no email claim) are credential problems and
			// collapse into the generic 401; anything else is the backing
			// store misbehaving and must not look like a bad credential.
			if mcerr.IsAuthentication(err) {
				writeUnauthorized(w, r, err)
				return
			}
			writeCodedError(w, err)
			return
		}

		if err := RequireActive(acct); err != nil {
			slog.WarnContext(ctx, "auth: banned account rejected",
				"account_id", acct.ID,
				"path", r.URL.Path,
			)
			writeCodedError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithAccount(ctx, acct)))
	})
}

// RequireAdmin wraps next so it only runs for authenticated admins. It must
// be registered inside [Middleware.Authenticate].
func (m *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acct := MustAccountFromContext(r.Context())
		if err := RequireRole(acct, models.RoleAdmin); err != nil {
			slog.WarnContext(r.Context(), "auth: non-admin rejected from admin route",
				"account_id", acct.ID,
				"role", acct.Role,
				"path", r.URL.Path,
			)
			writeCodedError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeUnauthorized answers the generic 401. The specific failure is logged
// server-side and never disclosed to the client.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, err error) {
	slog.WarnContext(r.Context(), "auth: request rejected",
		"error", err,
		"code", string(mcerr.GetCode(err)),
		"path", r.URL.Path,
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(genericUnauthorizedBody))
}

// writeCodedError answers with the status the error's category maps to and
// a minimal JSON body.
func writeCodedError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := `{"error":"internal error"}`
	if e, ok := mcerr.AsError(err); ok {
		status = e.HTTPStatus()
		switch {
		case status == http.StatusForbidden:
			body = `{"error":"forbidden"}`
		case status >= 500:
			body = `{"error":"service unavailable"}`
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
