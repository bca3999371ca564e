package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathchange/backend/internal/testutil"
	"github.com/mathchange/backend/internal/testutil/fixtures"
	mcerr "github.com/mathchange/backend/pkg/errors"
	"github.com/mathchange/backend/pkg/models"
)

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"standard", "Bearer abc.def.ghi", "abc.def.ghi", false},
		{"lowercase scheme", "bearer abc.def.ghi", "abc.def.ghi", false},
		{"missing header", "", "", true},
		{"wrong scheme", "Basic dXNlcjpwYXNz", "", true},
		{"scheme only", "Bearer ", "", true},
		{"no space", "Bearerabc", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractBearerToken(tt.header)
			if tt.wantErr {
				testutil.AssertErrorCode(t, err, mcerr.CodeAuthMalformedToken)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAccountContextRoundTrip(t *testing.T) {
	acct := models.NewAccount(fixtures.TestEmail, "", time.Now())

	ctx := ContextWithAccount(context.Background(), acct)
	got, ok := AccountFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, acct, got)

	_, ok = AccountFromContext(context.Background())
	assert.False(t, ok)
	assert.Panics(t, func() { MustAccountFromContext(context.Background()) })
}

// newTestMiddleware wires a full middleware chain against an in-memory
// account store and a local certs server, returning the signing key for
// minting request tokens.
func newTestMiddleware(t *testing.T, store AccountStore) (*Middleware, *testutil.SigningKey) {
	t.Helper()

	key := testutil.NewSigningKey(t)
	cs := newCertsServer(t, map[string]string{fixtures.TestKeyID: key.CertPEM}, "max-age=3600")
	cache := NewKeyCache(cs.srv.URL, 0, nil)

	verifier, err := NewVerifier(cache, fixtures.TestAudience)
	require.NoError(t, err)
	resolver, err := NewResolver(store)
	require.NoError(t, err)
	mw, err := NewMiddleware(verifier, resolver)
	require.NoError(t, err)
	return mw, key
}

// echoAccount is a terminal handler asserting the account reached the
// request context.
func echoAccount(t *testing.T, got **models.Account) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = MustAccountFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareAuthenticatesAndResolves(t *testing.T) {
	store := newFakeAccountStore()
	mw, key := newTestMiddleware(t, store)

	var got *models.Account
	handler := mw.Authenticate(echoAccount(t, &got))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+testutil.SignToken(t, key, fixtures.TestKeyID, fixtures.TestAudience))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, fixtures.TestEmail, got.Email)
}

func TestMiddlewareCollapsesFailuresToGeneric401(t *testing.T) {
	store := newFakeAccountStore()
	mw, key := newTestMiddleware(t, store)
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for unauthenticated requests")
	}))

	tests := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"no header", func(*http.Request) {}},
		{"not bearer", func(r *http.Request) { r.Header.Set("Authorization", "Basic Zm9v") }},
		{"garbage token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }},
		{"expired token", func(r *http.Request) {
			tok := testutil.SignToken(t, key, fixtures.TestKeyID, fixtures.TestAudience,
				testutil.WithExpiry(time.Now().Add(-time.Minute)))
			r.Header.Set("Authorization", "Bearer "+tok)
		}},
		{"wrong audience", func(r *http.Request) {
			tok := testutil.SignToken(t, key, fixtures.TestKeyID, fixtures.TestAudience,
				testutil.WithAudience("other-app"))
			r.Header.Set("Authorization", "Bearer "+tok)
		}},
		{"no email claim", func(r *http.Request) {
			tok := testutil.SignToken(t, key, fixtures.TestKeyID, fixtures.TestAudience,
				testutil.WithoutClaim("email"))
			r.Header.Set("Authorization", "Bearer "+tok)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.JSONEq(t, genericUnauthorizedBody, rec.Body.String(),
				"every rejection must carry the same undifferentiated body")
		})
	}
}

func TestMiddlewareRejectsBannedAccount(t *testing.T) {
	store := newFakeAccountStore()
	banned := models.NewAccount(fixtures.TestEmail, "", time.Now())
	banned.Status = models.StatusBanned
	store.byEmail[fixtures.TestEmail] = banned

	mw, key := newTestMiddleware(t, store)
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for banned accounts")
	}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+testutil.SignToken(t, key, fixtures.TestKeyID, fixtures.TestAudience))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMiddlewareStoreFailureIsNot401(t *testing.T) {
	store := newFakeAccountStore()
	store.findErr = mcerr.New(mcerr.CodeInternalDatabase, "connection refused")

	mw, key := newTestMiddleware(t, store)
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run when resolution fails")
	}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+testutil.SignToken(t, key, fixtures.TestKeyID, fixtures.TestAudience))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code,
		"store trouble must answer 5xx, not masquerade as a credential failure")
}

func TestRequireAdminMiddleware(t *testing.T) {
	store := newFakeAccountStore()
	user := models.NewAccount(fixtures.TestEmail, "", time.Now())
	store.byEmail[fixtures.TestEmail] = user
	admin := models.NewAccount(fixtures.AdminEmail, "", time.Now())
	admin.Role = models.RoleAdmin
	store.byEmail[fixtures.AdminEmail] = admin

	mw, key := newTestMiddleware(t, store)

	var reached bool
	handler := mw.Authenticate(mw.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	})))

	// A regular user is authenticated but not authorized: 403, not 401.
	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set("Authorization", "Bearer "+testutil.SignToken(t, key, fixtures.TestKeyID, fixtures.TestAudience))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, reached)

	// The admin passes both layers.
	req = httptest.NewRequest(http.MethodGet, "/users", nil)
	adminTok := testutil.SignToken(t, key, fixtures.TestKeyID, fixtures.TestAudience,
		testutil.WithClaim("email", fixtures.AdminEmail))
	req.Header.Set("Authorization", "Bearer "+adminTok)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, reached)
}
