package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessageFormat(t *testing.T) {
	t.Run("without cause", func(t *testing.T) {
		err := New(CodeValidation, "email address is required")
		assert.Equal(t, "VAL_001: email address is required", err.Error())
	})

	t.Run("with cause", func(t *testing.T) {
		cause := fmt.Errorf("connection refused")
		err := Wrap(cause, CodeInternalDatabase, "failed to fetch account")
		assert.Equal(t, "INT_002: failed to fetch account: connection refused", err.Error())
		assert.Equal(t, cause, err.Unwrap())
	})
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, CodeInternal, "ignored"))
	assert.Nil(t, Wrapf(nil, CodeInternal, "ignored %d", 1))
}

func TestCodeCategory(t *testing.T) {
	tests := []struct {
		code Code
		want string
	}{
		{CodeValidation, "VAL"},
		{CodeAuthMalformedToken, "AUTH"},
		{CodeAuthTokenExpired, "AUTH"},
		{CodeAuthzForbidden, "AUTHZ"},
		{CodeNotFoundAccount, "NF"},
		{CodeConflictDuplicateEmail, "CONF"},
		{CodeInternalDatabase, "INT"},
		{CodeUnavailableDependency, "UNAVAIL"},
		{CodeTimeout, "TIMEOUT"},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.Category())
		})
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		code Code
		want int
	}{
		{"validation maps to 400", CodeValidation, http.StatusBadRequest},
		{"authentication maps to 401", CodeAuthInvalidSignature, http.StatusUnauthorized},
		{"authorization maps to 403", CodeAuthzForbidden, http.StatusForbidden},
		{"banned maps to 403", CodeAuthzBanned, http.StatusForbidden},
		{"not found maps to 404", CodeNotFoundAccount, http.StatusNotFound},
		{"conflict maps to 409", CodeConflictDuplicateEmail, http.StatusConflict},
		{"internal maps to 500", CodeInternalDatabase, http.StatusInternalServerError},
		{"unavailable maps to 503", CodeUnavailableDependency, http.StatusServiceUnavailable},
		{"timeout maps to 504", CodeTimeout, http.StatusGatewayTimeout},
		{"unknown category maps to 500", Code("X_001"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "test")
			assert.Equal(t, tt.want, err.HTTPStatus())
		})
	}
}

func TestAsErrorTraversesChain(t *testing.T) {
	inner := New(CodeConflictDuplicateEmail, "account with email already exists")
	outer := fmt.Errorf("resolving identity: %w", inner)

	e, ok := AsError(outer)
	require.True(t, ok)
	assert.Equal(t, CodeConflictDuplicateEmail, e.Code)
}

func TestCategoryChecks(t *testing.T) {
	assert.True(t, IsAuthentication(New(CodeAuthUnknownSigningKey, "")))
	assert.False(t, IsAuthentication(New(CodeAuthzForbidden, "")))
	assert.True(t, IsAuthorization(New(CodeAuthzBanned, "")))
	assert.True(t, IsConflict(New(CodeConflictDuplicateEmail, "")))
	assert.True(t, IsNotFound(New(CodeNotFoundAccount, "")))
	assert.True(t, IsInternal(New(CodeInternalDatabase, "")))
	assert.True(t, IsUnavailable(New(CodeUnavailableDependency, "")))
	assert.True(t, IsTimeout(New(CodeTimeout, "")))
	assert.True(t, IsServerError(New(CodeUnavailableDependency, "")))
	assert.False(t, IsServerError(New(CodeValidation, "")))
	assert.False(t, IsConflict(fmt.Errorf("plain error")))
}

func TestConvenienceConstructors(t *testing.T) {
	v := Validation("username must not be empty")
	assert.Equal(t, CodeValidation, v.Code)
	assert.True(t, IsValidation(v))

	f := Forbidden("operation requires role ADMIN")
	assert.Equal(t, CodeAuthzForbidden, f.Code)
	assert.True(t, IsAuthorization(f))
}

func TestHasCode(t *testing.T) {
	err := New(CodeAuthTokenExpired, "token has expired")
	assert.True(t, HasCode(err, CodeAuthTokenExpired))
	assert.False(t, HasCode(err, CodeAuthInvalidSignature))
	assert.False(t, HasCode(nil, CodeAuthTokenExpired))
}

func TestWithDetail(t *testing.T) {
	base := New(CodeNotFoundAccount, "account not found")
	detailed := base.WithDetail("email", "player@example.com")

	assert.Nil(t, base.Details, "original error must not be modified")
	assert.Equal(t, "player@example.com", detailed.Details["email"])
}

func TestFromError(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, FromError(nil))
	})

	t.Run("already structured", func(t *testing.T) {
		orig := New(CodeValidation, "bad input")
		assert.Same(t, orig, FromError(orig))
	})

	t.Run("plain error becomes internal", func(t *testing.T) {
		e := FromError(fmt.Errorf("boom"))
		assert.Equal(t, CodeInternal, e.Code)
	})
}
