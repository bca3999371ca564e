package auth

import (
	mcerr "github.com/mathchange/backend/pkg/errors"
	"github.com/mathchange/backend/pkg/models"
)

// RequireRole checks that the account holds the given role. Unlike the
// authentication checks, role failures are specific: the caller is known,
// so the response may say 403 rather than the generic 401.
func RequireRole(acct *models.Account, role models.Role) error {
	if acct == nil {
		return mcerr.Forbidden("auth: no account to authorize")
	}
	if acct.Role != role {
		return mcerr.Newf(mcerr.CodeAuthzForbidden, "auth: operation requires role %s", role)
	}
	return nil
}

// RequireActive rejects banned accounts. Banned users authenticate
// successfully but hold no permissions.
func RequireActive(acct *models.Account) error {
	if acct == nil {
		return mcerr.Forbidden("auth: no account to authorize")
	}
	if acct.IsBanned() {
		return mcerr.New(mcerr.CodeAuthzBanned, "auth: account is banned")
	}
	return nil
}
