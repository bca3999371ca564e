package auth

import (
	"context"

	"github.com/mathchange/backend/pkg/models"
)

// contextKey is a private type for context values set by this package,
// preventing collisions with keys from other packages.
type contextKey struct{}

var accountContextKey = contextKey{}

// ContextWithAccount returns a copy of ctx carrying the resolved account.
// The middleware calls this after a request authenticates; handlers read it
// back with [AccountFromContext].
func ContextWithAccount(ctx context.Context, acct *models.Account) context.Context {
	return context.WithValue(ctx, accountContextKey, acct)
}

// AccountFromContext returns the account stored by [ContextWithAccount],
// or false when the request did not pass through the middleware.
func AccountFromContext(ctx context.Context) (*models.Account, bool) {
	acct, ok := ctx.Value(accountContextKey).(*models.Account)
	return acct, ok
}

// MustAccountFromContext returns the account from ctx, panicking when none
// is present. Use only in handlers that are always registered behind
// [Middleware]; a panic here indicates a routing bug, not a runtime
// condition.
func MustAccountFromContext(ctx context.Context) *models.Account {
	acct, ok := AccountFromContext(ctx)
	if !ok {
		panic("auth: no account in context; handler registered outside auth middleware")
	}
	return acct
}
