// Package auth authenticates inbound API requests for the Math-Change
// backend.
//
// Authentication is delegated to an external identity provider: clients
// present provider-issued ID tokens as bearer tokens, and this package
// verifies them against the provider's published public signing keys and
// resolves the verified identity to a local [models.Account], provisioning
// one just-in-time on first contact.
//
// The package is layered, leaves first:
//
//   - [KeyCache] owns the locally cached copy of the provider's public keys
//     and their freshness window.
//   - [Verifier] consumes a raw bearer token, resolves the correct key via
//     the key cache, and validates the token's signature, audience, and
//     expiry.
//   - [Resolver] maps verified claims to a local account, provisioning a
//     new one if absent.
//   - [RequireRole] is a thin policy check layered on the resolved account.
//   - [Middleware] ties the chain together for HTTP handlers.
//
// Security:
//
// Verification failures are collapsed to a single generic 401 response.
// The internal failure kind (malformed token, unknown key, bad signature,
// expired, wrong audience) is retained only for server-side logging, so
// that rejection responses do not aid token-forgery probing.
package auth

import (
	"time"
)

// VerifiedClaims is the immutable result of a successful token
// verification: the subset of the provider token's payload this service
// acts on. It is produced once per verification and never persisted.
type VerifiedClaims struct {
	// Subject is the provider-issued stable identifier for the end user.
	// It is carried for logging and audit; local accounts key on Email.
	Subject string

	// Email is the linking attribute between provider identities and
	// local accounts. May be empty when the provider token carries no
	// email claim; the resolver rejects such tokens.
	Email string

	// DisplayName is the user's display name, when the provider supplied
	// one. Optional.
	DisplayName string

	// Audience is the application identifier the token was issued for.
	Audience string

	// ExpiresAt is the token's expiry instant.
	ExpiresAt time.Time
}
