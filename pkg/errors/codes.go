package errors

// Code represents a machine-readable error code for categorizing errors.
// Error codes follow the pattern CATEGORY_XXX where CATEGORY is a short
// identifier (e.g., AUTH, VAL, INT) and XXX is a three-digit numeric code.
//
// Error codes are designed to be:
//   - Stable: Codes do not change once assigned
//   - Unique: Each error condition has a distinct code
//   - Machine-readable: Suitable for automated error handling and alerting
type Code string

// Error code categories and their ranges:
//
//	VAL_xxx     - Validation errors (400 Bad Request)
//	AUTH_xxx    - Authentication errors (401 Unauthorized)
//	AUTHZ_xxx   - Authorization errors (403 Forbidden)
//	NF_xxx      - Not found errors (404 Not Found)
//	CONF_xxx    - Conflict errors (409 Conflict)
//	INT_xxx     - Internal errors (500 Internal Server Error)
//	UNAVAIL_xxx - Service unavailable (503 Service Unavailable)
//	TIMEOUT_xxx - Timeout errors (504 Gateway Timeout)
const (
	// Validation errors (VAL_xxx) - HTTP 400
	// Used when request input fails validation rules.

	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field is missing.
	CodeValidationRequired Code = "VAL_002"

	// Authentication errors (AUTH_xxx) - HTTP 401
	// These codes record why a bearer token was rejected. They are logged
	// server-side and never exposed to clients; see the package comment.

	// CodeAuthMalformedToken indicates the token could not be parsed as a
	// structurally valid signed token.
	CodeAuthMalformedToken Code = "AUTH_001"

	// CodeAuthMissingKeyID indicates the token header carries no key
	// identifier (kid), so no signing key can be selected.
	CodeAuthMissingKeyID Code = "AUTH_002"

	// CodeAuthUnknownSigningKey indicates the token references a key
	// identifier absent from the provider's published key set, even after
	// a forced refresh.
	CodeAuthUnknownSigningKey Code = "AUTH_003"

	// CodeAuthInvalidSignature indicates the token signature does not
	// verify against the provider's public key.
	CodeAuthInvalidSignature Code = "AUTH_004"

	// CodeAuthAudienceMismatch indicates the token was issued for a
	// different application than this one.
	CodeAuthAudienceMismatch Code = "AUTH_005"

	// CodeAuthTokenExpired indicates the token's exp claim is in the past.
	CodeAuthTokenExpired Code = "AUTH_006"

	// CodeAuthIncompleteIdentity indicates a verified token carried no
	// usable linking attribute (no email claim).
	CodeAuthIncompleteIdentity Code = "AUTH_007"

	// Authorization errors (AUTHZ_xxx) - HTTP 403
	// Used when the authenticated account lacks the required role or
	// standing.

	// CodeAuthzForbidden indicates the account's role does not permit the
	// requested operation.
	CodeAuthzForbidden Code = "AUTHZ_001"

	// CodeAuthzBanned indicates the account has been deactivated.
	CodeAuthzBanned Code = "AUTHZ_002"

	// Not found errors (NF_xxx) - HTTP 404
	// Used when a requested resource does not exist.

	// CodeNotFound indicates a general not found error.
	CodeNotFound Code = "NF_001"

	// CodeNotFoundAccount indicates the requested account was not found.
	CodeNotFoundAccount Code = "NF_002"

	// Conflict errors (CONF_xxx) - HTTP 409
	// Used when an operation conflicts with current state.

	// CodeConflict indicates a general conflict error.
	CodeConflict Code = "CONF_001"

	// CodeConflictDuplicateEmail indicates an account insert violated the
	// unique constraint on email. The identity resolver recovers from this
	// by re-reading the winning record.
	CodeConflictDuplicateEmail Code = "CONF_002"

	// Internal errors (INT_xxx) - HTTP 500
	// Used for unexpected internal failures.

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalDatabase indicates a database operation failed.
	CodeInternalDatabase Code = "INT_002"

	// CodeInternalConfiguration indicates a configuration error.
	CodeInternalConfiguration Code = "INT_003"

	// Unavailable errors (UNAVAIL_xxx) - HTTP 503
	// Used when a dependency is temporarily unavailable.

	// CodeUnavailable indicates a general service unavailable error.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeUnavailableDependency indicates a dependent service (account
	// store, object storage, key provider) is unavailable.
	CodeUnavailableDependency Code = "UNAVAIL_002"

	// Timeout errors (TIMEOUT_xxx) - HTTP 504
	// Used when an operation exceeds its time limit.

	// CodeTimeout indicates a general timeout error.
	CodeTimeout Code = "TIMEOUT_001"
)

// String returns the string representation of the error code.
func (c Code) String() string {
	return string(c)
}

// Category returns the category prefix of the error code (e.g., "VAL", "AUTH").
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}
