// Package errors provides standardized error types and error handling
// utilities for the Math-Change backend. It defines common error categories,
// error codes, and helper functions for creating, wrapping, and inspecting
// errors across the service.
//
// # Error Categories
//
// The package defines several error categories that map to common failure
// scenarios:
//
//   - Validation errors: Invalid input, missing required fields
//   - Authentication errors: Invalid, expired, or unverifiable tokens
//   - Authorization errors: Insufficient role, banned account
//   - NotFound errors: Resource does not exist
//   - Conflict errors: Resource already exists (e.g., duplicate email)
//   - Internal errors: Unexpected system failures
//   - Unavailable errors: A dependency (database, key provider) is down
//   - Timeout errors: Operation exceeded time limit
//
// # Error Codes
//
// Each error includes a machine-readable code (e.g., "AUTH_003") that can be
// used for error tracking, alerting, and log correlation. Error codes follow
// the pattern CATEGORY_XXX where CATEGORY is a short identifier and XXX is a
// numeric code.
//
// Authentication codes deserve a note: the HTTP layer never sends them to
// clients. Every AUTH_xxx error collapses to the same generic 401 response
// so that callers cannot distinguish a signature failure from an expired
// token or an unknown signing key. The codes exist for server-side logging
// only.
//
// # Usage
//
// Create a new error with context:
//
//	err := errors.New(errors.CodeValidation, "email address is invalid")
//
// Wrap an existing error:
//
//	err := errors.Wrap(err, errors.CodeInternalDatabase, "failed to fetch account")
//
// Check error category:
//
//	if errors.IsConflict(err) {
//	    // duplicate email, re-read and return the winner
//	}
package errors
