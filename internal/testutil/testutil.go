// Package testutil provides shared test helpers for the Math-Change
// backend.
//
// All helpers accept [testing.TB] for compatibility with both tests and
// benchmarks. Functions that halt the test on failure use [require] from
// testify; functions that record failures without stopping use [assert].
//
// Every helper calls t.Helper() so that test failure messages report the
// caller's file and line number rather than this package's.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcerr "github.com/mathchange/backend/pkg/errors"
)

// RequireErrorCode halts the test if err is nil, is not an *mcerr.Error,
// or does not carry the expected error code. This is the primary helper
// for validating coded error returns.
//
// Example:
//
//	_, err := verifier.Verify(ctx, "")
//	testutil.RequireErrorCode(t, err, mcerr.CodeAuthMalformedToken)
func RequireErrorCode(t testing.TB, err error, code mcerr.Code, msgAndArgs ...any) {
	t.Helper()
	require.Error(t, err, msgAndArgs...)
	mcErr, ok := mcerr.AsError(err)
	require.True(t, ok, "expected *mcerr.Error, got %T: %v", err, err)
	require.Equal(t, code, mcErr.Code,
		"error code mismatch: got %q, want %q (message: %s)",
		mcErr.Code, code, mcErr.Message)
}

// AssertErrorCode records a test failure (without halting) if err is nil,
// is not an *mcerr.Error, or does not carry the expected error code.
// Use this in table-driven tests where you want to check all rows.
func AssertErrorCode(t testing.TB, err error, code mcerr.Code, msgAndArgs ...any) bool {
	t.Helper()
	if !assert.Error(t, err, msgAndArgs...) {
		return false
	}
	mcErr, ok := mcerr.AsError(err)
	if !assert.True(t, ok, "expected *mcerr.Error, got %T: %v", err, err) {
		return false
	}
	return assert.Equal(t, code, mcErr.Code,
		"error code mismatch: got %q, want %q (message: %s)",
		mcErr.Code, code, mcErr.Message)
}

// RequireErrorCategory halts the test if err does not carry a code in the
// expected category. Use this when the exact code is an implementation
// detail but the category drives behavior (e.g., HTTP status mapping).
func RequireErrorCategory(t testing.TB, err error, category string, msgAndArgs ...any) {
	t.Helper()
	require.Error(t, err, msgAndArgs...)
	mcErr, ok := mcerr.AsError(err)
	require.True(t, ok, "expected *mcerr.Error, got %T: %v", err, err)
	require.Equal(t, category, mcErr.Code.Category(),
		"error category mismatch: got %q, want %q (code: %s)",
		mcErr.Code.Category(), category, mcErr.Code)
}

// TempConfigFile creates a temporary file with the given content and
// extension (e.g., ".yaml", ".json") inside t.TempDir(). The file is
// automatically cleaned up when the test finishes.
func TempConfigFile(t testing.TB, content, ext string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config"+ext)
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err, "failed to write temp config file %s", path)
	return path
}

// SetEnv sets an environment variable and registers a cleanup function
// that restores the original value (or unsets it if it was not set)
// when the test completes.
//
// This is safe for use in parallel tests only if each test sets a
// unique environment variable. For shared variables, do not use
// t.Parallel().
func SetEnv(t testing.TB, key, value string) {
	t.Helper()
	prev, existed := os.LookupEnv(key)
	err := os.Setenv(key, value)
	require.NoError(t, err, "failed to set env var %s", key)
	t.Cleanup(func() {
		if existed {
			_ = os.Setenv(key, prev)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}

// UnsetEnv unsets an environment variable and registers a cleanup
// function that restores the original value when the test completes.
func UnsetEnv(t testing.TB, key string) {
	t.Helper()
	prev, existed := os.LookupEnv(key)
	err := os.Unsetenv(key)
	require.NoError(t, err, "failed to unset env var %s", key)
	t.Cleanup(func() {
		if existed {
			_ = os.Setenv(key, prev)
		}
	})
}
