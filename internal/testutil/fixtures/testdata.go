// Package fixtures provides shared test data constants for the
// Math-Change backend test suite.
//
// Using common constants for test identities prevents magic strings in
// tests and ensures consistency across packages.
package fixtures

// Standard identity values used in auth tests.
const (
	// TestSubject is the default provider subject claim for test tokens.
	TestSubject = "provider-user-001"

	// TestEmail is the default email claim for test tokens.
	TestEmail = "ana@example.com"

	// TestDisplayName is the default name claim for test tokens.
	TestDisplayName = "Ana"

	// TestAudience is the application identifier test tokens are issued for.
	TestAudience = "mathchange-app"

	// TestKeyID is the default signing key identifier for test tokens.
	TestKeyID = "kid-2026-01"

	// AltKeyID is a second key identifier for rotation tests.
	AltKeyID = "kid-2026-02"
)

// Standard account values used in store and API tests.
const (
	// TestAccountID is a fixed account id for tests that need a stable one.
	TestAccountID = "5f4a2c1e-0000-4000-8000-000000000001"

	// TestUsername is the default username for test accounts.
	TestUsername = "ana"

	// AdminEmail is the email of the admin account used in guard tests.
	AdminEmail = "admin@example.com"
)

// Standard configuration values used in config loader tests.
const (
	// TestEnvPrefix is the default environment variable prefix for config tests.
	TestEnvPrefix = "MATHCHANGE"

	// TestConfigYAML is a minimal valid YAML configuration for tests.
	TestConfigYAML = `server:
  addr: ":8080"
auth:
  audience: mathchange-app
`
)
