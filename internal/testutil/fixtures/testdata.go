// Package fixtures provides shared test data constants for the auth
// library test suite.
//
// Using common constants for test identities prevents magic strings in
// tests and keeps realm and client names consistent across packages.
package fixtures

// Standard identity values used in token validation tests.
const (
	// TestSubject is the default subject claim for test identities.
	TestSubject = "user-abc-123"

	// TestRealm is the default Keycloak realm for tests.
	TestRealm = "stricklysoft"

	// AltRealm is an alternative realm for tests requiring two realms.
	AltRealm = "partners"

	// TestAudience is the default audience claim for test tokens.
	TestAudience = "stricklysoft-api"

	// TestClientID is the default confidential client ID.
	TestClientID = "resource-server"

	// TestClientSecret is the default confidential client secret. This
	// value is only ever used against in-process fake servers.
	TestClientSecret = "test-client-secret"

	// TestSessionState is a stable session identifier for test tokens.
	TestSessionState = "6c2f0b0e-9f64-4e11-bd23-7a1f7f6f2a9d"
)

// Standard key identifiers used in signing key tests.
const (
	// TestKeyID is the default JWKS key ID for RSA test keys.
	TestKeyID = "rsa-key-1"

	// AltKeyID is a second key ID for rotation tests.
	AltKeyID = "rsa-key-2"

	// TestECKeyID is the key ID for EC (ES256) test keys.
	TestECKeyID = "ec-key-1"
)
