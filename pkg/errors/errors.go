// Package errors provides standardized error types and error handling
// utilities for the StricklySoft auth services. It defines the error
// categories the token validation pipeline distinguishes between, the
// machine-readable codes attached to each error, and a sanitization
// boundary for messages that may reach external callers.
//
// # Error Categories
//
// The package defines several error categories that map to common failure
// scenarios in the validation path:
//
//   - Validation errors: invalid input, malformed discovery documents
//   - Authentication errors: invalid, expired, or unverifiable tokens
//   - Authorization errors: insufficient permissions or scopes
//   - Configuration errors: missing client secrets, bad issuer URLs
//   - Unavailable errors: identity provider unreachable, circuit open
//   - Timeout errors: provider or cache call exceeded its deadline
//
// # Error Codes
//
// Each error includes a machine-readable code (e.g., "AUTH_001") that can be
// used for error tracking, alerting, and client-side error handling. Error
// codes follow the pattern CATEGORY_XXX where CATEGORY is a short identifier
// and XXX is a numeric code. Codes are stable; monitoring rules may depend
// on them.
//
// The circuit-open code ([CodeUnavailableCircuitOpen]) is deliberately
// distinct from other unavailable codes so that operators can tell
// "the provider is down and we have stopped trying" apart from a one-off
// network blip.
//
// # Usage
//
// Create a new error with context:
//
//	err := errors.New(errors.CodeAuthenticationInvalid, "token is malformed")
//
// Wrap an existing error:
//
//	err := errors.Wrap(err, errors.CodeUnavailableDependency, "discovery fetch failed")
//
// Check error category:
//
//	if errors.IsUnavailable(err) {
//	    // provider-side outage; do not blame the credential
//	}
//
// Sanitize a message before returning it to an external caller:
//
//	msg := errors.Sanitize(err)
package errors
