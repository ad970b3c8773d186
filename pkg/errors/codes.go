package errors

// Code represents a machine-readable error code for categorizing errors.
// Error codes follow the pattern CATEGORY_XXX where CATEGORY is a short
// identifier (e.g., AUTH, VAL, UNAVAIL) and XXX is a three-digit numeric
// code.
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
	// Used when input or provider-supplied data fails validation rules.

	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field is missing.
	CodeValidationRequired Code = "VAL_002"

	// CodeValidationFormat indicates a field has an invalid format.
	CodeValidationFormat Code = "VAL_003"

	// CodeValidationDiscovery indicates an OIDC discovery document failed
	// validation (missing issuer, endpoint field that is not an absolute
	// URL). Documents rejected with this code are never cached.
	CodeValidationDiscovery Code = "VAL_004"

	// Authentication errors (AUTH_xxx) - HTTP 401
	// Used when a presented token cannot be accepted.

	// CodeAuthentication indicates a general authentication failure.
	CodeAuthentication Code = "AUTH_001"

	// CodeAuthenticationExpired indicates the token has expired.
	CodeAuthenticationExpired Code = "AUTH_002"

	// CodeAuthenticationInvalid indicates the token is malformed or its
	// signature, issuer, or audience did not verify.
	CodeAuthenticationInvalid Code = "AUTH_003"

	// CodeAuthenticationInactive indicates the introspection endpoint
	// reported the token as inactive (RFC 7662 active=false).
	CodeAuthenticationInactive Code = "AUTH_004"

	// Authorization errors (AUTHZ_xxx) - HTTP 403

	// CodeAuthorization indicates a general authorization failure.
	CodeAuthorization Code = "AUTHZ_001"

	// CodeAuthorizationInsufficientScope indicates the token lacks the
	// required scopes or roles.
	CodeAuthorizationInsufficientScope Code = "AUTHZ_002"

	// Not found errors (NF_xxx) - HTTP 404

	// CodeNotFound indicates a general not found error.
	CodeNotFound Code = "NF_001"

	// CodeNotFoundRealm indicates the requested realm is not configured
	// or the provider does not serve it.
	CodeNotFoundRealm Code = "NF_002"

	// Conflict errors (CONF_xxx) - HTTP 409

	// CodeConflict indicates a general conflict error.
	CodeConflict Code = "CONF_001"

	// Internal errors (INT_xxx) - HTTP 500

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalCache indicates a cache backend operation failed.
	CodeInternalCache Code = "INT_002"

	// CodeInternalConfiguration indicates a configuration error (missing
	// client secret, malformed issuer URL). Configuration errors are fatal
	// and never retried.
	CodeInternalConfiguration Code = "INT_003"

	// Unavailable errors (UNAVAIL_xxx) - HTTP 503

	// CodeUnavailable indicates a general service unavailable error.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeUnavailableDependency indicates the identity provider or cache
	// backend is unreachable.
	CodeUnavailableDependency Code = "UNAVAIL_002"

	// CodeUnavailableCircuitOpen indicates the circuit breaker guarding
	// identity-provider calls is open and the call was rejected without a
	// network attempt.
	CodeUnavailableCircuitOpen Code = "UNAVAIL_003"

	// Timeout errors (TIMEOUT_xxx) - HTTP 504

	// CodeTimeout indicates a general timeout error.
	CodeTimeout Code = "TIMEOUT_001"

	// CodeTimeoutDependency indicates a call to the identity provider or
	// cache backend timed out.
	CodeTimeoutDependency Code = "TIMEOUT_002"
)

// String returns the string representation of the error code.
func (c Code) String() string {
	return string(c)
}

// Category returns the category prefix of the error code (e.g., "VAL",
// "AUTH").
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}
