// Package keycloak implements token validation against a Keycloak identity
// provider: JWT verification against the realm's published key set (JWKS),
// OAuth2 token introspection (RFC 7662) for opaque tokens, and a salted,
// TTL-bounded validation cache in front of both paths.
//
// # Architecture
//
// The package is built from explicitly constructed, injected components.
// Nothing is a package-level singleton; every component that owns a
// background timer exposes an idempotent Shutdown method.
//
//   - [SaltManager] rotates the cryptographic salt that namespaces cache
//     keys derived from raw tokens.
//   - [TokenHasher] derives fixed-length cache keys from token bytes and
//     the current (or previous) salt.
//   - [DiscoveryCache] fetches and caches per-realm OIDC discovery
//     documents with LRU and age-based eviction.
//   - [CircuitBreaker] guards all outbound identity-provider calls,
//     failing fast while the provider is struggling.
//   - [ValidationCache] is the read-through cache shared by JWT
//     verification and introspection, with an in-memory fallback when the
//     backing store is unavailable.
//   - [IntrospectionClient] performs RFC 7662 introspection.
//   - [Validator] is the public entry point sequencing cache lookup, live
//     verification, cache write, and metrics.
//
// # Usage
//
//	cfg := keycloak.DefaultConfig()
//	cfg.ServerURL = "https://keycloak.auth.svc.cluster.local"
//
//	validator, err := keycloak.NewValidator(cfg, store)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer validator.Shutdown()
//
//	result := validator.ValidateJWT(ctx, token, keycloak.ClientConfig{
//	    Realm:    "production",
//	    ClientID: "resource-server",
//	})
//	if result.Valid {
//	    // result.Claims.Subject, result.Claims.Scope, ...
//	}
//
// HTTP handlers use [Middleware] to extract a Bearer token, validate it,
// and place the claims into the request context for retrieval with
// [ClaimsFromContext]. gRPC services use [UnaryServerInterceptor] and
// [StreamServerInterceptor] for the same flow over incoming metadata.
package keycloak
