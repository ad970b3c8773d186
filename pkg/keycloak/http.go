package keycloak

import (
	"log/slog"
	"net/http"
	"strings"
)

// HeaderAuthorization is the standard HTTP authorization header.
const HeaderAuthorization = "Authorization"

// bearerPrefix is the authorization scheme prefix, compared
// case-insensitively per RFC 6750.
const bearerPrefix = "bearer "

// ExtractBearerToken returns the token portion of a Bearer authorization
// header value, or "" when the header is absent or uses another scheme.
func ExtractBearerToken(authHeader string) string {
	if len(authHeader) <= len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(bearerPrefix):])
}

// Middleware returns an HTTP middleware that authenticates requests
// against the validator.
//
// The middleware performs the following steps:
//  1. Extracts the "Authorization" header (bearer token)
//  2. Validates the token with [Validator.ValidateJWT]
//  3. Stores the resulting claims and the raw token in the request context
//  4. Passes the enriched request to the next handler
//
// If no bearer token is present or validation fails, the middleware
// responds with HTTP 401 Unauthorized carrying the sanitized error
// message from the validation result.
//
// Example:
//
//	mux := http.NewServeMux()
//	mux.HandleFunc("/api/data", handleData)
//	handler := keycloak.Middleware(validator, keycloak.ClientConfig{
//	    Realm:    "production",
//	    ClientID: "resource-server",
//	})(mux)
//	http.ListenAndServe(":8080", handler)
func Middleware(validator *Validator, client ClientConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractBearerToken(r.Header.Get(HeaderAuthorization))
			if token == "" {
				http.Error(w, "missing or invalid authorization header", http.StatusUnauthorized)
				return
			}

			ctx := r.Context()
			result := validator.ValidateJWT(ctx, token, client)
			if !result.Valid {
				// The result error has already passed the sanitization
				// boundary; it is safe to return to the caller.
				slog.WarnContext(ctx, "keycloak: rejected bearer token",
					"error", result.Error,
					"client_id", client.ClientID,
					"realm", client.Realm,
				)
				http.Error(w, result.Error, http.StatusUnauthorized)
				return
			}

			ctx = ContextWithClaims(ctx, result.Claims)
			ctx = ContextWithRawToken(ctx, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
