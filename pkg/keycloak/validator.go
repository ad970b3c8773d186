package keycloak

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-auth/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope name for token
// validation spans.
const tracerName = "github.com/StricklySoft/stricklysoft-auth/pkg/keycloak"

// Validator is the public entry point for token validation. It sequences
// cache lookup, live verification (JWKS for JWTs, introspection for
// opaque tokens), cache write-through, and metrics, and guarantees that
// [Validator.ValidateJWT] always returns a result rather than an error.
//
// Construct with [NewValidator]; call [Validator.Shutdown] to stop the
// background timers it owns.
//
// A Validator is safe for concurrent use by multiple goroutines.
type Validator struct {
	cfg    Config
	tracer trace.Tracer

	salts      *SaltManager
	hasher     *TokenHasher
	breaker    *CircuitBreaker
	discovery  *DiscoveryCache
	jwks       *jwksVerifier
	introspect *IntrospectionClient
	cache      *ValidationCache

	attempts   atomic.Uint64
	cacheHits  atomic.Uint64
	cacheMiss  atomic.Uint64
	successes  atomic.Uint64
	failures   atomic.Uint64

	shutdownOnce sync.Once
}

// ValidatorMetrics is a snapshot of the orchestrator's counters. All
// fields are monotonic since construction or the last
// [Validator.ResetMetrics].
type ValidatorMetrics struct {
	// Attempts counts ValidateJWT and Introspect calls.
	Attempts uint64 `json:"attempts"`

	// CacheHits counts results served from the validation cache.
	CacheHits uint64 `json:"cache_hits"`

	// CacheMisses counts calls that required live verification.
	CacheMisses uint64 `json:"cache_misses"`

	// Successes counts live verifications that accepted the token.
	Successes uint64 `json:"successes"`

	// Failures counts live verifications that rejected the token or
	// failed to complete.
	Failures uint64 `json:"failures"`
}

// HealthStatus is the non-sensitive health surface exposed by
// [Validator.HealthStatus]. Every field is a bounded number, enum, or
// timestamp; no hostnames, credentials, or stack traces appear here.
type HealthStatus struct {
	// Healthy is false while the circuit breaker is open.
	Healthy bool `json:"healthy"`

	// CircuitBreaker describes the breaker configuration and counters.
	CircuitBreaker BreakerHealth `json:"circuit_breaker"`

	// Salt reports the salt rotation lifecycle.
	Salt SaltStats `json:"salt"`

	// Metrics is the orchestrator counter snapshot.
	Metrics ValidatorMetrics `json:"metrics"`
}

// BreakerHealth is the breaker portion of [HealthStatus].
type BreakerHealth struct {
	Configured       bool           `json:"configured"`
	FailureThreshold int            `json:"failure_threshold"`
	RecoveryTimeout  string         `json:"recovery_timeout"`
	Metrics          BreakerMetrics `json:"metrics"`
}

// ValidatorOption customizes a [Validator] at construction.
type ValidatorOption func(*validatorOptions)

type validatorOptions struct {
	httpClient HTTPClient
}

// WithHTTPClient replaces the outbound HTTP client used for all provider
// calls. Intended for tests and for callers with custom transport needs
// (proxies, mTLS).
func WithHTTPClient(client HTTPClient) ValidatorOption {
	return func(o *validatorOptions) {
		o.httpClient = client
	}
}

// NewValidator creates a Validator with the given configuration and
// cache backing store. A nil store is permitted; the validation cache
// then runs purely in process memory.
func NewValidator(cfg Config, store Store, opts ...ValidatorOption) (*Validator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var options validatorOptions
	for _, opt := range opts {
		opt(&options)
	}
	httpClient := options.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	breaker := NewCircuitBreaker(cfg.FailureThreshold, cfg.RecoveryTimeout)
	gw := newGateway(httpClient, breaker, cfg.HTTPTimeout, cfg.MaxRetries)
	discovery := newDiscoveryCache(&cfg, gw)
	salts := NewSaltManager(cfg.Environment, cfg.SaltRotationInterval)

	return &Validator{
		cfg:        cfg,
		tracer:     otel.Tracer(tracerName),
		salts:      salts,
		hasher:     NewTokenHasher(salts),
		breaker:    breaker,
		discovery:  discovery,
		jwks:       newJWKSVerifier(&cfg, gw, discovery),
		introspect: newIntrospectionClient(gw, discovery),
		cache:      NewValidationCache(store, cfg.CacheBuffer),
	}, nil
}

// ValidateJWT validates a JWT for the given client. It never returns an
// error: every failure mode (malformed token, bad signature, provider
// outage, open circuit) is converted to a ValidationResult with a
// sanitized error message, so request-path callers can branch on
// result.Valid without error plumbing.
//
// Flow: salted-hash cache lookup (current then previous salt) first; on
// a miss, signature verification against the realm JWKS with issuer and
// audience checks; successful results are written back with a TTL
// derived from the token's own expiry.
func (v *Validator) ValidateJWT(ctx context.Context, token string, client ClientConfig) ValidationResult {
	ctx, span := v.tracer.Start(ctx, "keycloak.ValidateJWT")
	defer span.End()

	v.attempts.Add(1)

	if token == "" {
		v.failures.Add(1)
		return v.failSpan(span, ValidationResult{Valid: false, Error: "authentication required"})
	}
	if err := client.Validate(); err != nil {
		v.failures.Add(1)
		return v.failSpan(span, invalidResult(err))
	}

	hashes := v.hasher.HashWithFallback(token)
	for _, hash := range hashes {
		var cached ValidationResult
		if v.cache.Get(ctx, jwtCacheKey(hash), &cached) && cached.Valid {
			v.cacheHits.Add(1)
			cached.Cached = true
			span.SetAttributes(attribute.Bool("auth.cache_hit", true))
			span.SetStatus(codes.Ok, "")
			return cached
		}
	}
	v.cacheMiss.Add(1)
	span.SetAttributes(attribute.Bool("auth.cache_hit", false))

	claims, err := v.jwks.verify(ctx, token, client)
	if err != nil {
		v.failures.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, sserr.GetCode(err).String())
		return invalidResult(err)
	}
	v.successes.Add(1)

	result := ValidationResult{Valid: true, Claims: claims}
	ttl := v.cache.TTL(claims.ExpiresAt, v.cfg.MinJWTTTL)
	v.cache.Set(ctx, jwtCacheKey(hashes[0]), result, ttl)

	span.SetStatus(codes.Ok, "")
	return result
}

// Introspect resolves an opaque token via RFC 7662 introspection, with
// the same salted-hash caching as JWT validation. Only active responses
// carrying an exp are cached; an inactive token is returned as-is and
// the next identical call hits the network again.
//
// Unlike ValidateJWT this returns errors: introspection is also used on
// administrative paths where callers must distinguish "provider broken"
// from "token inactive".
func (v *Validator) Introspect(ctx context.Context, req IntrospectionRequest) (*IntrospectionResponse, error) {
	ctx, span := v.tracer.Start(ctx, "keycloak.Introspect")
	defer span.End()

	v.attempts.Add(1)

	if req.Token != "" {
		for _, hash := range v.hasher.HashWithFallback(req.Token) {
			var cached IntrospectionResponse
			if v.cache.Get(ctx, introspectionCacheKey(hash), &cached) {
				v.cacheHits.Add(1)
				span.SetAttributes(attribute.Bool("auth.cache_hit", true))
				span.SetStatus(codes.Ok, "")
				return &cached, nil
			}
		}
	}
	v.cacheMiss.Add(1)
	span.SetAttributes(attribute.Bool("auth.cache_hit", false))

	resp, err := v.introspect.Introspect(ctx, req)
	if err != nil {
		v.failures.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, sserr.GetCode(err).String())
		return nil, err
	}
	v.successes.Add(1)

	if resp.Active && resp.Exp > 0 {
		hash := v.hasher.Hash(req.Token)
		ttl := v.cache.TTL(resp.Exp, v.cfg.MinIntrospectionTTL)
		v.cache.Set(ctx, introspectionCacheKey(hash), resp, ttl)
	}

	span.SetStatus(codes.Ok, "")
	return resp, nil
}

// HealthStatus reports validator health for readiness and monitoring
// endpoints. The output is safe to serialize verbatim to external
// callers.
func (v *Validator) HealthStatus() HealthStatus {
	metrics := v.breaker.Metrics()
	return HealthStatus{
		Healthy: metrics.State != BreakerOpen,
		CircuitBreaker: BreakerHealth{
			Configured:       true,
			FailureThreshold: v.cfg.FailureThreshold,
			RecoveryTimeout:  v.cfg.RecoveryTimeout.String(),
			Metrics:          metrics,
		},
		Salt:    v.salts.Stats(),
		Metrics: v.Metrics(),
	}
}

// Metrics returns a snapshot of the orchestrator counters.
func (v *Validator) Metrics() ValidatorMetrics {
	return ValidatorMetrics{
		Attempts:    v.attempts.Load(),
		CacheHits:   v.cacheHits.Load(),
		CacheMisses: v.cacheMiss.Load(),
		Successes:   v.successes.Load(),
		Failures:    v.failures.Load(),
	}
}

// CleanupExpiredTokens force-flushes all cached validation and
// introspection entries and returns the number removed from the backing
// store. The store's per-key TTLs already expire entries on their own;
// this is the big hammer for incident response (suspected salt leak,
// provider-side mass revocation).
func (v *Validator) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	ctx, span := v.tracer.Start(ctx, "keycloak.CleanupExpiredTokens")
	defer span.End()

	jwtCount, err := v.cache.InvalidatePattern(ctx, jwtCachePrefix+"*")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return jwtCount, sserr.Wrap(err, sserr.CodeInternalCache,
			"keycloak: failed to invalidate cached validation results")
	}
	introCount, err := v.cache.InvalidatePattern(ctx, introspectionCachePrefix+"*")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return jwtCount, sserr.Wrap(err, sserr.CodeInternalCache,
			"keycloak: failed to invalidate cached introspection results")
	}

	total := jwtCount + introCount
	span.SetAttributes(attribute.Int64("auth.entries_removed", total))
	span.SetStatus(codes.Ok, "")
	return total, nil
}

// RefreshPublicKeys drops the realm's cached signing keys and refetches
// the JWKS live. Call after a provider-side key rotation that cannot
// wait for the key TTL.
func (v *Validator) RefreshPublicKeys(ctx context.Context, realm string) error {
	ctx, span := v.tracer.Start(ctx, "keycloak.RefreshPublicKeys")
	defer span.End()

	if err := v.jwks.refreshRealm(ctx, realm); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// ResetMetrics zeroes the orchestrator counters and resets the circuit
// breaker to closed. Intended for maintenance endpoints and tests.
func (v *Validator) ResetMetrics() {
	v.attempts.Store(0)
	v.cacheHits.Store(0)
	v.cacheMiss.Store(0)
	v.successes.Store(0)
	v.failures.Store(0)
	v.breaker.Reset()
}

// Rotate forces an immediate salt rotation. Cached entries written under
// the outgoing salt remain reachable until the following rotation.
func (v *Validator) Rotate() {
	v.salts.Rotate()
}

// Shutdown stops the background timers owned by the validator (salt
// rotation, discovery sweep). Idempotent; after Shutdown the validator
// must not be used.
func (v *Validator) Shutdown() {
	v.shutdownOnce.Do(func() {
		v.salts.Shutdown()
		v.discovery.Shutdown()
	})
}

// failSpan marks the span failed with the result's sanitized message.
func (v *Validator) failSpan(span trace.Span, result ValidationResult) ValidationResult {
	span.SetStatus(codes.Error, result.Error)
	return result
}
