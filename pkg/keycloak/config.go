package keycloak

import (
	"net/url"
	"strings"
	"time"

	sserr "github.com/StricklySoft/stricklysoft-auth/pkg/errors"
)

// Secret is a string type that prevents accidental logging of sensitive
// values such as client secrets. Its String and GoString methods return a
// redacted placeholder; use [Secret.Value] to retrieve the actual value.
type Secret string

const secretRedacted = "[REDACTED]"

// String returns "[REDACTED]" to prevent accidental logging of the secret.
func (s Secret) String() string { return secretRedacted }

// GoString returns "[REDACTED]" for fmt.Sprintf("%#v", secret) safety.
func (s Secret) GoString() string { return secretRedacted }

// Value returns the actual secret string. Handle with care.
func (s Secret) Value() string { return string(s) }

// MarshalText implements encoding.TextMarshaler, returning "[REDACTED]"
// so the secret never appears in JSON or YAML output.
func (s Secret) MarshalText() ([]byte, error) { return []byte(secretRedacted), nil }

// maxTokenSize is the maximum accepted token length in bytes. Tokens
// larger than this are rejected before any parsing to bound memory use.
const maxTokenSize = 8192

// Default values for [Config]. Each can be overridden per field.
const (
	// DefaultHTTPTimeout bounds every individual HTTP call to the
	// identity provider (discovery fetch, JWKS fetch, introspection,
	// token grant). An unbounded hang would defeat the circuit breaker.
	DefaultHTTPTimeout = 8 * time.Second

	// DefaultClockSkew is the leeway applied to exp/iat/nbf validation.
	DefaultClockSkew = 30 * time.Second

	// DefaultFailureThreshold is the number of consecutive provider
	// failures that open the circuit.
	DefaultFailureThreshold = 10

	// DefaultRecoveryTimeout is how long the circuit stays open before
	// permitting a single trial call.
	DefaultRecoveryTimeout = 60 * time.Second

	// DefaultMaxRetries bounds retry attempts for transient provider
	// failures within a single gateway call.
	DefaultMaxRetries = 3

	// DefaultCacheBuffer is subtracted from the token's remaining
	// lifetime when computing cache TTLs, so cache entries expire
	// strictly before the token itself in the common case.
	DefaultCacheBuffer = 60 * time.Second

	// DefaultMinJWTTTL is the floor TTL for cached JWT validation
	// results.
	DefaultMinJWTTTL = 60 * time.Second

	// DefaultMinIntrospectionTTL is the floor TTL for cached
	// introspection results. Higher than the JWT floor because
	// introspection is a full provider round trip.
	DefaultMinIntrospectionTTL = 300 * time.Second

	// DefaultSaltRotationInterval is how often the cache-key salt is
	// rotated.
	DefaultSaltRotationInterval = 24 * time.Hour

	// DefaultDiscoveryMaxAge is the hard cap on discovery document age.
	DefaultDiscoveryMaxAge = time.Hour

	// DefaultDiscoveryCacheSize is the maximum number of realms whose
	// discovery documents are cached.
	DefaultDiscoveryCacheSize = 50

	// DefaultDiscoverySweepInterval is how often expired discovery
	// entries are swept in the background.
	DefaultDiscoverySweepInterval = 10 * time.Minute

	// DefaultPublicKeyTTL is how long fetched JWKS public keys are
	// cached per realm and key ID.
	DefaultPublicKeyTTL = time.Hour
)

// Config holds the settings for a [Validator] and its internal components.
// Construct with [DefaultConfig] and override fields, or load from the
// environment with the config package:
//
//	cfg := config.MustLoad[keycloak.Config](config.New().WithEnvPrefix("KEYCLOAK"))
type Config struct {
	// ServerURL is the base URL of the Keycloak server, without a
	// trailing slash (e.g. "https://keycloak.auth.svc.cluster.local").
	// Realm endpoints are derived as <ServerURL>/realms/<realm>/...
	ServerURL string `env:"SERVER_URL" yaml:"server_url" required:"true"`

	// Environment namespaces cache-key salts so instances in different
	// environments never share hash inputs.
	Environment string `env:"ENVIRONMENT" envDefault:"production" yaml:"environment"`

	// HTTPTimeout bounds each individual HTTP call to the provider.
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"8s" yaml:"http_timeout"`

	// ClockSkew is the leeway applied to time-based claim validation.
	ClockSkew time.Duration `env:"CLOCK_SKEW" envDefault:"30s" yaml:"clock_skew"`

	// FailureThreshold is the consecutive-failure count that opens the
	// circuit breaker.
	FailureThreshold int `env:"FAILURE_THRESHOLD" envDefault:"10" yaml:"failure_threshold"`

	// RecoveryTimeout is how long the circuit stays open before a
	// single trial call is permitted.
	RecoveryTimeout time.Duration `env:"RECOVERY_TIMEOUT" envDefault:"60s" yaml:"recovery_timeout"`

	// MaxRetries bounds retries of transient provider failures within
	// one gateway call. Retries never run while the circuit is open.
	MaxRetries int `env:"MAX_RETRIES" envDefault:"3" yaml:"max_retries"`

	// CacheBuffer is subtracted from token lifetime for cache TTLs.
	CacheBuffer time.Duration `env:"CACHE_BUFFER" envDefault:"60s" yaml:"cache_buffer"`

	// MinJWTTTL is the floor TTL for cached JWT validation results.
	MinJWTTTL time.Duration `env:"MIN_JWT_TTL" envDefault:"60s" yaml:"min_jwt_ttl"`

	// MinIntrospectionTTL is the floor TTL for cached introspection
	// results.
	MinIntrospectionTTL time.Duration `env:"MIN_INTROSPECTION_TTL" envDefault:"300s" yaml:"min_introspection_ttl"`

	// SaltRotationInterval is how often the cache-key salt rotates.
	SaltRotationInterval time.Duration `env:"SALT_ROTATION_INTERVAL" envDefault:"24h" yaml:"salt_rotation_interval"`

	// DiscoveryCacheTimeout is the advisory freshness window for cached
	// discovery documents. The effective validity window is
	// min(DiscoveryCacheTimeout, DiscoveryMaxAge).
	DiscoveryCacheTimeout time.Duration `env:"DISCOVERY_CACHE_TIMEOUT" envDefault:"1h" yaml:"discovery_cache_timeout"`

	// DiscoveryMaxAge is the hard cap on discovery document age.
	DiscoveryMaxAge time.Duration `env:"DISCOVERY_MAX_AGE" envDefault:"1h" yaml:"discovery_max_age"`

	// DiscoveryCacheSize is the maximum number of cached realms.
	DiscoveryCacheSize int `env:"DISCOVERY_CACHE_SIZE" envDefault:"50" yaml:"discovery_cache_size"`

	// DiscoverySweepInterval is the background sweep cadence for
	// expired discovery entries. Zero disables the sweep.
	DiscoverySweepInterval time.Duration `env:"DISCOVERY_SWEEP_INTERVAL" envDefault:"10m" yaml:"discovery_sweep_interval"`

	// PublicKeyTTL is how long fetched JWKS keys are cached.
	PublicKeyTTL time.Duration `env:"PUBLIC_KEY_TTL" envDefault:"1h" yaml:"public_key_ttl"`
}

// DefaultConfig returns a Config with production defaults. ServerURL must
// still be set by the caller.
func DefaultConfig() Config {
	return Config{
		Environment:            "production",
		HTTPTimeout:            DefaultHTTPTimeout,
		ClockSkew:              DefaultClockSkew,
		FailureThreshold:       DefaultFailureThreshold,
		RecoveryTimeout:        DefaultRecoveryTimeout,
		MaxRetries:             DefaultMaxRetries,
		CacheBuffer:            DefaultCacheBuffer,
		MinJWTTTL:              DefaultMinJWTTTL,
		MinIntrospectionTTL:    DefaultMinIntrospectionTTL,
		SaltRotationInterval:   DefaultSaltRotationInterval,
		DiscoveryCacheTimeout:  DefaultDiscoveryMaxAge,
		DiscoveryMaxAge:        DefaultDiscoveryMaxAge,
		DiscoveryCacheSize:     DefaultDiscoveryCacheSize,
		DiscoverySweepInterval: DefaultDiscoverySweepInterval,
		PublicKeyTTL:           DefaultPublicKeyTTL,
	}
}

// Validate checks the configuration and applies defaults for zero-valued
// optional fields. A missing or malformed ServerURL is a configuration
// error; the provider base URL cannot be guessed.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return sserr.New(sserr.CodeInternalConfiguration,
			"keycloak: config server_url is required")
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return sserr.Newf(sserr.CodeInternalConfiguration,
			"keycloak: config server_url must be an absolute URL, got %q", c.ServerURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return sserr.Newf(sserr.CodeInternalConfiguration,
			"keycloak: config server_url scheme must be http or https, got %q", u.Scheme)
	}
	c.ServerURL = strings.TrimRight(c.ServerURL, "/")

	if c.Environment == "" {
		c.Environment = "production"
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
	if c.ClockSkew < 0 {
		return sserr.Newf(sserr.CodeInternalConfiguration,
			"keycloak: config clock_skew must not be negative, got %v", c.ClockSkew)
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if c.MaxRetries < 0 {
		return sserr.Newf(sserr.CodeInternalConfiguration,
			"keycloak: config max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.CacheBuffer <= 0 {
		c.CacheBuffer = DefaultCacheBuffer
	}
	if c.MinJWTTTL <= 0 {
		c.MinJWTTTL = DefaultMinJWTTTL
	}
	if c.MinIntrospectionTTL <= 0 {
		c.MinIntrospectionTTL = DefaultMinIntrospectionTTL
	}
	if c.SaltRotationInterval <= 0 {
		c.SaltRotationInterval = DefaultSaltRotationInterval
	}
	if c.DiscoveryCacheTimeout <= 0 {
		c.DiscoveryCacheTimeout = DefaultDiscoveryMaxAge
	}
	if c.DiscoveryMaxAge <= 0 {
		c.DiscoveryMaxAge = DefaultDiscoveryMaxAge
	}
	if c.DiscoveryCacheSize <= 0 {
		c.DiscoveryCacheSize = DefaultDiscoveryCacheSize
	}
	if c.PublicKeyTTL <= 0 {
		c.PublicKeyTTL = DefaultPublicKeyTTL
	}
	return nil
}

// realmURL returns <ServerURL>/realms/<realm>.
func (c *Config) realmURL(realm string) string {
	return c.ServerURL + "/realms/" + url.PathEscape(realm)
}

// discoveryURL returns the realm's OIDC well-known configuration URL.
func (c *Config) discoveryURL(realm string) string {
	return c.realmURL(realm) + "/.well-known/openid-configuration"
}

// ClientConfig identifies the OAuth2 client on whose behalf a token is
// validated or introspected. ClientSecret is required only for
// confidential clients performing introspection or token grants.
type ClientConfig struct {
	// Realm is the Keycloak realm the token was issued in.
	Realm string `env:"REALM" yaml:"realm"`

	// ClientID is the OAuth2 client identifier. JWT audience validation
	// checks the token's aud claim against this value.
	ClientID string `env:"CLIENT_ID" yaml:"client_id"`

	// ClientSecret authenticates confidential clients. Carried in a
	// [Secret] so it never leaks through logging or serialization.
	ClientSecret Secret `env:"CLIENT_SECRET" yaml:"-"`
}

// Validate checks that the client configuration names a realm and client.
func (c ClientConfig) Validate() error {
	if c.Realm == "" {
		return sserr.New(sserr.CodeInternalConfiguration,
			"keycloak: client config realm is required")
	}
	if c.ClientID == "" {
		return sserr.New(sserr.CodeInternalConfiguration,
			"keycloak: client config client_id is required")
	}
	return nil
}
