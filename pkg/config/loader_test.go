package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/StricklySoft/stricklysoft-auth/pkg/errors"
)

// guardTestConfig mirrors the shape of the auth guard configuration:
// a flat set of provider fields plus a nested breaker section.
type guardTestConfig struct {
	ServerURL string        `env:"SERVER_URL" yaml:"server_url"`
	Realm     string        `env:"REALM" envDefault:"master" yaml:"realm"`
	Timeout   time.Duration `env:"HTTP_TIMEOUT" envDefault:"8s" yaml:"http_timeout"`
	Debug     bool          `env:"DEBUG" envDefault:"false" yaml:"debug"`
	Realms    []string      `env:"REALMS" yaml:"realms"`
	Breaker   struct {
		FailureThreshold int           `env:"FAILURE_THRESHOLD" envDefault:"10" yaml:"failure_threshold"`
		RecoveryTimeout  time.Duration `env:"RECOVERY_TIMEOUT" envDefault:"60s" yaml:"recovery_timeout"`
	} `env:"BREAKER" yaml:"breaker"`
}

type requiredTestConfig struct {
	ServerURL string `env:"SERVER_URL" required:"true"`
}

type validatedTestConfig struct {
	Threshold int `env:"THRESHOLD" envDefault:"10"`
}

func (c *validatedTestConfig) Validate() error {
	if c.Threshold < 1 {
		return sserr.Newf(sserr.CodeValidation,
			"config: threshold must be >= 1, got %d", c.Threshold)
	}
	return nil
}

func TestLoad_AppliesEnvDefaults(t *testing.T) {
	var cfg guardTestConfig
	require.NoError(t, New().Load(&cfg))

	assert.Equal(t, "master", cfg.Realm)
	assert.Equal(t, 8*time.Second, cfg.Timeout)
	assert.Equal(t, 10, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.Breaker.RecoveryTimeout)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("REALM", "production")
	t.Setenv("HTTP_TIMEOUT", "3s")
	t.Setenv("DEBUG", "true")
	t.Setenv("REALMS", "alpha, beta,gamma")
	t.Setenv("BREAKER_FAILURE_THRESHOLD", "5")

	var cfg guardTestConfig
	require.NoError(t, New().Load(&cfg))

	assert.Equal(t, "production", cfg.Realm)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.True(t, cfg.Debug)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, cfg.Realms)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
}

func TestLoad_EnvPrefix(t *testing.T) {
	t.Setenv("KEYCLOAK_REALM", "prefixed")
	t.Setenv("REALM", "unprefixed")

	var cfg guardTestConfig
	require.NoError(t, New().WithEnvPrefix("keycloak").Load(&cfg))
	assert.Equal(t, "prefixed", cfg.Realm)
}

func TestLoad_YAMLFileThenEnvWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "guard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"server_url: https://keycloak.example.com\nrealm: from-file\n"), 0o600))

	t.Setenv("REALM", "from-env")

	var cfg guardTestConfig
	require.NoError(t, New().WithFile(path).Load(&cfg))

	assert.Equal(t, "https://keycloak.example.com", cfg.ServerURL)
	assert.Equal(t, "from-env", cfg.Realm, "env must take precedence over file")
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	var cfg guardTestConfig
	assert.NoError(t, New().WithFile("does-not-exist.yaml").Load(&cfg))
}

func TestLoad_RejectsTraversalAndBadExtension(t *testing.T) {
	var cfg guardTestConfig

	err := New().WithFile("../../etc/passwd.yaml").Load(&cfg)
	require.Error(t, err)
	assert.Equal(t, sserr.CodeInternalConfiguration, sserr.GetCode(err))

	dir := t.TempDir()
	path := filepath.Join(dir, "guard.toml")
	require.NoError(t, os.WriteFile(path, []byte("x = 1"), 0o600))
	err = New().WithFile(path).Load(&cfg)
	require.Error(t, err)
	assert.Equal(t, sserr.CodeInternalConfiguration, sserr.GetCode(err))
}

func TestLoad_RequiredFieldMissing(t *testing.T) {
	var cfg requiredTestConfig
	err := New().Load(&cfg)
	require.Error(t, err)
	assert.Equal(t, sserr.CodeValidationRequired, sserr.GetCode(err))
}

func TestLoad_CustomValidatorRuns(t *testing.T) {
	t.Setenv("THRESHOLD", "0")

	var cfg validatedTestConfig
	err := New().Load(&cfg)
	require.Error(t, err)
	assert.Equal(t, sserr.CodeValidation, sserr.GetCode(err))
}

func TestLoad_RejectsNonStructTargets(t *testing.T) {
	assert.Error(t, New().Load(nil))

	var s string
	assert.Error(t, New().Load(&s))

	var cfg guardTestConfig
	assert.Error(t, New().Load(cfg)) //nolint:govet // deliberately passing by value
}

func TestLoad_BadEnvValueSurfacesFieldAndVar(t *testing.T) {
	t.Setenv("HTTP_TIMEOUT", "not-a-duration")

	var cfg guardTestConfig
	err := New().Load(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP_TIMEOUT")
}

func TestMustLoad_PanicsOnFailure(t *testing.T) {
	assert.Panics(t, func() {
		MustLoad[requiredTestConfig](New())
	})
}

func TestMustLoad_ReturnsPopulatedConfig(t *testing.T) {
	t.Setenv("SERVER_URL", "https://keycloak.example.com")

	cfg := MustLoad[guardTestConfig](New())
	assert.Equal(t, "https://keycloak.example.com", cfg.ServerURL)
}
