package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jonwraymond/apisession/observe"
	"github.com/jonwraymond/apisession/persist"
	"github.com/jonwraymond/apisession/resilience"
	"github.com/jonwraymond/apisession/secret"
)

// Session store kinds.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// Access token verifier kinds.
const (
	VerifierJWKS          = "jwks"
	VerifierHMAC          = "hmac"
	VerifierIntrospection = "introspection"
)

// Config is the complete apisession configuration.
type Config struct {
	Client   ClientConfig   `toml:"client"`
	Session  SessionConfig  `toml:"session"`
	Identity IdentityConfig `toml:"identity"`
	Observe  ObserveConfig  `toml:"observe"`
}

// ClientConfig configures the resilient HTTP client. A retry count of zero
// keeps the resilience default.
type ClientConfig struct {
	BaseURL        string            `toml:"base_url"`
	Timeout        time.Duration     `toml:"timeout"`
	ReadRetries    int               `toml:"read_retries"`
	WriteRetries   int               `toml:"write_retries"`
	RetryBaseDelay time.Duration     `toml:"retry_base_delay"`
	MaxRetryDelay  time.Duration     `toml:"max_retry_delay"`
	UserAgent      string            `toml:"user_agent"`
	Headers        map[string]string `toml:"headers"`
}

// SessionConfig configures session persistence and refresh behavior.
type SessionConfig struct {
	Store                 string        `toml:"store"`
	Path                  string        `toml:"path"`
	RedisAddr             string        `toml:"redis_addr"`
	RedisPassword         string        `toml:"redis_password"`
	RedisDB               int           `toml:"redis_db"`
	Key                   string        `toml:"key"`
	TTL                   time.Duration `toml:"ttl"`
	SealKey               string        `toml:"seal_key"`
	RefreshOnUnauthorized bool          `toml:"refresh_on_unauthorized"`
}

// IdentityConfig configures the OAuth 2.0 identity provider.
type IdentityConfig struct {
	Issuer           string     `toml:"issuer"`
	TokenURL         string     `toml:"token_url"`
	RevocationURL    string     `toml:"revocation_url"`
	ClientID         string     `toml:"client_id"`
	ClientSecret     string     `toml:"client_secret"`
	Scopes           []string   `toml:"scopes"`
	Verifier         string     `toml:"verifier"`
	JWKSURL          string     `toml:"jwks_url"`
	HMACSecret       string     `toml:"hmac_secret"`
	IntrospectionURL string     `toml:"introspection_url"`
	Audience         string     `toml:"audience"`
	Claims           ClaimNames `toml:"claims"`
}

// ClaimNames selects which token claims populate the identity.
type ClaimNames struct {
	ID    string `toml:"id"`
	Email string `toml:"email"`
	Name  string `toml:"name"`
	Role  string `toml:"role"`
}

// ObserveConfig configures logging, tracing and metrics.
type ObserveConfig struct {
	ServiceName     string  `toml:"service_name"`
	LogLevel        string  `toml:"log_level"`
	TracingExporter string  `toml:"tracing_exporter"`
	MetricsExporter string  `toml:"metrics_exporter"`
	SamplePct       float64 `toml:"sample_pct"`
}

// Default returns the configuration used for absent keys.
func Default() Config {
	return Config{
		Client: ClientConfig{
			Timeout:        resilience.DefaultTimeout,
			ReadRetries:    resilience.DefaultReadRetries,
			WriteRetries:   resilience.DefaultWriteRetries,
			RetryBaseDelay: resilience.DefaultBaseDelay,
			UserAgent:      "apisession",
		},
		Session: SessionConfig{
			Store:                 StoreMemory,
			Key:                   persist.DefaultKey,
			RefreshOnUnauthorized: true,
		},
		Identity: IdentityConfig{
			Verifier: VerifierJWKS,
		},
		Observe: ObserveConfig{
			ServiceName:     "apisession",
			LogLevel:        "info",
			TracingExporter: "none",
			MetricsExporter: "none",
			SamplePct:       1.0,
		},
	}
}

// Load reads path, resolves secrets and validates the result. Relative
// secretref:file paths are taken from the config file's directory.
func Load(ctx context.Context, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	resolver := secret.NewDefaultResolver(filepath.Dir(path))
	defer func() { _ = resolver.Close() }()

	cfg, err := Parse(ctx, string(data), resolver)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML text over Default, resolves secrets with r and
// validates the result.
func Parse(ctx context.Context, text string, r *secret.Resolver) (*Config, error) {
	cfg := Default()
	meta, err := toml.Decode(text, &cfg)
	if err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownKeys, strings.Join(keys, ", "))
	}

	if err := cfg.resolve(ctx, r); err != nil {
		return nil, err
	}
	cfg.Session.Path = expandHome(cfg.Session.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolve replaces secret references in every string setting.
func (c *Config) resolve(ctx context.Context, r *secret.Resolver) error {
	fields := []struct {
		name string
		v    *string
	}{
		{"client.base_url", &c.Client.BaseURL},
		{"client.user_agent", &c.Client.UserAgent},
		{"session.path", &c.Session.Path},
		{"session.redis_addr", &c.Session.RedisAddr},
		{"session.redis_password", &c.Session.RedisPassword},
		{"session.key", &c.Session.Key},
		{"session.seal_key", &c.Session.SealKey},
		{"identity.issuer", &c.Identity.Issuer},
		{"identity.token_url", &c.Identity.TokenURL},
		{"identity.revocation_url", &c.Identity.RevocationURL},
		{"identity.client_id", &c.Identity.ClientID},
		{"identity.client_secret", &c.Identity.ClientSecret},
		{"identity.jwks_url", &c.Identity.JWKSURL},
		{"identity.hmac_secret", &c.Identity.HMACSecret},
		{"identity.introspection_url", &c.Identity.IntrospectionURL},
		{"identity.audience", &c.Identity.Audience},
	}
	for _, f := range fields {
		v, err := r.ResolveValue(ctx, *f.v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", f.name, err)
		}
		*f.v = v
	}

	headers, err := r.ResolveMap(ctx, c.Client.Headers)
	if err != nil {
		return fmt.Errorf("config: client.headers: %w", err)
	}
	c.Client.Headers = headers

	scopes, err := r.ResolveSlice(ctx, c.Identity.Scopes)
	if err != nil {
		return fmt.Errorf("config: identity.scopes: %w", err)
	}
	c.Identity.Scopes = scopes
	return nil
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Client.BaseURL == "" {
		return ErrMissingBaseURL
	}
	if u, err := url.Parse(c.Client.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, c.Client.BaseURL)
	}
	if c.Client.Timeout <= 0 || c.Client.RetryBaseDelay <= 0 || c.Client.MaxRetryDelay < 0 || c.Session.TTL < 0 {
		return ErrInvalidDuration
	}
	if c.Client.ReadRetries < 0 || c.Client.WriteRetries < 0 {
		return ErrInvalidRetries
	}

	switch c.Session.Store {
	case StoreMemory:
	case StoreFile:
		if c.Session.Path == "" {
			return ErrMissingPath
		}
	case StoreRedis:
		if c.Session.RedisAddr == "" {
			return ErrMissingRedisAddr
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStore, c.Session.Store)
	}
	if c.Session.Key == "" {
		return ErrMissingKey
	}

	if c.Identity.TokenURL == "" && c.Identity.Issuer == "" {
		return ErrMissingTokenURL
	}
	switch c.Identity.Verifier {
	case VerifierJWKS:
		if c.Identity.JWKSURL == "" && c.Identity.Issuer == "" {
			return fmt.Errorf("%w: jwks needs identity.jwks_url or identity.issuer", ErrVerifierSetting)
		}
	case VerifierHMAC:
		if c.Identity.HMACSecret == "" {
			return fmt.Errorf("%w: hmac needs identity.hmac_secret", ErrVerifierSetting)
		}
	case VerifierIntrospection:
		if c.Identity.IntrospectionURL == "" {
			return fmt.Errorf("%w: introspection needs identity.introspection_url", ErrVerifierSetting)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidVerifier, c.Identity.Verifier)
	}

	obs := c.ObserveConfig()
	return obs.Validate()
}

// ObserveConfig converts the [observe] section for observe.NewObserver.
func (c *Config) ObserveConfig() observe.Config {
	o := c.Observe
	return observe.Config{
		ServiceName: o.ServiceName,
		Tracing: observe.TracingConfig{
			Enabled:   o.TracingExporter != "" && o.TracingExporter != "none",
			Exporter:  o.TracingExporter,
			SamplePct: o.SamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  o.MetricsExporter != "" && o.MetricsExporter != "none",
			Exporter: o.MetricsExporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: o.LogLevel != "" && o.LogLevel != "off",
			Level:   o.LogLevel,
		},
	}
}

// RetryConfig converts the [client] retry settings.
func (c *Config) RetryConfig() resilience.RetryConfig {
	return resilience.RetryConfig{
		ReadRetries:  c.Client.ReadRetries,
		WriteRetries: c.Client.WriteRetries,
		BaseDelay:    c.Client.RetryBaseDelay,
		MaxDelay:     c.Client.MaxRetryDelay,
	}
}

// Scopes returns the configured scopes, or the OpenID defaults when an
// issuer is set and none are configured.
func (c *Config) Scopes() []string {
	if len(c.Identity.Scopes) > 0 || c.Identity.Issuer == "" {
		return slices.Clone(c.Identity.Scopes)
	}
	return []string{"openid", "profile", "email", "offline_access"}
}

func expandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}
