package config

import "errors"

// Errors returned by Load and Validate.
var (
	ErrUnknownKeys      = errors.New("config: unknown keys")
	ErrMissingBaseURL   = errors.New("config: client.base_url is required")
	ErrInvalidBaseURL   = errors.New("config: client.base_url must be an absolute http(s) URL")
	ErrInvalidDuration  = errors.New("config: durations must be positive")
	ErrInvalidRetries   = errors.New("config: retry counts must not be negative")
	ErrInvalidStore     = errors.New("config: session.store must be memory, file or redis")
	ErrMissingPath      = errors.New("config: session.path is required for the file store")
	ErrMissingRedisAddr = errors.New("config: session.redis_addr is required for the redis store")
	ErrMissingKey       = errors.New("config: session.key must not be empty")
	ErrMissingTokenURL  = errors.New("config: identity.token_url or identity.issuer is required")
	ErrInvalidVerifier  = errors.New("config: identity.verifier must be jwks, hmac or introspection")
	ErrVerifierSetting  = errors.New("config: identity verifier setting missing")
)
