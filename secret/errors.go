package secret

import "errors"

// Errors returned by this package.
var (
	ErrMissingEnv       = errors.New("secret: missing required environment variables")
	ErrUnknownProvider  = errors.New("secret: provider is not registered")
	ErrEmptySecret      = errors.New("secret: provider returned empty value")
	ErrInvalidReference = errors.New("secret: invalid reference")
	ErrNotFound         = errors.New("secret: not found")
)
