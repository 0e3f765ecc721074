// Package secret resolves configuration values that name secrets instead of
// containing them.
//
// A value is first expanded with ExpandEnvStrict, then any secret
// references in it are replaced by what their provider returns:
//
//	client_secret = "secretref:env:APP_CLIENT_SECRET"
//	seal_key      = "secretref:file:/run/secrets/session-key"
//	header        = "Bearer secretref:env:STATIC_TOKEN"
//
// NewDefaultResolver registers the env and file providers.
package secret
