// Package config loads the apisession TOML configuration.
//
// Every string value may reference the environment (${VAR}) or a secret
// (secretref:env:NAME, secretref:file:PATH); see package secret. Keys that
// are absent take the defaults in Default.
//
//	[client]
//	base_url = "https://api.example.com/v1"
//	timeout  = "30s"
//
//	[session]
//	store    = "file"
//	path     = "~/.config/apisession/session.json"
//	seal_key = "secretref:env:APISESSION_SEAL_KEY"
//
//	[identity]
//	issuer        = "https://id.example.com"
//	client_id     = "cli"
//	client_secret = "secretref:file:client_secret"
//	verifier      = "jwks"
package config
