// Package session manages a single authenticated session for an API client.
//
// A Manager owns three things: the TokenStore whose value is attached to
// outgoing requests, the current Identity, and the Snapshot kept in a
// Persistence adapter across restarts. Credential exchanges are delegated
// to an IdentityProvider.
//
// Lifecycle:
//
//	Uninitialized --Initialize--> Initializing --> Authenticated | Unauthenticated
//	Unauthenticated --Login--> Authenticated
//	Authenticated --Refresh--> Refreshing --> Authenticated | Unauthenticated
//	Authenticated --401, no refresh--> Expired
//	any --Logout--> Unauthenticated
//
// Wire a manager to a client once at startup:
//
//	m.Attach(c)        // Authorization header + 401 handling
//	m.Initialize(ctx)  // never fails; anonymous on any problem
//
// Tokens never appear in logs or formatted output; see Tokens.String.
package session
