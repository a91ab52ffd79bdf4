// Package auth authenticates ractl against a Resource Allocator server. It
// holds the per-server, per-user token cache, the single-shot loopback
// listener that captures the authorization code of an interactive browser
// login, and the Authenticator that decides between reusing a cached token
// and performing a fresh password or browser login.
package auth
