// Package auth holds the signed-in identity and keeps its bearer token
// fresh.
//
// The provider is the TokenSource for every authenticated REST client.
// Identity changes fire hooks so that cached per-user state (sessions,
// job loops, the active view) is reset before the next user sees it.
package auth
