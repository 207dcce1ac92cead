// Package middleware provides the gin middleware of the HTTP API: CORS and
// per-IP or global rate limiting.
package middleware
