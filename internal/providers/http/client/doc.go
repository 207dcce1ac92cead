// Package client provides the REST client shared by every remote API the
// service talks to (job backend, chat storage, token refresh).
//
// Built on go-resty/resty with:
//   - sonic for JSON bodies
//   - a named circuit breaker per API (4xx responses do not trip it)
//   - an outbound token-bucket limiter
//   - bearer auth from a TokenSource, with one refresh-and-replay on 401
//   - go-retryablehttp retries for idempotent methods only; POST is sent once
//   - trace header propagation from the request context
//
// Remote failures come back as *APIError, which matches ErrNotFound,
// ErrRateLimited and ErrUnauthenticated through errors.Is.
//
// Example Usage:
//
//	c := client.NewClient(client.Config{Name: "jobs", BaseURL: cfg.Backend.BaseURL},
//	    client.WithTokens(identity), client.WithMetrics(metrics))
//	var out struct{ ID string `json:"id"` }
//	err := c.Post(ctx, "submit", "/api/v1/jobs/", req, &out)
package client
