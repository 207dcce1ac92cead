package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/AgentOS/chatsync/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/infrastructure/tracing"
)

// TokenSource supplies the bearer credential for outbound calls
type TokenSource interface {
	// Token returns the current access token, false when signed out
	Token() (string, bool)
	// Refresh obtains a new access token after the backend rejected the old one
	Refresh(ctx context.Context) (string, error)
}

// Config describes one remote API
type Config struct {
	// Name labels the breaker, metrics and logs ("jobs", "storage", "auth")
	Name    string
	BaseURL string
	Timeout time.Duration
	// Retries applies to idempotent requests only. Zero disables retries.
	Retries int
	// RequestsPerSec limits outbound calls. Zero means unlimited.
	RequestsPerSec float64
}

// Client wraps resty with rate limiting, circuit breaker and bearer auth
type Client struct {
	Resty   *resty.Client
	Limiter *rate.Limiter
	Breaker *resilience.Breaker

	name    string
	tokens  TokenSource
	metrics *monitoring.Metrics
	logger  *logging.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithTokens attaches a credential source. Without one, requests are sent
// unauthenticated.
func WithTokens(tokens TokenSource) Option {
	return func(c *Client) { c.tokens = tokens }
}

// WithMetrics records call outcomes and breaker state
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(c *Client) { c.metrics = metrics }
}

// WithLogger sets the logger
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a client for one remote API
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := &Client{
		name:   cfg.Name,
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("http." + cfg.Name)

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.Retries
	retryClient.RetryWaitMin = 250 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil
	retryClient.CheckRetry = idempotentRetryPolicy
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	restyClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "chatsync/1.0").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)

	if cfg.Retries > 0 {
		restyClient.SetTransport(&retryablehttp.RoundTripper{Client: retryClient})
	} else {
		restyClient.SetTransport(retryClient.HTTPClient.Transport)
	}

	limit := rate.Inf
	burst := 0
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
		burst = int(cfg.RequestsPerSec) + 1
	}

	c.Resty = restyClient
	c.Limiter = rate.NewLimiter(limit, burst)
	c.Breaker = resilience.New(cfg.Name, resilience.Settings{
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5 ||
				(counts.Requests >= 20 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.6)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || clientFault(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to resilience.State) {
			c.logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			c.metrics.SetBreakerState(name, int(to))
		},
	})

	return c
}

// Name returns the API label
func (c *Client) Name() string {
	return c.name
}

// Get issues a GET and decodes the JSON response into out
func (c *Client) Get(ctx context.Context, operation, path string, query map[string]string, out interface{}) error {
	return c.Do(ctx, Request{Operation: operation, Method: http.MethodGet, Path: path, Query: query, Out: out})
}

// Post issues a POST. It is never retried.
func (c *Client) Post(ctx context.Context, operation, path string, body, out interface{}) error {
	return c.Do(ctx, Request{Operation: operation, Method: http.MethodPost, Path: path, Body: body, Out: out})
}

// Put issues a PUT
func (c *Client) Put(ctx context.Context, operation, path string, body, out interface{}) error {
	return c.Do(ctx, Request{Operation: operation, Method: http.MethodPut, Path: path, Body: body, Out: out})
}

// Delete issues a DELETE
func (c *Client) Delete(ctx context.Context, operation, path string) error {
	return c.Do(ctx, Request{Operation: operation, Method: http.MethodDelete, Path: path})
}

// Request describes one call
type Request struct {
	Operation string
	Method    string
	Path      string
	Query     map[string]string
	Body      interface{}
	Out       interface{}
}

// Do executes the request through the limiter and breaker. A 401 triggers a
// single token refresh and replay.
func (c *Client) Do(ctx context.Context, r Request) error {
	timer := monitoring.NewTimer(c.metrics, c.name, r.Operation)

	_, err := resilience.Do(c.Breaker, func() (struct{}, error) {
		return struct{}{}, c.execute(ctx, r)
	})

	switch {
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		timer.Stop("rejected")
		return fmt.Errorf("%s %s: %w: %w", r.Method, r.Path, ErrUnavailable, err)
	case err != nil:
		timer.Stop("error")
		return err
	}

	timer.Stop("success")
	return nil
}

func (c *Client) execute(ctx context.Context, r Request) error {
	if err := c.Limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	token, err := c.token()
	if err != nil {
		return err
	}

	resp, err := c.send(ctx, r, token)
	if err != nil {
		return err
	}

	if resp.StatusCode() == http.StatusUnauthorized && c.tokens != nil {
		c.logger.Debug("Access token rejected, refreshing", zap.String("path", r.Path))
		token, err = c.tokens.Refresh(ctx)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrUnauthenticated, err)
		}
		if resp, err = c.send(ctx, r, token); err != nil {
			return err
		}
	}

	if resp.IsError() {
		return c.apiError(r, resp)
	}

	if r.Out != nil && len(resp.Body()) > 0 {
		if err := sonic.Unmarshal(resp.Body(), r.Out); err != nil {
			return fmt.Errorf("failed to decode %s %s response: %w", r.Method, r.Path, err)
		}
	}
	return nil
}

func (c *Client) token() (string, error) {
	if c.tokens == nil {
		return "", nil
	}
	token, ok := c.tokens.Token()
	if !ok || token == "" {
		return "", ErrUnauthenticated
	}
	return token, nil
}

func (c *Client) send(ctx context.Context, r Request, token string) (*resty.Response, error) {
	if isIdempotent(r.Method) {
		ctx = markIdempotent(ctx)
	}

	req := c.Resty.R().SetContext(ctx)
	tracing.Inject(ctx, req.Header)
	if token != "" {
		req.SetAuthToken(token)
	}
	if len(r.Query) > 0 {
		req.SetQueryParams(r.Query)
	}
	if r.Body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(r.Body)
	}

	resp, err := req.Execute(r.Method, r.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to %s %s: %w", r.Method, r.Path, err)
	}
	return resp, nil
}

func (c *Client) apiError(r Request, resp *resty.Response) error {
	apiErr := &APIError{
		Method: r.Method,
		Path:   r.Path,
		Status: resp.StatusCode(),
	}

	var body struct {
		Detail  string `json:"detail"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := sonic.Unmarshal(resp.Body(), &body); err == nil {
		for _, msg := range []string{body.Detail, body.Error, body.Message} {
			if msg != "" {
				apiErr.Message = msg
				break
			}
		}
	}

	if apiErr.Status == http.StatusTooManyRequests {
		apiErr.Message = ErrRateLimited.Error()
	}
	return apiErr
}

// BreakerState returns the current circuit breaker state
func (c *Client) BreakerState() resilience.State {
	return c.Breaker.State()
}

type idempotentKey struct{}

func markIdempotent(ctx context.Context) context.Context {
	return context.WithValue(ctx, idempotentKey{}, true)
}

func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// idempotentRetryPolicy only retries requests marked idempotent; creates
// and job submissions must reach the backend at most once.
func idempotentRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if marked, _ := ctx.Value(idempotentKey{}).(bool); !marked {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}
