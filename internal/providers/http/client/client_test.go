package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/chatsync/internal/infrastructure/resilience"
)

type staticTokens struct {
	mu        sync.Mutex
	token     string
	refreshed string
	refreshes int
	fail      bool
}

func (s *staticTokens) Token() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.token != ""
}

func (s *staticTokens) Refresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes++
	if s.fail {
		return "", errors.New("refresh rejected")
	}
	s.token = s.refreshed
	return s.token, nil
}

func newTestClient(t *testing.T, handler http.HandlerFunc, retries int, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{Name: "test", BaseURL: srv.URL, Timeout: 2 * time.Second, Retries: retries}, opts...)
}

func TestClientDecodesJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "folder-1", r.URL.Query().Get("folder"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"42","status":"IN_QUEUE"}`))
	}, 0, WithTokens(&staticTokens{token: "tok"}))

	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	err := c.Get(context.Background(), "get", "/things/", map[string]string{"folder": "folder-1"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "42", out.ID)
	assert.Equal(t, "IN_QUEUE", out.Status)
}

func TestClientRequiresCredential(t *testing.T) {
	var hits int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}, 0, WithTokens(&staticTokens{}))

	err := c.Post(context.Background(), "submit", "/jobs/", map[string]string{}, nil)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits), "no request without a credential")
}

func TestClientRefreshesOnceOn401(t *testing.T) {
	tokens := &staticTokens{token: "stale", refreshed: "fresh"}
	var hits int32

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}, 0, WithTokens(tokens))

	var out map[string]bool
	err := c.Get(context.Background(), "get", "/me/", nil, &out)
	require.NoError(t, err)
	assert.True(t, out["ok"])
	assert.Equal(t, 1, tokens.refreshes)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestClientRefreshFailure(t *testing.T) {
	tokens := &staticTokens{token: "stale", fail: true}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, 0, WithTokens(tokens))

	err := c.Get(context.Background(), "get", "/me/", nil, nil)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestClientErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
		message  string
	}{
		{name: "not found", status: http.StatusNotFound, body: `{"detail":"Not found."}`, sentinel: ErrNotFound, message: "Not found."},
		{name: "rate limited", status: http.StatusTooManyRequests, sentinel: ErrRateLimited, message: ErrRateLimited.Error()},
		{name: "validation", status: http.StatusBadRequest, body: `{"error":"model_id is required"}`, message: "model_id is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, 0)

			err := c.Post(context.Background(), "submit", "/jobs/", map[string]string{}, nil)
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
			assert.Equal(t, tt.message, Message(err))
		})
	}
}

func TestClientRetriesOnlyIdempotentRequests(t *testing.T) {
	var gets, posts int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			if atomic.AddInt32(&gets, 1) < 2 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = w.Write([]byte(`{}`))
		case http.MethodPost:
			atomic.AddInt32(&posts, 1)
			w.WriteHeader(http.StatusBadGateway)
		}
	}, 2)

	require.NoError(t, c.Get(context.Background(), "list", "/chats/", nil, nil))
	assert.Equal(t, int32(2), atomic.LoadInt32(&gets))

	err := c.Post(context.Background(), "create", "/chats/", map[string]string{"title": "x"}, nil)
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&posts), "POST must be sent once")
}

func TestClientBreakerIgnoresClientErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}, 0)

	for i := 0; i < 10; i++ {
		_ = c.Post(context.Background(), "submit", "/jobs/", map[string]string{}, nil)
	}
	assert.Equal(t, resilience.StateClosed, c.BreakerState())
}

func TestClientBreakerOpensOnServerErrors(t *testing.T) {
	var hits int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}, 0)

	for i := 0; i < 5; i++ {
		_ = c.Post(context.Background(), "submit", "/jobs/", map[string]string{}, nil)
	}
	require.Equal(t, resilience.StateOpen, c.BreakerState())

	err := c.Post(context.Background(), "submit", "/jobs/", map[string]string{}, nil)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(5), atomic.LoadInt32(&hits))
}

func TestClientCancelledContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Get(ctx, "get", "/x/", nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
