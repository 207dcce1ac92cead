package jobs

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/chatsync/internal/providers/http/client"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/shared/types"
)

func newJobClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(client.NewClient(client.Config{Name: "jobs", BaseURL: srv.URL, Timeout: time.Second}))
}

func TestSubmit(t *testing.T) {
	c := newJobClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/jobs/", r.URL.Path)

		body, _ := io.ReadAll(r.Body)
		var req types.JobRequest
		require.NoError(t, sonic.Unmarshal(body, &req))
		assert.Equal(t, "fal", req.Provider)
		assert.Equal(t, "fal-ai/flux-2", req.ModelID)
		assert.Equal(t, "a cat", req.Arguments["prompt"])
		assert.True(t, req.StoreResult)

		_, _ = w.Write([]byte(`{"id":"job-1"}`))
	})

	id, err := c.Submit(context.Background(), types.JobRequest{
		Provider:    "fal",
		ModelID:     "fal-ai/flux-2",
		Arguments:   map[string]interface{}{"prompt": "a cat"},
		StoreResult: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)
}

func TestSubmitMissingID(t *testing.T) {
	c := newJobClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := c.Submit(context.Background(), types.JobRequest{ModelID: "m"})
	assert.ErrorIs(t, err, ErrMissingJobID)
}

func TestSubmitIsNotRetried(t *testing.T) {
	var hits int32
	c := newJobClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.Submit(context.Background(), types.JobRequest{ModelID: "m"})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestPoll(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		phase types.Phase
		check func(t *testing.T, d *types.JobDetail)
	}{
		{
			name:  "queued",
			body:  `{"status":"IN_QUEUE","progress":40,"estimated_time":12}`,
			phase: types.PhasePending,
			check: func(t *testing.T, d *types.JobDetail) {
				require.NotNil(t, d.Progress)
				assert.Equal(t, 40, *d.Progress)
				require.NotNil(t, d.EstimatedTime)
				assert.Equal(t, 12, *d.EstimatedTime)
			},
		},
		{
			name:  "completed",
			body:  `{"status":"COMPLETED","result":{"url":"https://cdn/x.png"}}`,
			phase: types.PhaseCompleted,
			check: func(t *testing.T, d *types.JobDetail) {
				require.NotNil(t, d.Result)
				assert.Equal(t, "https://cdn/x.png", d.Result.URL)
			},
		},
		{
			name:  "failed",
			body:  `{"status":"FAILED","error":"nsfw content"}`,
			phase: types.PhaseFailed,
			check: func(t *testing.T, d *types.JobDetail) {
				assert.Equal(t, "nsfw content", d.Error)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newJobClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v1/jobs/job-7/", r.URL.Path)
				_, _ = w.Write([]byte(tt.body))
			})

			d, err := c.Poll(context.Background(), "job-7")
			require.NoError(t, err)
			assert.Equal(t, tt.phase, d.Status.Phase())
			tt.check(t, d)
		})
	}
}

func TestComplete(t *testing.T) {
	c := newJobClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/chat/complete/", r.URL.Path)

		body, _ := io.ReadAll(r.Body)
		var req CompletionRequest
		require.NoError(t, sonic.Unmarshal(body, &req))
		assert.Equal(t, 0.7, req.Temperature)
		assert.Equal(t, 1024, req.MaxOutputTokens)
		assert.NotNil(t, req.History)

		_, _ = w.Write([]byte(`{"text":"hello"}`))
	})

	text, err := c.Complete(context.Background(), CompletionRequest{ModelID: "openai/gpt-4o-mini", InputText: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}
