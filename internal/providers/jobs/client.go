package jobs

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/GriffinCanCode/AgentOS/chatsync/internal/shared/types"
)

const (
	jobsPath     = "/api/v1/jobs/"
	completePath = "/api/v1/chat/complete/"

	defaultTemperature = 0.7
	defaultMaxTokens   = 1024
)

// ErrMissingJobID is returned when the backend accepts a job without an id
var ErrMissingJobID = errors.New("job backend returned no job id")

// Doer is the subset of the REST client the job client needs
type Doer interface {
	Get(ctx context.Context, operation, path string, query map[string]string, out interface{}) error
	Post(ctx context.Context, operation, path string, body, out interface{}) error
}

// HistoryEntry is one prior turn sent with a completion request
type HistoryEntry struct {
	Role    types.Role `json:"role"`
	Content string     `json:"content"`
}

// CompletionRequest is a synchronous text completion
type CompletionRequest struct {
	Provider        string         `json:"provider"`
	ModelID         string         `json:"model_id"`
	InputText       string         `json:"input_text"`
	SystemPrompt    string         `json:"system_prompt,omitempty"`
	History         []HistoryEntry `json:"history"`
	Temperature     float64        `json:"temperature"`
	MaxOutputTokens int            `json:"max_output_tokens"`
}

// Client submits and polls generation jobs. It holds no state; every
// call is a single round trip.
type Client struct {
	http Doer
}

// NewClient creates a job client. The Doer should be configured without
// retries so a submission is never duplicated.
func NewClient(http Doer) *Client {
	return &Client{http: http}
}

// Submit creates a job and returns its id
func (c *Client) Submit(ctx context.Context, req types.JobRequest) (string, error) {
	if req.Arguments == nil {
		req.Arguments = map[string]interface{}{}
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := c.http.Post(ctx, "submit", jobsPath, req, &out); err != nil {
		return "", fmt.Errorf("failed to submit %s job: %w", req.ModelID, err)
	}
	if out.ID == "" {
		return "", ErrMissingJobID
	}
	return out.ID, nil
}

// Poll fetches the current status of a job
func (c *Client) Poll(ctx context.Context, jobID string) (*types.JobDetail, error) {
	var out types.JobDetail
	if err := c.http.Get(ctx, "poll", jobsPath+url.PathEscape(jobID)+"/", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to poll job %s: %w", jobID, err)
	}
	return &out, nil
}

// Complete runs a synchronous text completion and returns the text
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if req.Temperature == 0 {
		req.Temperature = defaultTemperature
	}
	if req.MaxOutputTokens == 0 {
		req.MaxOutputTokens = defaultMaxTokens
	}
	if req.History == nil {
		req.History = []HistoryEntry{}
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := c.http.Post(ctx, "complete", completePath, req, &out); err != nil {
		return "", fmt.Errorf("failed to complete with %s: %w", req.ModelID, err)
	}
	return out.Text, nil
}
