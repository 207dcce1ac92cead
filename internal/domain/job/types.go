package job

import (
	"context"
	"time"

	"github.com/GriffinCanCode/AgentOS/chatsync/internal/shared/types"
)

// State is the lifecycle state of one job
type State string

const (
	StateSubmitted State = "SUBMITTED"
	StatePolling   State = "POLLING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
	StateAborted   State = "ABORTED"
	StateTimedOut  State = "TIMED_OUT"
)

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateAborted, StateTimedOut:
		return true
	}
	return false
}

// Client is the remote job backend
type Client interface {
	Submit(ctx context.Context, req types.JobRequest) (string, error)
	Poll(ctx context.Context, jobID string) (*types.JobDetail, error)
}

// Sink receives message patches addressed by session and message id
type Sink interface {
	PatchMessage(sessionID, messageID string, patch types.MessagePatch) error
}

// Notifier surfaces transient notices to the user
type Notifier interface {
	Notify(n types.Notification)
}

// Target is the message a job's result belongs to
type Target struct {
	SessionID string     `json:"session_id"`
	MessageID string     `json:"message_id"`
	Kind      types.Kind `json:"kind"`
	// StartedAt anchors the wall-clock ceiling
	StartedAt time.Time `json:"started_at"`
}

// Handle links a backend job to its target message
type Handle struct {
	JobID string `json:"job_id"`
	Target
}

// Policy is the polling cadence and ceiling of one kind
type Policy struct {
	Interval time.Duration
	Timeout  time.Duration
}

// DefaultPolicies returns the built-in cadence per kind
func DefaultPolicies() map[types.Kind]Policy {
	return map[types.Kind]Policy{
		types.KindText:  {Interval: 1500 * time.Millisecond, Timeout: 3 * time.Minute},
		types.KindImage: {Interval: 1500 * time.Millisecond, Timeout: 2 * time.Minute},
		types.KindVideo: {Interval: 2 * time.Second, Timeout: 10 * time.Minute},
	}
}

// Texts are the user-facing strings written into terminal messages
type Texts struct {
	ImageDone    string
	VideoDone    string
	ImageFailed  string
	VideoFailed  string
	TextFailed   string
	SubmitFailed string
	// TimedOut is formatted with the ceiling
	TimedOut      string
	EmptyResult   string
	StoppedSuffix string
	Stopped       string
}

// DefaultTexts returns the built-in English strings
func DefaultTexts() Texts {
	return Texts{
		ImageDone:     "Image generated successfully.",
		VideoDone:     "Video generated successfully.",
		ImageFailed:   "Image generation failed.",
		VideoFailed:   "Video generation failed.",
		TextFailed:    "The model could not generate a response.",
		SubmitFailed:  "Could not start generation",
		TimedOut:      "Generation timed out after %s. The job may still finish on the server.",
		EmptyResult:   "The job finished without a result.",
		StoppedSuffix: " [stopped]",
		Stopped:       "Generation stopped",
	}
}
