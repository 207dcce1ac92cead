package types

import "time"

// JobStatus is the status reported by the job backend
type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobSubmitted  JobStatus = "SUBMITTED"
	JobInQueue    JobStatus = "IN_QUEUE"
	JobInProgress JobStatus = "IN_PROGRESS"
	JobCompleted  JobStatus = "COMPLETED"
	JobFailed     JobStatus = "FAILED"
)

// Phase collapses backend statuses into pending, completed or failed
type Phase string

const (
	PhasePending   Phase = "pending"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
)

// Phase returns the coarse phase of a backend status
func (s JobStatus) Phase() Phase {
	switch s {
	case JobCompleted:
		return PhaseCompleted
	case JobFailed:
		return PhaseFailed
	default:
		return PhasePending
	}
}

// JobRequest is the payload submitted to the job backend
type JobRequest struct {
	Provider    string                 `json:"provider"`
	ModelID     string                 `json:"model_id"`
	Arguments   map[string]interface{} `json:"arguments"`
	StoreResult bool                   `json:"store_result"`
}

// JobResult is the output of a completed job
type JobResult struct {
	URL  string `json:"url,omitempty"`
	Text string `json:"text,omitempty"`
}

// JobDetail is a single poll response
type JobDetail struct {
	Status        JobStatus  `json:"status"`
	Result        *JobResult `json:"result,omitempty"`
	Error         string     `json:"error,omitempty"`
	Progress      *int       `json:"progress,omitempty"`
	EstimatedTime *int       `json:"estimated_time,omitempty"`
}

// NotificationLevel grades a user-facing notice
type NotificationLevel string

const (
	LevelInfo    NotificationLevel = "info"
	LevelWarning NotificationLevel = "warning"
	LevelError   NotificationLevel = "error"
)

// Notification is a transient user-facing notice
type Notification struct {
	Level     NotificationLevel `json:"level"`
	Title     string            `json:"title"`
	Detail    string            `json:"detail,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	JobID     string            `json:"job_id,omitempty"`
	Time      time.Time         `json:"time"`
}

// Model describes a generation model
type Model struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Provider string `json:"provider" yaml:"provider"`
	Kind     Kind   `json:"kind" yaml:"kind"`
	Default  bool   `json:"default,omitempty" yaml:"default"`
}
