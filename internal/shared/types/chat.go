package types

import "time"

// Role identifies who authored a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Kind is the generation modality of a message
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Valid reports whether the kind is one of the known modalities
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindImage, KindVideo:
		return true
	}
	return false
}

// Message is a single entry in a session transcript
type Message struct {
	ID            string    `json:"id"`
	Role          Role      `json:"role"`
	Content       string    `json:"content"`
	Kind          Kind      `json:"type"`
	MediaURL      string    `json:"mediaUrl,omitempty"`
	JobID         string    `json:"jobId,omitempty"`
	IsStreaming   bool      `json:"isStreaming"`
	Progress      *int      `json:"progress,omitempty"`
	EstimatedTime *int      `json:"estimatedTime,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Pending reports whether the message is a live placeholder owned by a job
func (m Message) Pending() bool {
	return m.IsStreaming && m.JobID != ""
}

// MessagePatch carries optional field updates for a message.
// Nil fields are left untouched.
type MessagePatch struct {
	Role          *Role
	Kind          *Kind
	Content       *string
	AppendContent string
	MediaURL      *string
	JobID         *string
	IsStreaming   *bool
	Progress      *int
	EstimatedTime *int
	Timestamp     *time.Time
}

// Cosmetic reports whether the patch only touches display-only fields
func (p MessagePatch) Cosmetic() bool {
	return p.Role == nil && p.Kind == nil && p.Content == nil && p.AppendContent == "" &&
		p.MediaURL == nil && p.JobID == nil && p.IsStreaming == nil && p.Timestamp == nil
}

// Apply writes the patch onto m. Terminal messages only take cosmetic fields.
func (p MessagePatch) Apply(m *Message) {
	p.apply(m, m.IsStreaming)
}

// Build synthesizes a message with the given id from the patch alone
func (p MessagePatch) Build(id string) Message {
	m := Message{ID: id, Role: RoleAssistant, Kind: KindText}
	p.apply(&m, true)
	return m
}

func (p MessagePatch) apply(m *Message, mutable bool) {
	if p.Progress != nil {
		v := *p.Progress
		m.Progress = &v
	}
	if p.EstimatedTime != nil {
		v := *p.EstimatedTime
		m.EstimatedTime = &v
	}
	if !mutable {
		return
	}
	if p.Role != nil {
		m.Role = *p.Role
	}
	if p.Kind != nil {
		m.Kind = *p.Kind
	}
	if p.Content != nil {
		m.Content = *p.Content
	}
	m.Content += p.AppendContent
	if p.MediaURL != nil {
		m.MediaURL = *p.MediaURL
	}
	if p.JobID != nil {
		m.JobID = *p.JobID
	}
	if p.Timestamp != nil {
		m.Timestamp = *p.Timestamp
	}
	if p.IsStreaming != nil {
		m.IsStreaming = *p.IsStreaming
	}
}

// Terminal builds a patch that ends streaming with the given content
func Terminal(content string) MessagePatch {
	done := false
	return MessagePatch{Content: &content, IsStreaming: &done}
}

// Session is a titled conversation stored in exactly one container
type Session struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Messages           []Message `json:"messages"`
	Model              string    `json:"model"`
	SystemInstruction  string    `json:"system_instruction,omitempty"`
	FolderID           string    `json:"folder_id,omitempty"`
	LastModified       time.Time `json:"last_modified"`
	RecommendedPrompts []string  `json:"recommended_prompts,omitempty"`
}

// Clone returns a deep copy of the session
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Messages = CloneMessages(s.Messages)
	if s.RecommendedPrompts != nil {
		c.RecommendedPrompts = append([]string(nil), s.RecommendedPrompts...)
	}
	return &c
}

// CloneMessages copies a message slice including pointer fields
func CloneMessages(in []Message) []Message {
	if in == nil {
		return nil
	}
	out := make([]Message, len(in))
	for i, m := range in {
		if m.Progress != nil {
			v := *m.Progress
			m.Progress = &v
		}
		if m.EstimatedTime != nil {
			v := *m.EstimatedTime
			m.EstimatedTime = &v
		}
		out[i] = m
	}
	return out
}

// SessionPatch is a partial session update. Nil fields are untouched.
type SessionPatch struct {
	Title              *string   `json:"title,omitempty"`
	Messages           []Message `json:"messages,omitempty"`
	Model              *string   `json:"model,omitempty"`
	SystemInstruction  *string   `json:"system_instruction,omitempty"`
	RecommendedPrompts []string  `json:"recommended_prompts,omitempty"`
}

// Empty reports whether the patch changes nothing
func (p SessionPatch) Empty() bool {
	return p.Title == nil && p.Messages == nil && p.Model == nil &&
		p.SystemInstruction == nil && p.RecommendedPrompts == nil
}

// Apply writes the patch onto s and bumps LastModified
func (p SessionPatch) Apply(s *Session, now time.Time) {
	if p.Title != nil {
		s.Title = *p.Title
	}
	if p.Messages != nil {
		s.Messages = CloneMessages(p.Messages)
	}
	if p.Model != nil {
		s.Model = *p.Model
	}
	if p.SystemInstruction != nil {
		s.SystemInstruction = *p.SystemInstruction
	}
	if p.RecommendedPrompts != nil {
		s.RecommendedPrompts = append([]string(nil), p.RecommendedPrompts...)
	}
	s.LastModified = now
}

// CreateSessionRequest describes a session to create in storage
type CreateSessionRequest struct {
	Title              string    `json:"title"`
	FolderID           string    `json:"folder_id,omitempty"`
	Messages           []Message `json:"messages"`
	Model              string    `json:"model"`
	SystemInstruction  string    `json:"system_instruction"`
	RecommendedPrompts []string  `json:"recommended_prompts"`
}

// FolderType distinguishes user folders from generated workflows
type FolderType string

const (
	FolderCustom         FolderType = "custom"
	FolderShortsWorkflow FolderType = "shorts-workflow"
)

// Folder groups sessions
type Folder struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Type      FolderType `json:"type"`
	CreatedAt time.Time  `json:"created_at"`
}
