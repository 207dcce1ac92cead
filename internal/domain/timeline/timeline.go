package timeline

import (
	"unicode/utf8"

	"github.com/GriffinCanCode/AgentOS/chatsync/internal/shared/types"
)

const titleLength = 30

// Timeline is an ordered message sequence. It is not safe for concurrent
// use; owners serialize access.
type Timeline struct {
	messages []types.Message
}

// New creates a timeline holding a copy of msgs
func New(msgs []types.Message) *Timeline {
	return &Timeline{messages: types.CloneMessages(msgs)}
}

// Append adds a message at the end
func (t *Timeline) Append(m types.Message) {
	t.messages = append(t.messages, types.CloneMessages([]types.Message{m})...)
}

// PatchByID applies patch to the message with the given id. When no such
// message exists and insertIfMissing is set, a message is built from the
// patch and appended. Reports whether the timeline changed.
func (t *Timeline) PatchByID(id string, patch types.MessagePatch, insertIfMissing bool) bool {
	for i := range t.messages {
		if t.messages[i].ID == id {
			patch.Apply(&t.messages[i])
			return true
		}
	}
	if !insertIfMissing {
		return false
	}
	t.messages = append(t.messages, patch.Build(id))
	return true
}

// Find returns the message with the given id
func (t *Timeline) Find(id string) (types.Message, bool) {
	for _, m := range t.messages {
		if m.ID == id {
			return types.CloneMessages([]types.Message{m})[0], true
		}
	}
	return types.Message{}, false
}

// All returns a copy of every message in order
func (t *Timeline) All() []types.Message {
	out := types.CloneMessages(t.messages)
	if out == nil {
		out = []types.Message{}
	}
	return out
}

// Streaming returns the placeholders still owned by a job
func (t *Timeline) Streaming() []types.Message {
	var out []types.Message
	for _, m := range t.messages {
		if m.Pending() {
			out = append(out, m)
		}
	}
	return types.CloneMessages(out)
}

// Last returns the most recent message by role
func (t *Timeline) Last(role types.Role) (types.Message, bool) {
	for i := len(t.messages) - 1; i >= 0; i-- {
		if t.messages[i].Role == role {
			return types.CloneMessages(t.messages[i : i+1])[0], true
		}
	}
	return types.Message{}, false
}

// Len returns the number of messages
func (t *Timeline) Len() int {
	return len(t.messages)
}

// Reset drops every message
func (t *Timeline) Reset() {
	t.messages = nil
}

// Title derives a session title from the first prompt
func Title(prompt string) string {
	if utf8.RuneCountInString(prompt) <= titleLength {
		return prompt
	}
	runes := []rune(prompt)
	return string(runes[:titleLength]) + "..."
}
