package view

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/GriffinCanCode/AgentOS/chatsync/internal/domain/catalog"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/domain/job"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/domain/timeline"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/shared/types"
)

// createTimeout bounds a blank-view create detached from its caller
const createTimeout = 30 * time.Second

var (
	ErrEmptyPrompt    = errors.New("prompt is empty")
	ErrUnknownSession = errors.New("session not found")
	ErrUnknownModel   = errors.New("unknown model")
)

// Store is the session store as seen by the binder
type Store interface {
	List(ctx context.Context, folderID string) []types.Session
	Get(id string) (*types.Session, bool)
	Create(ctx context.Context, req types.CreateSessionRequest) (*types.Session, error)
	Update(id, folderID string, patch types.SessionPatch) error
	PatchMessage(id, messageID string, patch types.MessagePatch, insertIfMissing bool) error
}

// Jobs is the orchestrator as seen by the binder
type Jobs interface {
	Submit(ctx context.Context, target job.Target, req types.JobRequest) (job.Handle, error)
	Resume(sessionID string, messages []types.Message) int
	CancelLatest(sessionID string) (job.Handle, bool)
}

// Publisher pushes events to connected clients
type Publisher interface {
	Publish(e types.Event)
}

// View is a snapshot of what the user currently sees
type View struct {
	SessionID string          `json:"session_id"`
	FolderID  string          `json:"folder_id,omitempty"`
	Model     string          `json:"model"`
	Persona   string          `json:"persona,omitempty"`
	Messages  []types.Message `json:"messages"`
	Pending   string          `json:"pending,omitempty"`
}

// SendRequest is one user prompt
type SendRequest struct {
	Prompt string               `json:"prompt"`
	Kind   types.Kind           `json:"kind"`
	Model  string               `json:"model"`
	Folder string               `json:"folder_id"`
	Video  catalog.VideoOptions `json:"video"`
}

// SendResult reports what a send appended and started. Created is set
// when the send started from a blank view.
type SendResult struct {
	SessionID   string        `json:"session_id"`
	Created     bool          `json:"created"`
	UserMessage types.Message `json:"user_message"`
	Placeholder types.Message `json:"placeholder"`
	Handle      job.Handle    `json:"handle"`
}

// Binder tracks the focused session and owns its rendered transcript.
// Patches for the focused session land in the transcript and are written
// through as a whole message list; patches for any other session go to
// the store directly. The binder lock is always taken before the store's.
type Binder struct {
	store     Store
	jobs      Jobs
	catalog   *catalog.Catalog
	publisher Publisher
	logger    *logging.Logger
	now       func() time.Time

	mu         sync.Mutex
	focused    string
	folderID   string
	model      string
	persona    string
	transcript *timeline.Timeline

	// pending is the id of a session created by Send that is not yet
	// confirmed in the store with a message
	pending  string
	creating singleflight.Group
}

// Option customizes a Binder
type Option func(*Binder)

// WithPublisher sets where transcript events are pushed
func WithPublisher(p Publisher) Option {
	return func(b *Binder) { b.publisher = p }
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(b *Binder) { b.logger = l }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(b *Binder) { b.now = now }
}

// NewBinder creates a binder showing a blank view
func NewBinder(store Store, jobs Jobs, cat *catalog.Catalog, opts ...Option) *Binder {
	b := &Binder{
		store:      store,
		jobs:       jobs,
		catalog:    cat,
		logger:     logging.Nop(),
		now:        time.Now,
		transcript: timeline.New(nil),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.Named("view")
	b.model = cat.DefaultModel(types.KindText).ID
	return b
}

// SetJobs wires the orchestrator after construction
func (b *Binder) SetJobs(jobs Jobs) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jobs = jobs
}

// Focus binds the view to a session. An empty id shows a blank view.
// Focusing the session that Send is still confirming binds the store's
// local copy instead of reloading a possibly empty remote one. Any other
// session is loaded from the store and its streaming jobs are resumed.
func (b *Binder) Focus(ctx context.Context, sessionID, folderID string) (View, error) {
	b.mu.Lock()

	switch {
	case sessionID == "":
		b.blankLocked()
		v := b.viewLocked()
		b.mu.Unlock()
		b.publish(types.Event{Type: types.EventFocus})
		return v, nil

	case sessionID == b.focused:
		v := b.viewLocked()
		b.mu.Unlock()
		return v, nil

	case sessionID == b.pending:
		// The transcript belongs to whatever is focused now, so rebind
		// from the store copy Send has been writing to
		if sess, ok := b.store.Get(sessionID); ok {
			b.logger.Debug("Focus rebinding pending session", logging.SessionID(sessionID))
			return b.bindAndUnlock(sess), nil
		}
	}
	b.mu.Unlock()

	if _, ok := b.store.Get(sessionID); !ok {
		// The container may not be loaded yet
		b.store.List(ctx, folderID)
	}

	b.mu.Lock()
	if sessionID == b.focused {
		v := b.viewLocked()
		b.mu.Unlock()
		return v, nil
	}
	// Read under the binder lock so no patch routed to the store can land
	// between the read and the bind
	sess, ok := b.store.Get(sessionID)
	if !ok {
		b.mu.Unlock()
		return View{}, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	return b.bindAndUnlock(sess), nil
}

// bindAndUnlock focuses sess, releases the binder lock and resumes the
// session's streaming jobs
func (b *Binder) bindAndUnlock(sess *types.Session) View {
	b.bindLocked(sess)
	v := b.viewLocked()
	jobs := b.jobs
	b.mu.Unlock()

	resumed := jobs.Resume(sess.ID, sess.Messages)
	b.logger.Debug("Session focused", logging.SessionID(sess.ID), zap.Int("resumed", resumed))
	b.publish(types.Event{Type: types.EventFocus, SessionID: sess.ID})
	return v
}

// Send appends the prompt and a streaming placeholder to the focused
// session and submits the generation job. From a blank view the session
// is created first; concurrent sends from the same blank view share one
// creation.
func (b *Binder) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if !req.Kind.Valid() {
		req.Kind = types.KindText
	}

	b.mu.Lock()
	sessionID := b.focused
	if req.Model == "" {
		req.Model = b.model
	}
	b.mu.Unlock()

	model := b.catalog.Resolve(req.Model, req.Kind)
	created := false

	if sessionID == "" {
		// Only the caller whose function ran saw the creation happen
		ran := false
		v, err, _ := b.creating.Do("blank", func() (interface{}, error) {
			ran = true
			return b.createFocused(ctx, prompt, model, req.Folder)
		})
		if err != nil {
			return nil, err
		}
		res := v.(creation)
		sessionID = res.id
		created = ran && res.created
	}

	now := b.now()
	user := types.Message{
		ID:        id.NewMessageID().String(),
		Role:      types.RoleUser,
		Content:   prompt,
		Kind:      types.KindText,
		Timestamp: now,
	}
	placeholder := types.Message{
		ID:          id.NewMessageID().String(),
		Role:        types.RoleAssistant,
		Kind:        model.Kind,
		IsStreaming: true,
		Timestamp:   now,
	}

	b.mu.Lock()
	history, persona, err := b.appendLocked(sessionID, user, placeholder)
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	b.resolvePendingLocked(sessionID)
	jobs := b.jobs
	b.mu.Unlock()

	jobReq := b.catalog.Request(model, catalog.Input{
		Prompt:       prompt,
		SystemPrompt: persona,
		History:      history,
		Video:        req.Video,
	})

	result := &SendResult{SessionID: sessionID, Created: created, UserMessage: user, Placeholder: placeholder}

	// The orchestrator patches back through PatchMessage, so the lock
	// must not be held here.
	handle, err := jobs.Submit(ctx, job.Target{
		SessionID: sessionID,
		MessageID: placeholder.ID,
		Kind:      model.Kind,
		StartedAt: now,
	}, jobReq)
	if err != nil {
		return result, err
	}
	result.Handle = handle
	return result, nil
}

// creation is the shared outcome of one blank-view create
type creation struct {
	id      string
	created bool
}

// createFocused creates a session for the blank view and focuses it.
// Runs inside the singleflight; a later call that finds a focused session
// reuses it instead of creating another. The create outlives the caller
// that started it since every joined send depends on its result.
func (b *Binder) createFocused(ctx context.Context, prompt string, model types.Model, folderID string) (creation, error) {
	b.mu.Lock()
	if b.focused != "" {
		focused := b.focused
		b.mu.Unlock()
		return creation{id: focused}, nil
	}
	persona := b.persona
	if folderID == "" {
		folderID = b.folderID
	}
	b.mu.Unlock()

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), createTimeout)
	defer cancel()

	sess, err := b.store.Create(cctx, types.CreateSessionRequest{
		Title:             timeline.Title(prompt),
		FolderID:          folderID,
		Model:             model.ID,
		SystemInstruction: persona,
	})
	if err != nil {
		return creation{}, err
	}

	b.mu.Lock()
	b.pending = sess.ID
	if b.focused == "" {
		b.bindLocked(sess)
	}
	b.mu.Unlock()

	b.logger.Info("Session created from blank view", logging.SessionID(sess.ID))
	b.publish(types.Event{Type: types.EventSession, SessionID: sess.ID})
	return creation{id: sess.ID, created: true}, nil
}

// appendLocked adds the messages to a session and returns the prior
// history and persona for the job request
func (b *Binder) appendLocked(sessionID string, msgs ...types.Message) ([]types.Message, string, error) {
	if sessionID == b.focused {
		history := b.transcript.All()
		for _, m := range msgs {
			b.transcript.Append(m)
		}
		if err := b.store.Update(sessionID, b.folderID, types.SessionPatch{Messages: b.transcript.All()}); err != nil {
			return nil, "", fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
		}
		for i := range msgs {
			b.publish(types.Event{Type: types.EventMessage, SessionID: sessionID, Message: &msgs[i]})
		}
		return history, b.persona, nil
	}

	// The user switched away while the session was being created
	sess, ok := b.store.Get(sessionID)
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	for _, m := range msgs {
		m := m
		patch := types.MessagePatch{
			Role:        &m.Role,
			Kind:        &m.Kind,
			Content:     &m.Content,
			IsStreaming: &m.IsStreaming,
			Timestamp:   &m.Timestamp,
		}
		if err := b.store.PatchMessage(sessionID, m.ID, patch, true); err != nil {
			return nil, "", fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
		}
	}
	return sess.Messages, sess.SystemInstruction, nil
}

// resolvePendingLocked clears the marker once the store holds the session
// with at least one message
func (b *Binder) resolvePendingLocked(sessionID string) {
	if b.pending != sessionID {
		return
	}
	if sess, ok := b.store.Get(sessionID); ok && len(sess.Messages) > 0 {
		b.pending = ""
	}
}

// PatchMessage routes a job patch to its target session. It implements
// job.Sink.
func (b *Binder) PatchMessage(sessionID, messageID string, patch types.MessagePatch) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sessionID != b.focused {
		if err := b.store.PatchMessage(sessionID, messageID, patch, true); err != nil {
			return err
		}
		b.publish(types.Event{Type: types.EventSession, SessionID: sessionID})
		return nil
	}

	b.transcript.PatchByID(messageID, patch, true)
	if err := b.store.Update(sessionID, b.folderID, types.SessionPatch{Messages: b.transcript.All()}); err != nil {
		return err
	}
	if m, ok := b.transcript.Find(messageID); ok {
		b.publish(types.Event{Type: types.EventMessage, SessionID: sessionID, Message: &m})
	}
	return nil
}

// Stop cancels the most recent generation of the focused session
func (b *Binder) Stop() (job.Handle, bool) {
	b.mu.Lock()
	sessionID := b.focused
	jobs := b.jobs
	b.mu.Unlock()

	if sessionID == "" {
		return job.Handle{}, false
	}
	return jobs.CancelLatest(sessionID)
}

// SetModel changes the model of the focused session, or of the next
// session created from a blank view
func (b *Binder) SetModel(modelID string) error {
	if _, ok := b.catalog.Lookup(modelID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.model = modelID
	if b.focused == "" {
		return nil
	}
	return b.store.Update(b.focused, b.folderID, types.SessionPatch{Model: &modelID})
}

// SetPersona changes the system instruction of the focused session, or of
// the next session created from a blank view
func (b *Binder) SetPersona(instruction string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.persona = instruction
	if b.focused == "" {
		return nil
	}
	return b.store.Update(b.focused, b.folderID, types.SessionPatch{SystemInstruction: &instruction})
}

// Transcript returns a snapshot of the view
func (b *Binder) Transcript() View {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.viewLocked()
}

// Focused returns the focused session id
func (b *Binder) Focused() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.focused
}

// Pending returns the pending-session marker
func (b *Binder) Pending() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending
}

// Forget blanks the view if it shows the given session. Used after the
// session was deleted.
func (b *Binder) Forget(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pending == sessionID {
		b.pending = ""
	}
	if b.focused == sessionID {
		b.blankLocked()
	}
}

// Reset returns to a blank view and forgets the pending marker
func (b *Binder) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.blankLocked()
	b.pending = ""
	b.persona = ""
	b.model = b.catalog.DefaultModel(types.KindText).ID
}

func (b *Binder) bindLocked(s *types.Session) {
	b.focused = s.ID
	b.folderID = s.FolderID
	b.model = s.Model
	b.persona = s.SystemInstruction
	b.transcript = timeline.New(s.Messages)
}

func (b *Binder) blankLocked() {
	b.focused = ""
	b.transcript = timeline.New(nil)
}

func (b *Binder) viewLocked() View {
	return View{
		SessionID: b.focused,
		FolderID:  b.folderID,
		Model:     b.model,
		Persona:   b.persona,
		Messages:  b.transcript.All(),
		Pending:   b.pending,
	}
}

func (b *Binder) publish(e types.Event) {
	if b.publisher == nil {
		return
	}
	e.Time = b.now()
	b.publisher.Publish(e)
}
