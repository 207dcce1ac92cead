package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bep/debounce"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/GriffinCanCode/AgentOS/chatsync/internal/domain/timeline"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/providers/http/client"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/shared/types"
)

var (
	ErrNotFound = errors.New("session not found")
	// ErrIdentityChanged is returned when the user changed while a call was
	// in flight; its result belongs to the previous user.
	ErrIdentityChanged = errors.New("identity changed during operation")
)

const (
	defaultDebounce = 1500 * time.Millisecond
	writeTimeout    = 15 * time.Second

	// recent is the container key for sessions outside any folder
	recent = ""
)

// Storage is the remote session collection
type Storage interface {
	ListSessions(ctx context.Context, folderID string) ([]types.Session, error)
	CreateSession(ctx context.Context, req types.CreateSessionRequest) (*types.Session, error)
	UpdateSession(ctx context.Context, id string, patch types.SessionPatch) error
	DeleteSession(ctx context.Context, id string) error
}

// Notifier surfaces transient notices to the user
type Notifier interface {
	Notify(n types.Notification)
}

// Stats describes the cache
type Stats struct {
	Owner         string `json:"owner"`
	Sessions      int    `json:"sessions"`
	Containers    int    `json:"containers"`
	PendingWrites int    `json:"pending_writes"`
}

// fieldMask records which session fields changed inside a debounce window
type fieldMask uint8

const (
	fieldTitle fieldMask = 1 << iota
	fieldMessages
	fieldModel
	fieldSystemInstruction
	fieldRecommendedPrompts
)

func maskOf(p types.SessionPatch) fieldMask {
	var m fieldMask
	if p.Title != nil {
		m |= fieldTitle
	}
	if p.Messages != nil {
		m |= fieldMessages
	}
	if p.Model != nil {
		m |= fieldModel
	}
	if p.SystemInstruction != nil {
		m |= fieldSystemInstruction
	}
	if p.RecommendedPrompts != nil {
		m |= fieldRecommendedPrompts
	}
	return m
}

// patchFrom builds the write-through payload from the current state
func patchFrom(s *types.Session, m fieldMask) types.SessionPatch {
	var p types.SessionPatch
	if m&fieldTitle != 0 {
		title := s.Title
		p.Title = &title
	}
	if m&fieldMessages != 0 {
		p.Messages = types.CloneMessages(s.Messages)
		if p.Messages == nil {
			p.Messages = []types.Message{}
		}
	}
	if m&fieldModel != 0 {
		model := s.Model
		p.Model = &model
	}
	if m&fieldSystemInstruction != 0 {
		si := s.SystemInstruction
		p.SystemInstruction = &si
	}
	if m&fieldRecommendedPrompts != 0 {
		p.RecommendedPrompts = append([]string{}, s.RecommendedPrompts...)
	}
	return p
}

// pendingWrite is one session's open debounce window
type pendingWrite struct {
	id       string
	fields   fieldMask
	debounce func(func())
}

// Store owns the in-memory sessions of the signed-in user, one container
// for recent sessions plus one per folder. Every mutation replaces the
// stored *types.Session with a modified clone; readers receive clones.
type Store struct {
	storage  Storage
	notifier Notifier
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	window   time.Duration
	now      func() time.Time

	mu         sync.Mutex
	owner      string
	generation uint64
	containers map[string][]*types.Session
	loaded     map[string]bool
	index      map[string]string // session id -> container key
	pending    map[string]*pendingWrite

	// writeMu serializes write-throughs so a stale payload never lands
	// after a newer one
	writeMu sync.Mutex
	loads   singleflight.Group
}

// Option customizes a Store
type Option func(*Store)

// WithDebounce sets the write-back coalescing window
func WithDebounce(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithNotifier sets where warnings are surfaced
func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// WithMetrics enables instrumentation
func WithMetrics(m *monitoring.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty store
func NewStore(storage Storage, opts ...Option) *Store {
	s := &Store{
		storage:    storage,
		logger:     logging.Nop(),
		window:     defaultDebounce,
		now:        time.Now,
		containers: make(map[string][]*types.Session),
		loaded:     make(map[string]bool),
		index:      make(map[string]string),
		pending:    make(map[string]*pendingWrite),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("session")
	return s
}

// List returns the sessions of one container. The first call for a
// container reads it from storage; a failed read yields whatever is held
// locally (usually nothing) and a warning, and is retried on the next call.
func (s *Store) List(ctx context.Context, folderID string) []types.Session {
	s.mu.Lock()
	loaded := s.loaded[folderID]
	generation := s.generation
	s.mu.Unlock()

	if !loaded {
		s.load(ctx, folderID, generation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.containers[folderID])
}

func (s *Store) load(ctx context.Context, folderID string, generation uint64) {
	key := fmt.Sprintf("%d/%s", generation, folderID)
	v, err, _ := s.loads.Do(key, func() (interface{}, error) {
		return s.storage.ListSessions(ctx, folderID)
	})
	if err != nil {
		s.logger.Warn("Failed to load sessions", zap.String("folder_id", folderID), zap.Error(err))
		s.notify(types.Notification{
			Level:  types.LevelWarning,
			Title:  "Could not load conversations",
			Detail: client.Message(err),
		})
		return
	}
	remote := v.([]types.Session)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != generation || s.loaded[folderID] {
		return
	}

	// Sessions created locally before the first load stay in place and win
	// over their remote copy. A record filed elsewhere is left for the
	// load of its own container.
	merged := s.containers[folderID]
	skipped := 0
	for i := range remote {
		if _, exists := s.index[remote[i].ID]; exists {
			continue
		}
		if remote[i].FolderID != folderID {
			skipped++
			continue
		}
		r := remote[i].Clone()
		merged = append(merged, r)
		s.index[r.ID] = folderID
	}
	s.containers[folderID] = merged
	s.loaded[folderID] = true
	s.metrics.SetSessionsCached(len(s.index))

	s.logger.Debug("Sessions loaded",
		zap.String("folder_id", folderID),
		zap.Int("count", len(remote)-skipped),
		zap.Int("skipped", skipped),
	)
}

// Get returns a copy of a cached session
func (s *Store) Get(id string) (*types.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.lookup(id)
	if sess == nil {
		return nil, false
	}
	return sess.Clone(), true
}

// Create stores a new session remotely and caches the result. Recent
// sessions go to the front of their list; folder sessions are appended.
func (s *Store) Create(ctx context.Context, req types.CreateSessionRequest) (*types.Session, error) {
	s.mu.Lock()
	generation := s.generation
	s.mu.Unlock()

	created, err := s.storage.CreateSession(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	if created.FolderID == "" {
		created.FolderID = req.FolderID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != generation {
		return nil, ErrIdentityChanged
	}

	sess := created.Clone()
	key := sess.FolderID
	if prev, exists := s.index[sess.ID]; exists {
		s.containers[prev] = without(s.containers[prev], sess.ID)
	}
	if key == recent {
		s.containers[key] = append([]*types.Session{sess}, s.containers[key]...)
	} else {
		s.containers[key] = append(s.containers[key], sess)
	}
	s.index[sess.ID] = key
	s.metrics.SetSessionsCached(len(s.index))

	s.logger.Info("Session created", logging.SessionID(sess.ID), zap.String("folder_id", key))
	return sess.Clone(), nil
}

// Update applies patch to the cached session at once and schedules a
// debounced write-through. folderID is advisory; the session is found in
// whichever container holds it.
func (s *Store) Update(id, folderID string, patch types.SessionPatch) error {
	if patch.Empty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.lookup(id)
	if sess == nil {
		s.logger.Debug("Update for unknown session dropped", logging.SessionID(id), zap.String("folder_id", folderID))
		return ErrNotFound
	}

	next := sess.Clone()
	patch.Apply(next, s.now())
	s.replace(next)
	s.schedule(id, maskOf(patch))
	return nil
}

// PatchMessage patches one message of a cached session as a single
// read-modify-write. With insertIfMissing a missing message is built from
// the patch.
func (s *Store) PatchMessage(id, messageID string, patch types.MessagePatch, insertIfMissing bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.lookup(id)
	if sess == nil {
		return ErrNotFound
	}

	tl := timeline.New(sess.Messages)
	if !tl.PatchByID(messageID, patch, insertIfMissing) {
		return nil
	}

	next := sess.Clone()
	next.Messages = tl.All()
	next.LastModified = s.now()
	s.replace(next)
	s.schedule(id, fieldMessages)
	return nil
}

// Delete removes the session locally, drops its pending write and then
// deletes it remotely. A remote failure is returned but the local removal
// stands.
func (s *Store) Delete(ctx context.Context, id, folderID string) error {
	s.mu.Lock()
	if key, ok := s.index[id]; ok {
		s.containers[key] = without(s.containers[key], id)
		delete(s.index, id)
		folderID = key
	}
	delete(s.pending, id)
	s.metrics.SetSessionsCached(len(s.index))
	s.mu.Unlock()

	if err := s.storage.DeleteSession(ctx, id); err != nil {
		s.logger.Warn("Remote delete failed", logging.SessionID(id), zap.Error(err))
		s.notify(types.Notification{
			Level:     types.LevelWarning,
			Title:     "Could not delete conversation",
			Detail:    client.Message(err),
			SessionID: id,
		})
		return err
	}

	s.logger.Info("Session deleted", logging.SessionID(id), zap.String("folder_id", folderID))
	return nil
}

// Forget drops every cached session of a folder without remote calls.
// Used after the folder itself was deleted.
func (s *Store) Forget(folderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.containers[folderID] {
		delete(s.index, sess.ID)
		delete(s.pending, sess.ID)
	}
	delete(s.containers, folderID)
	delete(s.loaded, folderID)
	s.metrics.SetSessionsCached(len(s.index))
}

// Reset clears every container for a new owner. Pending writes are
// discarded; flush before the identity changes to keep them.
func (s *Store) Reset(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := len(s.pending)
	s.owner = owner
	s.generation++
	s.containers = make(map[string][]*types.Session)
	s.loaded = make(map[string]bool)
	s.index = make(map[string]string)
	s.pending = make(map[string]*pendingWrite)
	s.metrics.SetSessionsCached(0)

	s.logger.Info("Session cache reset", zap.String("owner", owner), zap.Int("dropped_writes", dropped))
}

// Flush writes every pending update now
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	entries := make([]*pendingWrite, 0, len(s.pending))
	for _, w := range s.pending {
		entries = append(entries, w)
	}
	s.mu.Unlock()

	var errs []error
	for _, w := range entries {
		if err := s.write(ctx, w); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats returns cache statistics
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Owner:         s.owner,
		Sessions:      len(s.index),
		Containers:    len(s.containers),
		PendingWrites: len(s.pending),
	}
}

// schedule opens or extends the debounce window of a session. Callers
// hold s.mu.
func (s *Store) schedule(id string, fields fieldMask) {
	w, coalesced := s.pending[id]
	if !coalesced {
		w = &pendingWrite{id: id, debounce: debounce.New(s.window)}
		s.pending[id] = w
	}
	w.fields |= fields
	s.metrics.RecordSessionUpdate(coalesced)

	w.debounce(func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		_ = s.write(ctx, w)
	})
}

// write sends the latest state of the fields touched in w's window. A
// window that was already flushed, dropped or superseded is skipped.
func (s *Store) write(ctx context.Context, w *pendingWrite) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.pending[w.id] != w {
		s.mu.Unlock()
		return nil
	}
	delete(s.pending, w.id)
	sess := s.lookup(w.id)
	if sess == nil {
		s.mu.Unlock()
		s.metrics.RecordSessionWrite("skipped")
		return nil
	}
	patch := patchFrom(sess, w.fields)
	generation := s.generation
	s.mu.Unlock()

	// I/O without holding the cache lock
	if err := s.storage.UpdateSession(ctx, w.id, patch); err != nil {
		s.metrics.RecordSessionWrite("error")
		s.logger.Warn("Session write-through failed", logging.SessionID(w.id), zap.Error(err))
		s.notify(types.Notification{
			Level:     types.LevelWarning,
			Title:     "Changes not saved",
			Detail:    client.Message(err),
			SessionID: w.id,
		})
		s.requeue(w.id, w.fields, generation)
		return fmt.Errorf("failed to save session %s: %w", w.id, err)
	}

	s.metrics.RecordSessionWrite("success")
	return nil
}

// requeue keeps the fields of a failed write pending so the next window
// or Flush sends them again. No timer is armed, a backend that is down is
// not retried until something else touches the session.
func (s *Store) requeue(id string, fields fieldMask, generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != generation || s.lookup(id) == nil {
		return
	}
	if w, ok := s.pending[id]; ok {
		w.fields |= fields
		return
	}
	s.pending[id] = &pendingWrite{id: id, fields: fields, debounce: debounce.New(s.window)}
}

func (s *Store) lookup(id string) *types.Session {
	key, ok := s.index[id]
	if !ok {
		return nil
	}
	for _, sess := range s.containers[key] {
		if sess.ID == id {
			return sess
		}
	}
	return nil
}

func (s *Store) replace(next *types.Session) {
	key := s.index[next.ID]
	list := s.containers[key]
	for i := range list {
		if list[i].ID == next.ID {
			list[i] = next
			return
		}
	}
}

func (s *Store) notify(n types.Notification) {
	if s.notifier == nil {
		return
	}
	n.Time = s.now()
	s.notifier.Notify(n)
}

func without(list []*types.Session, id string) []*types.Session {
	out := make([]*types.Session, 0, len(list))
	for _, sess := range list {
		if sess.ID != id {
			out = append(out, sess)
		}
	}
	return out
}

func cloneAll(list []*types.Session) []types.Session {
	out := make([]types.Session, 0, len(list))
	for _, sess := range list {
		out = append(out, *sess.Clone())
	}
	return out
}
