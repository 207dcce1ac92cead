// Package testutil provides fakes and mocks shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/GriffinCanCode/AgentOS/chatsync/internal/shared/types"
)

// MockStorage is a testify mock of the remote session storage.
type MockStorage struct {
	mock.Mock
}

// ListSessions mocks the ListSessions method.
func (m *MockStorage) ListSessions(ctx context.Context, folderID string) ([]types.Session, error) {
	args := m.Called(ctx, folderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Session), args.Error(1)
}

// CreateSession mocks the CreateSession method.
func (m *MockStorage) CreateSession(ctx context.Context, req types.CreateSessionRequest) (*types.Session, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Session), args.Error(1)
}

// UpdateSession mocks the UpdateSession method.
func (m *MockStorage) UpdateSession(ctx context.Context, id string, patch types.SessionPatch) error {
	return m.Called(ctx, id, patch).Error(0)
}

// DeleteSession mocks the DeleteSession method.
func (m *MockStorage) DeleteSession(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// MockJobClient is a testify mock of the job backend.
type MockJobClient struct {
	mock.Mock
}

// Submit mocks the Submit method.
func (m *MockJobClient) Submit(ctx context.Context, req types.JobRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// Poll mocks the Poll method.
func (m *MockJobClient) Poll(ctx context.Context, jobID string) (*types.JobDetail, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.JobDetail), args.Error(1)
}

// FakeStorage is an in-memory session storage that records every call.
type FakeStorage struct {
	mu       sync.Mutex
	next     int
	Sessions map[string]types.Session
	Updates  []Update
	Deletes  []string
	Lists    int
	Creates  int

	CreateDelay time.Duration
	ListErr     error
	CreateErr   error
	UpdateErr   error
	DeleteErr   error
}

// Update is one recorded UpdateSession call.
type Update struct {
	ID    string
	Patch types.SessionPatch
}

// NewFakeStorage creates an empty fake storage.
func NewFakeStorage() *FakeStorage {
	return &FakeStorage{Sessions: make(map[string]types.Session)}
}

// Seed adds sessions as if they were already stored.
func (f *FakeStorage) Seed(sessions ...types.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range sessions {
		f.Sessions[s.ID] = *s.Clone()
	}
}

// ListSessions returns the stored sessions of one container.
func (f *FakeStorage) ListSessions(ctx context.Context, folderID string) ([]types.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Lists++
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	var out []types.Session
	for _, s := range f.Sessions {
		if s.FolderID == folderID {
			out = append(out, *s.Clone())
		}
	}
	return out, nil
}

// CreateSession stores a session under a new id.
func (f *FakeStorage) CreateSession(ctx context.Context, req types.CreateSessionRequest) (*types.Session, error) {
	if f.CreateDelay > 0 {
		select {
		case <-time.After(f.CreateDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.Creates++
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.next++
	s := types.Session{
		ID:                 fmt.Sprintf("chat-%d", f.next),
		Title:              req.Title,
		Messages:           types.CloneMessages(req.Messages),
		Model:              req.Model,
		SystemInstruction:  req.SystemInstruction,
		FolderID:           req.FolderID,
		RecommendedPrompts: req.RecommendedPrompts,
		LastModified:       time.Now(),
	}
	if s.Messages == nil {
		s.Messages = []types.Message{}
	}
	f.Sessions[s.ID] = s
	return s.Clone(), nil
}

// UpdateSession applies and records a partial update.
func (f *FakeStorage) UpdateSession(ctx context.Context, id string, patch types.SessionPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Updates = append(f.Updates, Update{ID: id, Patch: patch})
	if f.UpdateErr != nil {
		return f.UpdateErr
	}
	if s, ok := f.Sessions[id]; ok {
		patch.Apply(&s, time.Now())
		f.Sessions[id] = s
	}
	return nil
}

// FailUpdates makes later UpdateSession calls fail with err; nil heals it.
func (f *FakeStorage) FailUpdates(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.UpdateErr = err
}

// DeleteSession removes a session; unknown ids succeed.
func (f *FakeStorage) DeleteSession(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deletes = append(f.Deletes, id)
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	delete(f.Sessions, id)
	return nil
}

// UpdateCount returns the number of UpdateSession calls.
func (f *FakeStorage) UpdateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Updates)
}

// LastUpdate returns the most recent UpdateSession call.
func (f *FakeStorage) LastUpdate() (Update, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Updates) == 0 {
		return Update{}, false
	}
	return f.Updates[len(f.Updates)-1], true
}

// CreateCount returns the number of CreateSession calls.
func (f *FakeStorage) CreateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Creates
}

// Stored returns the remote copy of a session.
func (f *FakeStorage) Stored(id string) (types.Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.Sessions[id]
	if !ok {
		return types.Session{}, false
	}
	return *s.Clone(), true
}

// FakeJobs is a scripted job backend. Each job answers its queued
// responses in order and repeats the last one.
type FakeJobs struct {
	mu        sync.Mutex
	next      int
	Submitted []types.JobRequest
	scripts   map[string][]Poll
	polls     map[string]int

	SubmitErr error
	// Default is answered for jobs without a script
	Default Poll
}

// Poll is one scripted poll answer.
type Poll struct {
	Detail *types.JobDetail
	Err    error
}

// NewFakeJobs creates a backend that keeps every job pending.
func NewFakeJobs() *FakeJobs {
	return &FakeJobs{
		scripts: make(map[string][]Poll),
		polls:   make(map[string]int),
		Default: Poll{Detail: &types.JobDetail{Status: types.JobInProgress}},
	}
}

// Script sets the answers for a job id.
func (f *FakeJobs) Script(jobID string, answers ...Poll) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[jobID] = answers
}

// NextID returns the id the next submission will receive.
func (f *FakeJobs) NextID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fmt.Sprintf("job-%d", f.next+1)
}

// Submit records the request and assigns an id.
func (f *FakeJobs) Submit(ctx context.Context, req types.JobRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubmitErr != nil {
		return "", f.SubmitErr
	}
	f.next++
	f.Submitted = append(f.Submitted, req)
	return fmt.Sprintf("job-%d", f.next), nil
}

// Poll answers the next scripted response.
func (f *FakeJobs) Poll(ctx context.Context, jobID string) (*types.JobDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.polls[jobID]
	f.polls[jobID] = n + 1

	script, ok := f.scripts[jobID]
	if !ok || len(script) == 0 {
		return f.Default.Detail, f.Default.Err
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	return script[n].Detail, script[n].Err
}

// Polls returns how often a job was polled.
func (f *FakeJobs) Polls(jobID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls[jobID]
}

// SubmitCount returns the number of accepted submissions.
func (f *FakeJobs) SubmitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Submitted)
}

// Notifications collects notices.
type Notifications struct {
	mu  sync.Mutex
	all []types.Notification
}

// Notify records a notice.
func (n *Notifications) Notify(note types.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.all = append(n.all, note)
}

// All returns every recorded notice.
func (n *Notifications) All() []types.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]types.Notification(nil), n.all...)
}

// Count returns the number of notices at a level.
func (n *Notifications) Count(level types.NotificationLevel) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, note := range n.all {
		if note.Level == level {
			c++
		}
	}
	return c
}
