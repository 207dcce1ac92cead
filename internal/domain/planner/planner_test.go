package planner

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/chatsync/internal/domain/catalog"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/domain/session"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/providers/jobs"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/shared/types"
	"github.com/GriffinCanCode/AgentOS/chatsync/tests/helpers/testutil"
)

type fakeCompleter struct {
	text string
	err  error
	last jobs.CompletionRequest
}

func (f *fakeCompleter) Complete(ctx context.Context, req jobs.CompletionRequest) (string, error) {
	f.last = req
	return f.text, f.err
}

type fakeFolders struct {
	mu      sync.Mutex
	created []types.Folder
	deleted []string
}

func (f *fakeFolders) CreateFolder(ctx context.Context, name string, kind types.FolderType) (*types.Folder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	folder := types.Folder{ID: "folder-1", Name: name, Type: kind}
	f.created = append(f.created, folder)
	return &folder, nil
}

func (f *fakeFolders) DeleteFolder(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

const threeSteps = "```json\n" + `{
  "projectName": "Launch a podcast",
  "steps": [
    {"title": "Outline", "modelId": "openai/gpt-4o-mini", "systemInstruction": "Plan episodes."},
    {"title": "Cover art", "modelId": "fal-ai/flux-2", "systemInstruction": "Design the cover."},
    {"title": "Trailer", "modelId": "fal-ai/sora-2", "systemInstruction": "Cut a trailer."}
  ]
}` + "\n```"

func newPlanner(text string) (*Planner, *fakeCompleter, *fakeFolders, *testutil.FakeStorage, *session.Store) {
	completer := &fakeCompleter{text: text}
	folders := &fakeFolders{}
	storage := testutil.NewFakeStorage()
	store := session.NewStore(storage)
	return NewPlanner(completer, folders, store, catalog.Default(), nil), completer, folders, storage, store
}

func TestParsePlan(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		steps   int
		wantErr bool
	}{
		{name: "fenced", text: threeSteps, steps: 3},
		{name: "bare", text: `{"projectName":"x","steps":[{"title":"a","modelId":"m"}]}`, steps: 1},
		{name: "empty", text: "```json\n```", wantErr: true},
		{name: "not json", text: "Sure! Here is your plan.", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := ParsePlan(tt.text)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPlan)
				return
			}
			require.NoError(t, err)
			assert.Len(t, plan.Steps, tt.steps)
		})
	}
}

func TestPlanCreatesFolderWithSessions(t *testing.T) {
	p, completer, folders, _, store := newPlanner(threeSteps)

	res, err := p.Plan(context.Background(), "start a podcast about cooking")
	require.NoError(t, err)

	assert.Contains(t, completer.last.InputText, "fal-ai/sora-2")
	assert.Equal(t, plannerSystemPrompt, completer.last.SystemPrompt)

	require.Len(t, folders.created, 1)
	assert.Equal(t, "Launch a podcast", res.Folder.Name)
	assert.Equal(t, types.FolderShortsWorkflow, res.Folder.Type)

	require.Len(t, res.Sessions, 3)
	first := res.Sessions[0]
	assert.Equal(t, "Outline", first.Title)
	assert.Equal(t, "folder-1", first.FolderID)
	assert.Contains(t, first.SystemInstruction, `the next one is "Cover art"`)
	require.Len(t, first.Messages, 1)
	assert.Equal(t, types.RoleAssistant, first.Messages[0].Role)
	assert.Contains(t, first.Messages[0].Content, "Launch a podcast")
	assert.NotEmpty(t, first.RecommendedPrompts)

	last := res.Sessions[2]
	assert.Equal(t, "fal-ai/sora-2", last.Model)
	assert.Contains(t, last.SystemInstruction, "final step")

	assert.Len(t, store.List(context.Background(), "folder-1"), 3)
}

func TestPlanRejectsInvalidPlans(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "one step", text: `{"projectName":"x","steps":[{"title":"a","modelId":"openai/gpt-4o-mini"}]}`},
		{name: "unknown model", text: `{"projectName":"x","steps":[{"title":"a","modelId":"openai/gpt-4o-mini"},{"title":"b","modelId":"made/up"}]}`},
		{name: "no name", text: `{"projectName":"","steps":[{"title":"a","modelId":"openai/gpt-4o-mini"},{"title":"b","modelId":"fal-ai/flux-2"}]}`},
		{name: "untitled step", text: `{"projectName":"x","steps":[{"title":"","modelId":"openai/gpt-4o-mini"},{"title":"b","modelId":"fal-ai/flux-2"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _, folders, _, _ := newPlanner(tt.text)
			_, err := p.Plan(context.Background(), "goal")
			assert.ErrorIs(t, err, ErrInvalidPlan)
			assert.Empty(t, folders.created)
		})
	}
}

func TestPlanErrors(t *testing.T) {
	p, completer, _, _, _ := newPlanner(threeSteps)

	_, err := p.Plan(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyGoal)

	completer.err = errors.New("upstream down")
	_, err = p.Plan(context.Background(), "goal")
	assert.ErrorContains(t, err, "upstream down")
}

func TestPlanRollsBackOnSessionFailure(t *testing.T) {
	p, _, folders, storage, _ := newPlanner(threeSteps)
	storage.CreateErr = errors.New("quota exceeded")

	_, err := p.Plan(context.Background(), "goal")
	require.Error(t, err)
	assert.Equal(t, []string{"folder-1"}, folders.deleted)
}

func TestFromTemplate(t *testing.T) {
	assert.Contains(t, Templates(), "shorts-workflow")

	p, completer, _, _, _ := newPlanner("")
	res, err := p.FromTemplate(context.Background(), "shorts-workflow")
	require.NoError(t, err)

	assert.Empty(t, completer.last.InputText)
	assert.Equal(t, "Shorts workflow", res.Folder.Name)
	require.Len(t, res.Sessions, 3)
	assert.Equal(t, "fal-ai/flux-2", res.Sessions[1].Model)
	assert.Contains(t, res.Sessions[0].RecommendedPrompts, "Give me five alternative hooks for this video")

	for _, name := range []string{"missing", "../models", ""} {
		_, err := p.FromTemplate(context.Background(), name)
		assert.ErrorIs(t, err, ErrUnknownTemplate, name)
	}
}
