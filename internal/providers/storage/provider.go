package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/GriffinCanCode/AgentOS/chatsync/internal/providers/http/client"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/shared/types"
)

const (
	chatsPath   = "/api/v1/chats/chats/"
	foldersPath = "/api/v1/chats/folders/"

	// DefaultModel is assumed for records stored without one
	DefaultModel = "openai/gpt-4o-mini"
)

// ErrEmptyName is returned when a folder is created without a name
var ErrEmptyName = errors.New("folder name is required")

// Doer is the subset of the REST client used for storage
type Doer interface {
	Get(ctx context.Context, operation, path string, query map[string]string, out interface{}) error
	Post(ctx context.Context, operation, path string, body, out interface{}) error
	Put(ctx context.Context, operation, path string, body, out interface{}) error
	Delete(ctx context.Context, operation, path string) error
}

// Provider persists sessions and folders in the remote chat store
type Provider struct {
	http Doer
}

// NewProvider creates a storage provider
func NewProvider(http Doer) *Provider {
	return &Provider{http: http}
}

// chatRecord is the wire shape of a stored session
type chatRecord struct {
	ID                 string          `json:"id"`
	FolderID           *string         `json:"folder_id"`
	Title              string          `json:"title"`
	Messages           []types.Message `json:"messages"`
	Model              string          `json:"model"`
	ModelID            string          `json:"model_id"`
	SystemInstruction  string          `json:"system_instruction"`
	RecommendedPrompts []string        `json:"recommended_prompts"`
	LastModified       *time.Time      `json:"last_modified"`
}

func (r chatRecord) session() types.Session {
	s := types.Session{
		ID:                 r.ID,
		Title:              r.Title,
		Messages:           r.Messages,
		Model:              r.Model,
		SystemInstruction:  r.SystemInstruction,
		RecommendedPrompts: r.RecommendedPrompts,
		LastModified:       time.Now(),
	}
	if s.Messages == nil {
		s.Messages = []types.Message{}
	}
	if s.Model == "" {
		s.Model = r.ModelID
	}
	if s.Model == "" {
		s.Model = DefaultModel
	}
	if r.FolderID != nil {
		s.FolderID = *r.FolderID
	}
	if r.LastModified != nil {
		s.LastModified = *r.LastModified
	}
	return s
}

// ListSessions returns the sessions of one container. An empty folderID
// lists the recent container only; the backend answers that query with
// every chat, so filed ones are dropped here. Records listed for a folder
// without a folder_id belong to the folder that was queried.
func (p *Provider) ListSessions(ctx context.Context, folderID string) ([]types.Session, error) {
	var query map[string]string
	if folderID != "" {
		query = map[string]string{"folder": folderID}
	}

	var records []chatRecord
	if err := p.http.Get(ctx, "list_sessions", chatsPath, query, &records); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := make([]types.Session, 0, len(records))
	for _, r := range records {
		s := r.session()
		switch {
		case folderID == "" && s.FolderID != "":
			continue
		case s.FolderID == "":
			s.FolderID = folderID
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// CreateSession stores a new session and returns it with its assigned id
func (p *Provider) CreateSession(ctx context.Context, req types.CreateSessionRequest) (*types.Session, error) {
	if req.Messages == nil {
		req.Messages = []types.Message{}
	}
	if req.RecommendedPrompts == nil {
		req.RecommendedPrompts = []string{}
	}
	if req.Model == "" {
		req.Model = DefaultModel
	}

	var record chatRecord
	if err := p.http.Post(ctx, "create_session", chatsPath, req, &record); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	if record.ID == "" {
		return nil, errors.New("storage returned a session without an id")
	}

	s := record.session()
	if s.FolderID == "" {
		s.FolderID = req.FolderID
	}
	return &s, nil
}

// UpdateSession writes a partial update. Only non-nil patch fields are sent.
func (p *Provider) UpdateSession(ctx context.Context, id string, patch types.SessionPatch) error {
	if patch.Empty() {
		return nil
	}
	return p.http.Put(ctx, "update_session", chatsPath+escape(id)+"/", patch, nil)
}

// DeleteSession removes a session. A session already gone counts as deleted.
func (p *Provider) DeleteSession(ctx context.Context, id string) error {
	err := p.http.Delete(ctx, "delete_session", chatsPath+escape(id)+"/")
	if err != nil && !errors.Is(err, client.ErrNotFound) {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// ListFolders returns every folder of the user
func (p *Provider) ListFolders(ctx context.Context) ([]types.Folder, error) {
	var folders []types.Folder
	if err := p.http.Get(ctx, "list_folders", foldersPath, nil, &folders); err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	for i := range folders {
		if folders[i].Type == "" {
			folders[i].Type = types.FolderCustom
		}
	}
	return folders, nil
}

// CreateFolder creates a folder
func (p *Provider) CreateFolder(ctx context.Context, name string, kind types.FolderType) (*types.Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	if kind == "" {
		kind = types.FolderCustom
	}

	var folder types.Folder
	body := map[string]string{"name": name, "type": string(kind)}
	if err := p.http.Post(ctx, "create_folder", foldersPath, body, &folder); err != nil {
		return nil, fmt.Errorf("failed to create folder: %w", err)
	}
	if folder.Type == "" {
		folder.Type = kind
	}
	return &folder, nil
}

// DeleteFolder removes a folder. The backend cascades to its sessions.
func (p *Provider) DeleteFolder(ctx context.Context, id string) error {
	err := p.http.Delete(ctx, "delete_folder", foldersPath+escape(id)+"/")
	if err != nil && !errors.Is(err, client.ErrNotFound) {
		return fmt.Errorf("failed to delete folder %s: %w", id, err)
	}
	return nil
}

func escape(id string) string {
	return url.PathEscape(id)
}
