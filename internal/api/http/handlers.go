package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/chatsync/internal/domain/catalog"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/domain/job"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/domain/planner"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/domain/session"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/domain/view"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/providers/auth"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/shared/types"
)

const flushTimeout = 15 * time.Second

// Sessions is the session store
type Sessions interface {
	List(ctx context.Context, folderID string) []types.Session
	Create(ctx context.Context, req types.CreateSessionRequest) (*types.Session, error)
	Update(id, folderID string, patch types.SessionPatch) error
	Delete(ctx context.Context, id, folderID string) error
	Forget(folderID string)
	Flush(ctx context.Context) error
	Stats() session.Stats
}

// View is the active view binder
type View interface {
	Focus(ctx context.Context, sessionID, folderID string) (view.View, error)
	Send(ctx context.Context, req view.SendRequest) (*view.SendResult, error)
	Stop() (job.Handle, bool)
	SetModel(modelID string) error
	SetPersona(instruction string) error
	Transcript() view.View
	Forget(sessionID string)
}

// Jobs lists running generations
type Jobs interface {
	Active() []job.Handle
}

// Folders is the remote folder storage
type Folders interface {
	ListFolders(ctx context.Context) ([]types.Folder, error)
	CreateFolder(ctx context.Context, name string, kind types.FolderType) (*types.Folder, error)
	DeleteFolder(ctx context.Context, id string) error
}

// Planner creates folders of sessions
type Planner interface {
	Plan(ctx context.Context, goal string) (*planner.Result, error)
	FromTemplate(ctx context.Context, name string) (*planner.Result, error)
}

// Identity holds the signed-in user
type Identity interface {
	Login(ctx context.Context, identity auth.Identity) error
	Logout(ctx context.Context)
	Current() (auth.Identity, bool)
}

// Breaker reports the state of one remote API's circuit breaker
type Breaker interface {
	Name() string
	BreakerState() resilience.State
}

// Deps are the components the handlers serve
type Deps struct {
	Sessions Sessions
	View     View
	Jobs     Jobs
	Folders  Folders
	Planner  Planner
	Identity Identity
	Catalog  *catalog.Catalog
	Breakers []Breaker
	// Clients reports connected websocket clients
	Clients func() int
	Logger  *logging.Logger
}

// Handlers contains all HTTP handlers
type Handlers struct {
	Deps
	started time.Time
}

// NewHandlers creates a new handler set
func NewHandlers(deps Deps) *Handlers {
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}
	if deps.Clients == nil {
		deps.Clients = func() int { return 0 }
	}
	deps.Logger = deps.Logger.Named("http")
	return &Handlers{Deps: deps, started: time.Now()}
}

// Root handles the service banner
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "chatsync",
		"version": "1.0.0",
	})
}

// Health reports cache, job and breaker state
func (h *Handlers) Health(c *gin.Context) {
	status := "healthy"
	breakers := make(gin.H, len(h.Breakers))
	for _, b := range h.Breakers {
		state := b.BreakerState()
		breakers[b.Name()] = state.String()
		if state == resilience.StateOpen {
			status = "degraded"
		}
	}

	_, signedIn := h.Identity.Current()
	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"uptime":    time.Since(h.started).Round(time.Second).String(),
		"signed_in": signedIn,
		"sessions":  h.Sessions.Stats(),
		"jobs":      len(h.Jobs.Active()),
		"clients":   h.Clients(),
		"breakers":  breakers,
	})
}

type loginRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	Access  string `json:"access" binding:"required"`
	Refresh string `json:"refresh"`
}

// Login signs a user in. Pending edits of the previous user are flushed
// before the caches are reset.
func (h *Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	h.flush(c.Request.Context())
	if err := h.Identity.Login(c.Request.Context(), auth.Identity{
		UserID:       req.UserID,
		AccessToken:  req.Access,
		RefreshToken: req.Refresh,
	}); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": req.UserID})
}

// Logout signs the user out
func (h *Handlers) Logout(c *gin.Context) {
	h.flush(c.Request.Context())
	h.Identity.Logout(c.Request.Context())
	c.Status(http.StatusNoContent)
}

// ListSessions lists the recent sessions or those of ?folder=
func (h *Handlers) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.Sessions.List(c.Request.Context(), c.Query("folder"))})
}

// CreateSession creates an empty session
func (h *Handlers) CreateSession(c *gin.Context) {
	var req types.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Title == "" {
		req.Title = "New chat"
	}
	if _, ok := h.Catalog.Lookup(req.Model); !ok {
		req.Model = h.Catalog.DefaultModel(types.KindText).ID
	}

	sess, err := h.Sessions.Create(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

type updateSessionRequest struct {
	FolderID           string   `json:"folder_id"`
	Title              *string  `json:"title"`
	RecommendedPrompts []string `json:"recommended_prompts"`
}

// UpdateSession renames a session or replaces its suggested prompts.
// Model and persona changes go through the view.
func (h *Handlers) UpdateSession(c *gin.Context) {
	var req updateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	patch := types.SessionPatch{Title: req.Title, RecommendedPrompts: req.RecommendedPrompts}
	if err := h.Sessions.Update(c.Param("id"), req.FolderID, patch); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteSession deletes a session and blanks the view if it showed it
func (h *Handlers) DeleteSession(c *gin.Context) {
	id := c.Param("id")
	h.View.Forget(id)
	if err := h.Sessions.Delete(c.Request.Context(), id, c.Query("folder")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetView returns the focused transcript
func (h *Handlers) GetView(c *gin.Context) {
	c.JSON(http.StatusOK, h.View.Transcript())
}

type focusRequest struct {
	SessionID string `json:"session_id"`
	FolderID  string `json:"folder_id"`
}

// Focus switches the view to a session, or to a blank view
func (h *Handlers) Focus(c *gin.Context) {
	var req focusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	v, err := h.View.Focus(c.Request.Context(), req.SessionID, req.FolderID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// Send appends a prompt to the view and starts its generation
func (h *Handlers) Send(c *gin.Context) {
	var req view.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.View.Send(c.Request.Context(), req)
	if err != nil {
		if res != nil {
			// The messages were appended; only the submission failed
			status, msg := classify(err)
			c.JSON(status, gin.H{"error": msg, "result": res})
			return
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, res)
}

// Stop cancels the latest generation of the view
func (h *Handlers) Stop(c *gin.Context) {
	handle, ok := h.View.Stop()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"stopped": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stopped": true, "job": handle})
}

// SetModel changes the model of the view
func (h *Handlers) SetModel(c *gin.Context) {
	var req struct {
		Model string `json:"model" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.View.SetModel(req.Model); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.View.Transcript())
}

// SetPersona changes the system instruction of the view
func (h *Handlers) SetPersona(c *gin.Context) {
	var req struct {
		Instruction string `json:"instruction"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.View.SetPersona(req.Instruction); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.View.Transcript())
}

// ListJobs lists running generations
func (h *Handlers) ListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": h.Jobs.Active()})
}

// ListModels lists the model catalog
func (h *Handlers) ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"text":          h.Catalog.Models(types.KindText),
		"image":         h.Catalog.Models(types.KindImage),
		"video":         h.Catalog.Models(types.KindVideo),
		"video_options": h.Catalog.Video(),
	})
}

func (h *Handlers) flush(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	if err := h.Sessions.Flush(ctx); err != nil {
		h.Logger.Warn("Flush before identity change failed", zap.Error(err))
	}
}
