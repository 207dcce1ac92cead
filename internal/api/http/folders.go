package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/AgentOS/chatsync/internal/domain/planner"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/shared/types"
)

// ListFolders lists the user's folders
func (h *Handlers) ListFolders(c *gin.Context) {
	folders, err := h.Folders.ListFolders(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"folders": folders, "templates": planner.Templates()})
}

// CreateFolder creates an empty folder
func (h *Handlers) CreateFolder(c *gin.Context) {
	var req struct {
		Name string           `json:"name" binding:"required"`
		Type types.FolderType `json:"type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	folder, err := h.Folders.CreateFolder(c.Request.Context(), req.Name, req.Type)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, folder)
}

// DeleteFolder deletes a folder and drops its cached sessions
func (h *Handlers) DeleteFolder(c *gin.Context) {
	id := c.Param("id")
	if err := h.Folders.DeleteFolder(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}

	for _, s := range h.Sessions.List(c.Request.Context(), id) {
		h.View.Forget(s.ID)
	}
	h.Sessions.Forget(id)
	c.Status(http.StatusNoContent)
}

// PlanFolder designs a project for a goal and creates it as a folder
func (h *Handlers) PlanFolder(c *gin.Context) {
	var req struct {
		Goal string `json:"goal" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.Planner.Plan(c.Request.Context(), req.Goal)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// TemplateFolder creates a folder from a built-in template
func (h *Handlers) TemplateFolder(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.Planner.FromTemplate(c.Request.Context(), req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}
