package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Register mounts every route. stream serves the websocket and metrics
// the Prometheus registry; either may be nil.
func Register(router gin.IRouter, h *Handlers, stream gin.HandlerFunc, metrics http.Handler) {
	router.GET("/", h.Root)
	router.GET("/health", h.Health)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	// Identity
	router.POST("/auth/session", h.Login)
	router.DELETE("/auth/session", h.Logout)

	// Sessions
	router.GET("/sessions", h.ListSessions)
	router.POST("/sessions", h.CreateSession)
	router.PATCH("/sessions/:id", h.UpdateSession)
	router.DELETE("/sessions/:id", h.DeleteSession)

	// Active view
	router.GET("/view", h.GetView)
	router.POST("/view/focus", h.Focus)
	router.POST("/view/send", h.Send)
	router.POST("/view/stop", h.Stop)
	router.PUT("/view/model", h.SetModel)
	router.PUT("/view/persona", h.SetPersona)

	router.GET("/jobs", h.ListJobs)
	router.GET("/models", h.ListModels)

	// Folders
	router.GET("/folders", h.ListFolders)
	router.POST("/folders", h.CreateFolder)
	router.DELETE("/folders/:id", h.DeleteFolder)
	router.POST("/folders/plan", h.PlanFolder)
	router.POST("/folders/template", h.TemplateFolder)

	if stream != nil {
		router.GET("/stream", stream)
	}
}
