package chat

import (
	"github.com/aiassist/core/internal/middleware"
	"github.com/aiassist/core/internal/pkg/response"
	"github.com/aiassist/core/internal/pkg/validation"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the chat endpoints on an already authenticated
// /ai group. chatMW runs before the chat handler only.
func (h *Handler) RegisterRoutes(g *gin.RouterGroup, chatMW ...gin.HandlerFunc) {
	handlers := append(append([]gin.HandlerFunc{}, chatMW...), h.chat)
	g.POST("/chat", handlers...)
	g.GET("/status", h.status)
	g.GET("/usage", h.usage)
}

func (h *Handler) chat(c *gin.Context) {
	var dto ChatDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.Error(c, validation.AppError(err))
		return
	}
	user := middleware.CurrentUser(c)
	if user == nil {
		response.Unauthorized(c)
		return
	}
	res, err := h.svc.Send(c.Request.Context(), user, &dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

func (h *Handler) status(c *gin.Context) {
	response.OK(c, gin.H{"status": h.svc.Status()})
}

func (h *Handler) usage(c *gin.Context) {
	stats, err := h.svc.Usage(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, stats)
}
