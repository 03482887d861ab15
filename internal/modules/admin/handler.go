package admin

import (
	"github.com/aiassist/core/internal/middleware"
	"github.com/aiassist/core/internal/models"
	"github.com/aiassist/core/internal/pkg/pagination"
	"github.com/aiassist/core/internal/pkg/response"
	"github.com/aiassist/core/internal/pkg/validation"
	"github.com/aiassist/core/internal/store"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts /admin behind authMW and the admin role check.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/admin", authMW, middleware.RequireRole(models.RoleAdmin))
	g.GET("/health", h.health)
	g.GET("/activity", h.activity)

	users := g.Group("/users")
	users.GET("", h.listUsers)
	users.GET("/:id", h.getUser)
	users.PATCH("/:id", h.updateUser)
	users.POST("/:id/reset-usage", h.resetUsage)
}

func (h *Handler) listUsers(c *gin.Context) {
	var q UserListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, validation.AppError(err))
		return
	}
	page := pagination.FromContext(c)
	f := store.UserFilter{Role: q.Role, Search: q.Search, Page: page.Page, Limit: page.Limit}
	if q.IsActive != "" {
		active := q.IsActive == "true"
		f.IsActive = &active
	}
	users, total, err := h.svc.ListUsers(c.Request.Context(), f)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paged(c, users, response.NewPagination(total, page.Page, page.Limit))
}

func (h *Handler) getUser(c *gin.Context) {
	u, err := h.svc.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"user": u})
}

func (h *Handler) updateUser(c *gin.Context) {
	var dto UpdateUserDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.Error(c, validation.AppError(err))
		return
	}
	u, err := h.svc.UpdateUser(c.Request.Context(), c.Param("id"), &dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"message": "User updated successfully", "user": u})
}

func (h *Handler) resetUsage(c *gin.Context) {
	snap, err := h.svc.ResetUsage(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"message": "User usage reset successfully", "current": snap})
}

func (h *Handler) health(c *gin.Context) {
	response.OK(c, gin.H{"health": h.svc.Health(c.Request.Context())})
}

func (h *Handler) activity(c *gin.Context) {
	var q ActivityQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, validation.AppError(err))
		return
	}
	events, err := h.svc.Activity(c.Request.Context(), q.UserID, q.Limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"activity": events})
}
