package conversation

import (
	"fmt"
	"net/http"

	"github.com/aiassist/core/internal/middleware"
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

// RegisterRoutes mounts /conversations on an authenticated group.
func (h *Handler) RegisterRoutes(g *gin.RouterGroup) {
	c := g.Group("/conversations")
	c.GET("", h.list)
	c.DELETE("", h.clear)
	c.GET("/:id", h.get)
	c.PATCH("/:id", h.update)
	c.DELETE("/:id", h.delete)
	c.POST("/:id/archive", h.archive)
	c.GET("/:id/export", h.export)
}

func (h *Handler) list(c *gin.Context) {
	var q ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, validation.AppError(err))
		return
	}
	page := pagination.FromContext(c)
	f := store.ConversationFilter{
		UserID:   middleware.CurrentUserID(c),
		Status:   q.Status,
		Category: q.Category,
		Search:   q.Search,
		Page:     page.Page,
		Limit:    page.Limit,
	}
	if q.IsStarred != "" {
		starred := q.IsStarred == "true"
		f.IsStarred = &starred
	}

	convs, total, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		response.Error(c, err)
		return
	}
	items := make([]Summary, 0, len(convs))
	for _, conv := range convs {
		items = append(items, NewSummary(conv))
	}
	response.Paged(c, items, response.NewPagination(total, page.Page, page.Limit))
}

func (h *Handler) get(c *gin.Context) {
	conv, err := h.svc.Get(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"conversation": NewDetail(conv)})
}

func (h *Handler) update(c *gin.Context) {
	var dto UpdateDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.Error(c, validation.AppError(err))
		return
	}
	conv, err := h.svc.Update(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"), &dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"conversation": NewSummary(conv)})
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"message": "Conversation deleted successfully"})
}

func (h *Handler) archive(c *gin.Context) {
	conv, err := h.svc.Archive(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"conversation": NewSummary(conv)})
}

func (h *Handler) clear(c *gin.Context) {
	n, err := h.svc.Clear(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"message": "All conversations cleared successfully", "cleared": n})
}

func (h *Handler) export(c *gin.Context) {
	var q ExportQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, validation.AppError(err))
		return
	}
	out, err := h.svc.Export(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"), q.Format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", out.Filename))
	c.Data(http.StatusOK, out.ContentType, []byte(out.Body))
}
