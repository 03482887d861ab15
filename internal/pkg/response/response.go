package response

import (
	"net/http"
	"reflect"

	"github.com/aiassist/core/internal/pkg/apperr"
	"github.com/gin-gonic/gin"
)

// Pagination metadata returned with paginated responses.
type Pagination struct {
	Total       int64 `json:"total"`
	CurrentPage int   `json:"currentPage"`
	TotalPage   int   `json:"totalPage"`
	Size        int   `json:"size"`
	HasNextPage bool  `json:"hasNextPage"`
}

// NewPagination derives page metadata from a total count.
func NewPagination(total int64, page, size int) Pagination {
	totalPage := 0
	if size > 0 {
		totalPage = int((total + int64(size) - 1) / int64(size))
	}
	return Pagination{
		Total:       total,
		CurrentPage: page,
		TotalPage:   totalPage,
		Size:        size,
		HasNextPage: page < totalPage,
	}
}

type pagedResponse struct {
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// OK sends a 200 response. Arrays/slices are wrapped in {data: [...]}.
func OK(c *gin.Context, data interface{}) {
	if data != nil {
		v := reflect.ValueOf(data)
		if v.Kind() == reflect.Slice {
			c.JSON(http.StatusOK, gin.H{"data": data})
			return
		}
	}
	c.JSON(http.StatusOK, data)
}

// Paged sends a paginated response.
func Paged(c *gin.Context, data interface{}, pagination Pagination) {
	c.JSON(http.StatusOK, pagedResponse{
		Data:       data,
		Pagination: pagination,
	})
}

// Created sends a 201 response.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// BadRequest sends a 400 error response.
func BadRequest(c *gin.Context, message string) {
	abort(c, http.StatusBadRequest, apperr.CodeValidation, message, nil)
}

// Unauthorized sends a 401 error response.
func Unauthorized(c *gin.Context) {
	abort(c, http.StatusUnauthorized, apperr.CodeUnauthorized, "authentication required", nil)
}

// Forbidden sends a 403 error response.
func Forbidden(c *gin.Context) {
	abort(c, http.StatusForbidden, apperr.CodeForbidden, "insufficient permissions", nil)
}

// NotFound sends a 404 error response.
func NotFound(c *gin.Context) {
	abort(c, http.StatusNotFound, apperr.CodeNotFound, "not found", nil)
}

// NotFoundMsg sends a 404 error response with a custom message.
func NotFoundMsg(c *gin.Context, message string) {
	abort(c, http.StatusNotFound, apperr.CodeNotFound, message, nil)
}

// MethodNotAllowed sends a 405 error response.
func MethodNotAllowed(c *gin.Context) {
	abort(c, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
}

// InternalError sends a 500 error response. The cause is recorded on the
// context for the request logger and never echoed to the client.
func InternalError(c *gin.Context, err error) {
	if err != nil {
		_ = c.Error(err)
	}
	abort(c, http.StatusInternalServerError, apperr.CodeInternal, "internal server error", nil)
}

// TooManyRequests sends a 429 error response.
func TooManyRequests(c *gin.Context, code, message string, details map[string]interface{}) {
	abort(c, http.StatusTooManyRequests, code, message, details)
}

// Error renders err. *apperr.Error values keep their status and code,
// anything else becomes a 500.
func Error(c *gin.Context, err error) {
	e, ok := apperr.As(err)
	if !ok {
		InternalError(c, err)
		return
	}
	if e.Err != nil {
		_ = c.Error(e.Err)
	}
	details := e.Details
	if e.Retryable {
		details = withRetryable(details)
	}
	if e.Status >= http.StatusInternalServerError && e.Code == apperr.CodeInternal {
		abort(c, e.Status, e.Code, "internal server error", details)
		return
	}
	abort(c, e.Status, e.Code, e.Message, details)
}

func withRetryable(details map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(details)+1)
	for k, v := range details {
		out[k] = v
	}
	out["retryable"] = true
	return out
}

func abort(c *gin.Context, status int, code, message string, details map[string]interface{}) {
	body := gin.H{"ok": 0, "code": status, "error": code, "message": message}
	for k, v := range details {
		if _, reserved := body[k]; !reserved {
			body[k] = v
		}
	}
	c.AbortWithStatusJSON(status, body)
}
