package middleware

import (
	"context"

	"github.com/aiassist/core/internal/models"
	"github.com/aiassist/core/internal/pkg/jwt"
	"github.com/aiassist/core/internal/pkg/response"
	"github.com/aiassist/core/internal/pkg/session"
	"github.com/gin-gonic/gin"
)

const (
	ContextKeyUserID = "user_id"
	ContextKeyUser   = "user"
)

// TokenVerifier resolves an access token to its user.
type TokenVerifier interface {
	VerifyAccessToken(ctx context.Context, token string) (*models.User, *jwt.Claims, error)
}

// Auth returns a middleware that requires a valid bearer access token.
func Auth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Unauthorized(c)
			return
		}
		user, _, err := verifier.VerifyAccessToken(c.Request.Context(), token)
		if err != nil {
			response.Error(c, session.AppError(err))
			return
		}
		c.Set(ContextKeyUserID, user.ID)
		c.Set(ContextKeyUser, user)
		c.Next()
	}
}

// RequireRole rejects authenticated users whose role is not listed. It must
// run after Auth.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			response.Unauthorized(c)
			return
		}
		for _, r := range roles {
			if user.Role == r {
				c.Next()
				return
			}
		}
		response.Forbidden(c)
	}
}

// CurrentUserID extracts the authenticated user ID from context.
func CurrentUserID(c *gin.Context) string {
	v, _ := c.Get(ContextKeyUserID)
	id, _ := v.(string)
	return id
}

// CurrentUser returns the user loaded by Auth for this request.
func CurrentUser(c *gin.Context) *models.User {
	v, _ := c.Get(ContextKeyUser)
	u, _ := v.(*models.User)
	return u
}

// IsAuthenticated returns true if the request has a valid auth token.
func IsAuthenticated(c *gin.Context) bool {
	return CurrentUserID(c) != ""
}

func extractToken(c *gin.Context) string {
	return session.NormalizeToken(c.GetHeader("Authorization"))
}
