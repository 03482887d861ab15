package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aiassist/core/internal/pkg/alert"
	"github.com/aiassist/core/internal/pkg/apperr"
	redispkg "github.com/aiassist/core/internal/pkg/redis"
	"github.com/aiassist/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// KeyFunc returns the identity a limit is counted against. An empty key
// skips limiting for the request.
type KeyFunc func(c *gin.Context) string

func KeyByIP(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// KeyByUser counts per authenticated user and falls back to the client IP.
func KeyByUser(c *gin.Context) string {
	if id := CurrentUserID(c); id != "" {
		return "user:" + id
	}
	return KeyByIP(c)
}

type RateLimitRule struct {
	Name    string
	Window  time.Duration
	Max     int64
	Message string
	Key     KeyFunc
}

// RateLimit enforces a fixed-window limit in Redis. Redis failures let the
// request through.
func RateLimit(rdb *redispkg.Client, rule RateLimitRule, notifier *alert.Notifier, log *zap.Logger) gin.HandlerFunc {
	if rule.Key == nil {
		rule.Key = KeyByIP
	}
	if rule.Message == "" {
		rule.Message = "Too many requests, please try again later"
	}
	return func(c *gin.Context) {
		if rdb == nil || rule.Max <= 0 {
			c.Next()
			return
		}
		id := rule.Key(c)
		if id == "" {
			c.Next()
			return
		}

		key := fmt.Sprintf("ai:rate_limit:%s:%s", rule.Name, id)
		count, ttl, err := rdb.Hit(c.Request.Context(), key, rule.Window)
		if err != nil {
			log.Warn("rate limit check failed", zap.String("rule", rule.Name), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(rule.Max, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(max(0, rule.Max-count), 10))

		if count > rule.Max {
			retryAfter := int(ttl.Round(time.Second) / time.Second)
			if retryAfter < 1 {
				retryAfter = 1
			}
			if notifier != nil && !IsAuthenticated(c) {
				go notifier.RateLimitTripped(c.ClientIP(), c.Request.URL.Path)
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			response.TooManyRequests(c, apperr.CodeRateLimited, rule.Message, map[string]interface{}{
				"retryAfter": retryAfter,
			})
			return
		}

		c.Next()
	}
}
