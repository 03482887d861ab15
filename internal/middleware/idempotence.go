package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aiassist/core/internal/pkg/apperr"
	redispkg "github.com/aiassist/core/internal/pkg/redis"
	"github.com/aiassist/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	idempotenceTTL    = 60 * time.Second

	// The key is settled after the handler even if the client went away.
	idempotenceSettleTimeout = 3 * time.Second
)

// Idempotence rejects a repeated request carrying the same Idempotency-Key
// from the same user while the first one is running or within a minute of
// its success. Requests without the header pass through; two identical chat
// messages are legitimate. Failed requests free their key for a retry.
func Idempotence(rdb *redispkg.Client, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(IdempotencyHeader))
		if rdb == nil || raw == "" || c.Request.Method == http.MethodGet {
			c.Next()
			return
		}

		h := sha256.Sum256([]byte(c.Request.Method + "|" + c.FullPath() + "|" + raw))
		redisKey := fmt.Sprintf("ai:idempotence:%s:%s", CurrentUserID(c), hex.EncodeToString(h[:]))
		ctx := c.Request.Context()
		client := rdb.Raw()

		acquired, err := client.SetNX(ctx, redisKey, "0", idempotenceTTL).Result()
		if err != nil {
			log.Warn("idempotence check failed", zap.Error(err))
			c.Next()
			return
		}
		if !acquired {
			msg := "An identical request succeeded recently"
			if val, _ := client.Get(ctx, redisKey).Result(); val == "0" {
				msg = "An identical request is still being processed"
			}
			response.Error(c, apperr.Conflict(apperr.CodeDuplicateRequest, msg))
			return
		}

		c.Next()

		settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), idempotenceSettleTimeout)
		defer cancel()
		status := c.Writer.Status()
		if status >= 200 && status < 300 {
			err = client.Set(settleCtx, redisKey, "1", redis.KeepTTL).Err()
		} else {
			err = client.Del(settleCtx, redisKey).Err()
		}
		if err != nil {
			log.Warn("idempotence settle failed", zap.String("key", redisKey), zap.Error(err))
		}
	}
}
