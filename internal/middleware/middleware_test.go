package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aiassist/core/internal/models"
	"github.com/aiassist/core/internal/pkg/jwt"
	redispkg "github.com/aiassist/core/internal/pkg/redis"
	"github.com/aiassist/core/internal/pkg/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupTestRedis(t *testing.T) (*redispkg.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return redispkg.New(rdb), mr
}

type fakeVerifier struct {
	users map[string]*models.User
	err   error
}

func (f *fakeVerifier) VerifyAccessToken(_ context.Context, token string) (*models.User, *jwt.Claims, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	u, ok := f.users[token]
	if !ok {
		return nil, nil, session.ErrMalformed
	}
	return u, &jwt.Claims{UserID: u.ID}, nil
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func serve(r *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	verifier := &fakeVerifier{users: map[string]*models.User{
		"good":  {ID: "u1", Role: models.RoleUser},
		"admin": {ID: "u2", Role: models.RoleAdmin},
	}}
	r := gin.New()
	r.GET("/me", Auth(verifier), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": CurrentUserID(c)})
	})
	r.GET("/admin", Auth(verifier), RequireRole(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := serve(r, "GET", "/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", decode(t, w)["error"])

	w = serve(r, "GET", "/me", map[string]string{"Authorization": "Bearer bad"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "MALFORMED", decode(t, w)["error"])

	w = serve(r, "GET", "/me", map[string]string{"Authorization": "Bearer good"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", decode(t, w)["id"])

	w = serve(r, "GET", "/admin", map[string]string{"Authorization": "Bearer good"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = serve(r, "GET", "/admin", map[string]string{"Authorization": "bearer admin"})
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestAuth_StaleToken(t *testing.T) {
	r := gin.New()
	r.GET("/me", Auth(&fakeVerifier{err: session.ErrStaleToken}), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	w := serve(r, "GET", "/me", map[string]string{"Authorization": "Bearer x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "STALE_TOKEN", decode(t, w)["error"])
}

func TestRateLimit(t *testing.T) {
	rdb, mr := setupTestRedis(t)
	r := gin.New()
	r.GET("/ping", RateLimit(rdb, RateLimitRule{Name: "general", Window: time.Minute, Max: 2}, nil, zap.NewNop()), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 2; i++ {
		w := serve(r, "GET", "/ping", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := serve(r, "GET", "/ping", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", decode(t, w)["error"])
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	mr.FastForward(61 * time.Second)
	w = serve(r, "GET", "/ping", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_PerUser(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	verifier := &fakeVerifier{users: map[string]*models.User{
		"a": {ID: "ua"},
		"b": {ID: "ub"},
	}}
	r := gin.New()
	r.POST("/chat", Auth(verifier),
		RateLimit(rdb, RateLimitRule{Name: "ai", Window: time.Minute, Max: 1, Key: KeyByUser}, nil, zap.NewNop()),
		func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, "POST", "/chat", map[string]string{"Authorization": "Bearer a"}).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, "POST", "/chat", map[string]string{"Authorization": "Bearer a"}).Code)
	assert.Equal(t, http.StatusOK, serve(r, "POST", "/chat", map[string]string{"Authorization": "Bearer b"}).Code)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	rdb, mr := setupTestRedis(t)
	mr.Close()
	r := gin.New()
	r.GET("/ping", RateLimit(rdb, RateLimitRule{Name: "general", Window: time.Minute, Max: 1}, nil, zap.NewNop()), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(r, "GET", "/ping", nil).Code)
	}
}

func TestIdempotence(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	status := http.StatusOK
	r := gin.New()
	r.POST("/chat", Idempotence(rdb, zap.NewNop()), func(c *gin.Context) {
		c.Status(status)
	})
	key := map[string]string{IdempotencyHeader: "abc"}

	assert.Equal(t, http.StatusOK, serve(r, "POST", "/chat", nil).Code)
	assert.Equal(t, http.StatusOK, serve(r, "POST", "/chat", nil).Code)

	assert.Equal(t, http.StatusOK, serve(r, "POST", "/chat", key).Code)
	w := serve(r, "POST", "/chat", key)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DUPLICATE_REQUEST", decode(t, w)["error"])

	status = http.StatusServiceUnavailable
	other := map[string]string{IdempotencyHeader: "def"}
	assert.Equal(t, http.StatusServiceUnavailable, serve(r, "POST", "/chat", other).Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(r, "POST", "/chat", other).Code)
}

func TestIdempotence_ClientGoneStillFreesKey(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	r := gin.New()
	r.POST("/chat", Idempotence(rdb, zap.NewNop()), func(c *gin.Context) {
		if cancel, ok := c.Request.Context().Value(cancelKey{}).(context.CancelFunc); ok {
			cancel()
		}
		c.Status(http.StatusServiceUnavailable)
	})

	ctx, cancel := context.WithCancel(context.Background())
	ctx = context.WithValue(ctx, cancelKey{}, cancel)
	req := httptest.NewRequest("POST", "/chat", nil).WithContext(ctx)
	req.Header.Set(IdempotencyHeader, "gone")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	retry := serve(r, "POST", "/chat", map[string]string{IdempotencyHeader: "gone"})
	assert.Equal(t, http.StatusServiceUnavailable, retry.Code, "a failed request must not block its retry")
}

type cancelKey struct{}
