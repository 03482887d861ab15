package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aiassist/core/internal/middleware"
	"github.com/aiassist/core/internal/models"
	"github.com/aiassist/core/internal/modules/analytics"
	"github.com/aiassist/core/internal/modules/processing/ai"
	"github.com/aiassist/core/internal/pkg/jwt"
	"github.com/aiassist/core/internal/pkg/session"
	"github.com/aiassist/core/internal/pkg/usage"
	"github.com/aiassist/core/internal/pkg/validation"
	"github.com/aiassist/core/internal/store/memstore"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	validation.Setup()
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type fixture struct {
	router   *gin.Engine
	store    *memstore.Store
	sessions *session.Manager
	tracker  *analytics.Tracker
	svc      *Service
}

func setup(t *testing.T) *fixture {
	t.Helper()
	s := memstore.New()
	signer, err := jwt.NewSigner("access-secret", "refresh-secret", time.Hour, 24*time.Hour)
	require.NoError(t, err)
	mgr := session.NewManager(signer, s)
	gate := usage.NewGate(s, usage.Table{
		Free:    usage.Limits{Daily: 10, Monthly: 100},
		Premium: usage.Limits{Daily: 100, Monthly: 1000},
	}, usage.WithLocation(time.UTC))
	tracker := analytics.NewTracker(analytics.NewMemorySink(100), nil)
	pipeline := ai.NewPipeline(ai.NewMockProvider(0), time.Second, nil)
	svc := NewService(s, s, gate, tracker, pipeline, nil).WithProbe("database", s)

	r := gin.New()
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"), middleware.Auth(mgr))
	return &fixture{router: r, store: s, sessions: mgr, tracker: tracker, svc: svc}
}

func (f *fixture) user(t *testing.T, email, role string) (*models.User, string) {
	t.Helper()
	u := models.NewUser(email, "hash", "Ada", "Lovelace", time.Now())
	u.Role = role
	require.NoError(t, f.store.CreateUser(context.Background(), u))
	token, err := f.sessions.IssueAccessToken(u.ID)
	require.NoError(t, err)
	return u, token
}

func (f *fixture) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, "/api/v1/admin"+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestRequiresAdminRole(t *testing.T) {
	f := setup(t)
	_, userToken := f.user(t, "user@example.com", models.RoleUser)

	assert.Equal(t, http.StatusUnauthorized, f.do("GET", "/users", "", nil).Code)

	w := f.do("GET", "/users", userToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", decode(t, w)["error"])
}

func TestListAndGetUsers(t *testing.T) {
	f := setup(t)
	_, token := f.user(t, "admin@example.com", models.RoleAdmin)
	target, _ := f.user(t, "premium@example.com", models.RolePremium)
	conv := models.NewConversation(target.ID, "friendly", time.Now())
	conv.AddMessage(models.RoleMessageUser, "hi", 0, time.Now())
	require.NoError(t, f.store.CreateConversation(context.Background(), conv))

	w := f.do("GET", "/users", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Len(t, body["data"], 2)
	assert.Equal(t, float64(2), body["pagination"].(map[string]interface{})["total"])
	first := body["data"].([]interface{})[0].(map[string]interface{})
	assert.NotContains(t, first, "password")

	w = f.do("GET", "/users?role=premium", token, nil)
	assert.Len(t, decode(t, w)["data"], 1)
	assert.Equal(t, http.StatusBadRequest, f.do("GET", "/users?role=root", token, nil).Code)

	w = f.do("GET", "/users/"+target.ID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	u := decode(t, w)["user"].(map[string]interface{})
	assert.Equal(t, "premium@example.com", u["email"])
	assert.Equal(t, float64(1), u["conversationCount"])
	assert.Equal(t, "premium", u["current"].(map[string]interface{})["tier"])

	w = f.do("GET", "/users/"+"0123456789abcdef01234567", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "USER_NOT_FOUND", decode(t, w)["error"])
}

func TestUpdateUser(t *testing.T) {
	f := setup(t)
	_, token := f.user(t, "admin@example.com", models.RoleAdmin)
	target, targetToken := f.user(t, "user@example.com", models.RoleUser)

	w := f.do("PATCH", "/users/"+target.ID, token, gin.H{
		"role":         "premium",
		"subscription": gin.H{"plan": "premium", "isActive": true},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	u := decode(t, w)["user"].(map[string]interface{})
	assert.Equal(t, "premium", u["role"])
	assert.Equal(t, float64(100), u["current"].(map[string]interface{})["limits"].(map[string]interface{})["daily"])

	assert.Equal(t, http.StatusBadRequest, f.do("PATCH", "/users/"+target.ID, token, gin.H{"role": "root"}).Code)

	w = f.do("PATCH", "/users/"+target.ID, token, gin.H{"isActive": false})
	require.Equal(t, http.StatusOK, w.Code)
	stored, err := f.store.GetUser(context.Background(), target.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	assert.Empty(t, stored.RefreshTokens)

	// a deactivated account can no longer authenticate
	_, _, err = f.sessions.VerifyAccessToken(context.Background(), targetToken)
	assert.Error(t, err)
}

func TestResetUsage(t *testing.T) {
	f := setup(t)
	_, token := f.user(t, "admin@example.com", models.RoleAdmin)
	target, _ := f.user(t, "user@example.com", models.RoleUser)
	for i := 0; i < 10; i++ {
		_, err := f.svc.gate.Increment(context.Background(), target.ID)
		require.NoError(t, err)
	}

	w := f.do("POST", "/users/"+target.ID+"/reset-usage", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	current := decode(t, w)["current"].(map[string]interface{})
	assert.Equal(t, true, current["canMake"])
	assert.Equal(t, float64(10), current["dailyRemaining"])

	stored, err := f.store.GetUser(context.Background(), target.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.Usage.DailyCount)
	assert.Zero(t, stored.Usage.MonthlyCount)
	assert.Equal(t, 10, stored.Usage.TotalCount)
}

func TestHealth(t *testing.T) {
	f := setup(t)
	_, token := f.user(t, "admin@example.com", models.RoleAdmin)

	w := f.do("GET", "/health", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	h := decode(t, w)["health"].(map[string]interface{})
	assert.Equal(t, "healthy", h["status"])
	assert.Equal(t, "connected", h["services"].(map[string]interface{})["database"])
	assert.Equal(t, "enabled", h["services"].(map[string]interface{})["analytics"])
	assert.Equal(t, "mock", h["ai"].(map[string]interface{})["provider"])

	f.svc.WithProbe("redis", pingFunc(func(context.Context) error { return errors.New("down") }))
	f.svc.WithProbe("cache", nil)
	report := f.svc.Health(context.Background())
	assert.Equal(t, "degraded", report.Status)
	assert.Equal(t, "disconnected", report.Services["redis"])
	assert.Equal(t, "disabled", report.Services["cache"])
}

func TestActivity(t *testing.T) {
	f := setup(t)
	admin, token := f.user(t, "admin@example.com", models.RoleAdmin)
	other, _ := f.user(t, "user@example.com", models.RoleUser)
	f.tracker.Track(context.Background(), admin.ID, "login", nil)
	f.tracker.Track(context.Background(), other.ID, "ai_request", nil)
	f.tracker.Track(context.Background(), other.ID, "ai_response", nil)

	w := f.do("GET", "/activity", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	events := decode(t, w)["activity"].([]interface{})
	require.Len(t, events, 3)
	assert.Equal(t, "ai_response", events[0].(map[string]interface{})["eventType"])

	w = f.do("GET", "/activity?limit=1&userId="+admin.ID, token, nil)
	events = decode(t, w)["activity"].([]interface{})
	require.Len(t, events, 1)
	assert.Equal(t, "login", events[0].(map[string]interface{})["eventType"])

	assert.Equal(t, http.StatusBadRequest, f.do("GET", "/activity?limit=1000", token, nil).Code)
}
