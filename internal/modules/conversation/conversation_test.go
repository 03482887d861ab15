package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aiassist/core/internal/middleware"
	"github.com/aiassist/core/internal/models"
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

type fixture struct {
	router *gin.Engine
	store  *memstore.Store
}

func setup(t *testing.T, userID string) *fixture {
	t.Helper()
	s := memstore.New()
	r := gin.New()
	g := r.Group("", func(c *gin.Context) {
		c.Set(middleware.ContextKeyUserID, userID)
		c.Next()
	})
	NewHandler(NewService(s, nil)).RegisterRoutes(g)
	return &fixture{router: r, store: s}
}

func (f *fixture) seed(t *testing.T, userID, text string, at time.Time) *models.Conversation {
	t.Helper()
	c := models.NewConversation(userID, "friendly", at)
	c.AddMessage(models.RoleMessageUser, text, 0, at)
	c.AddMessage(models.RoleMessageAssistant, "Reply to "+text, 4, at)
	require.NoError(t, f.store.CreateConversation(context.Background(), c))
	return c
}

func (f *fixture) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
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

func TestList(t *testing.T) {
	f := setup(t, "u1")
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	old := f.seed(t, "u1", "older question", base)
	newer := f.seed(t, "u1", "newer golang question", base.Add(time.Hour))
	f.seed(t, "u2", "not mine", base)

	w := f.do("GET", "/conversations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	data := body["data"].([]interface{})
	require.Len(t, data, 2)
	assert.Equal(t, newer.ID, data[0].(map[string]interface{})["id"])
	assert.Equal(t, old.ID, data[1].(map[string]interface{})["id"])
	assert.NotContains(t, data[0], "messages")
	assert.Equal(t, float64(2), body["pagination"].(map[string]interface{})["total"])

	w = f.do("GET", "/conversations?search=golang", nil)
	require.Len(t, decode(t, w)["data"].([]interface{}), 1)

	w = f.do("GET", "/conversations?limit=1&page=2", nil)
	body = decode(t, w)
	require.Len(t, body["data"].([]interface{}), 1)
	assert.Equal(t, old.ID, body["data"].([]interface{})[0].(map[string]interface{})["id"])

	w = f.do("GET", "/conversations?status=deleted", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetUpdateArchiveDelete(t *testing.T) {
	f := setup(t, "u1")
	c := f.seed(t, "u1", "hello", time.Now())
	other := f.seed(t, "u2", "hello", time.Now())

	w := f.do("GET", "/conversations/"+c.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode(t, w)["conversation"].(map[string]interface{})
	assert.Equal(t, float64(2), detail["messageCount"])
	assert.Len(t, detail["messages"], 2)

	w = f.do("GET", "/conversations/"+other.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "CONVERSATION_NOT_FOUND", decode(t, w)["error"])

	w = f.do("PATCH", "/conversations/"+c.ID, gin.H{"title": "Renamed", "isStarred": true, "category": "coding"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	summary := decode(t, w)["conversation"].(map[string]interface{})
	assert.Equal(t, "Renamed", summary["title"])
	assert.Equal(t, true, summary["isStarred"])
	assert.Equal(t, "coding", summary["metadata"].(map[string]interface{})["category"])

	w = f.do("PATCH", "/conversations/"+c.ID, gin.H{"category": "poetry"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do("GET", "/conversations?isStarred=true", nil)
	assert.Len(t, decode(t, w)["data"].([]interface{}), 1)

	w = f.do("POST", "/conversations/"+c.ID+"/archive", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "archived", decode(t, w)["conversation"].(map[string]interface{})["status"])
	assert.Empty(t, decode(t, f.do("GET", "/conversations", nil))["data"])
	assert.Len(t, decode(t, f.do("GET", "/conversations?status=archived", nil))["data"], 1)

	w = f.do("DELETE", "/conversations/"+c.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusNotFound, f.do("GET", "/conversations/"+c.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do("DELETE", "/conversations/"+c.ID, nil).Code)
}

func TestClear(t *testing.T) {
	f := setup(t, "u1")
	f.seed(t, "u1", "a", time.Now())
	f.seed(t, "u1", "b", time.Now())
	kept := f.seed(t, "u2", "c", time.Now())

	w := f.do("DELETE", "/conversations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["cleared"])
	assert.Empty(t, decode(t, f.do("GET", "/conversations", nil))["data"])

	_, err := f.store.GetConversation(context.Background(), "u2", kept.ID)
	assert.NoError(t, err)
}

func TestExport(t *testing.T) {
	f := setup(t, "u1")
	c := f.seed(t, "u1", "Explain **defer**", time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC))

	w := f.do("GET", "/conversations/"+c.ID+"/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/markdown"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="Explain --defer--.md"`)
	assert.Contains(t, w.Body.String(), "### You (2025-05-01 12:00 UTC)")

	w = f.do("GET", "/conversations/"+c.ID+"/export?format=html", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/html"))
	assert.Contains(t, w.Body.String(), "<strong>defer</strong>")

	w = f.do("GET", "/conversations/"+c.ID+"/export?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
