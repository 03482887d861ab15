package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aiassist/core/internal/middleware"
	"github.com/aiassist/core/internal/models"
	"github.com/aiassist/core/internal/modules/analytics"
	"github.com/aiassist/core/internal/modules/processing/ai"
	"github.com/aiassist/core/internal/pkg/usage"
	"github.com/aiassist/core/internal/pkg/validation"
	"github.com/aiassist/core/internal/store"
	"github.com/aiassist/core/internal/store/memstore"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	validation.Setup()
}

type stubProvider struct {
	mu       sync.Mutex
	calls    int
	lastMsgs []ai.Message
	err      error
	// during runs while the reply is being generated.
	during   func()
}

func (p *stubProvider) Complete(_ context.Context, msgs []ai.Message) (*ai.Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.lastMsgs = msgs
	if p.during != nil {
		p.during()
	}
	if p.err != nil {
		return nil, p.err
	}
	return &ai.Completion{
		Text:   "Here is a reply.",
		Tokens: ai.Tokens{Prompt: 3, Completion: 5, Total: 8},
		Model:  "stub-model",
	}, nil
}

func (p *stubProvider) Name() string  { return "stub" }
func (p *stubProvider) Model() string { return "stub-model" }
func (p *stubProvider) IsMock() bool  { return false }
func (p *stubProvider) Status() ai.Status {
	return ai.Status{Available: true, Provider: "stub", Model: "stub-model", Configured: true}
}

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fixture struct {
	router   *gin.Engine
	store    *memstore.Store
	provider *stubProvider
	sink     *analytics.MemorySink
	user     *models.User
}

func setup(t *testing.T) *fixture {
	t.Helper()
	s := memstore.New()
	u := models.NewUser("ada@example.com", "hash", "Ada", "Lovelace", time.Now())
	require.NoError(t, s.CreateUser(context.Background(), u))

	provider := &stubProvider{}
	gate := usage.NewGate(s, usage.Table{
		Free:    usage.Limits{Daily: 10, Monthly: 100},
		Premium: usage.Limits{Daily: 100, Monthly: 1000},
	}, usage.WithLocation(time.UTC))
	sink := analytics.NewMemorySink(100)
	svc := NewService(s, gate, ai.NewPipeline(provider, time.Second, nil), analytics.NewTracker(sink, nil), nil)

	r := gin.New()
	g := r.Group("/ai", func(c *gin.Context) {
		current, err := s.GetUser(c.Request.Context(), u.ID)
		require.NoError(t, err)
		c.Set(middleware.ContextKeyUserID, current.ID)
		c.Set(middleware.ContextKeyUser, current)
		c.Next()
	})
	NewHandler(svc).RegisterRoutes(g)
	return &fixture{router: r, store: s, provider: provider, sink: sink, user: u}
}

func (f *fixture) post(body interface{}) *httptest.ResponseRecorder {
	buf, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", "/ai/chat", bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) get(path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
	return w
}

func (f *fixture) reload(t *testing.T) *models.User {
	t.Helper()
	u, err := f.store.GetUser(context.Background(), f.user.ID)
	require.NoError(t, err)
	return u
}

func (f *fixture) conversations(t *testing.T) []*models.Conversation {
	t.Helper()
	list, _, err := f.store.ListConversations(context.Background(), store.ConversationFilter{UserID: f.user.ID})
	require.NoError(t, err)
	out := make([]*models.Conversation, 0, len(list))
	for _, c := range list {
		full, err := f.store.GetConversation(context.Background(), f.user.ID, c.ID)
		require.NoError(t, err)
		out = append(out, full)
	}
	return out
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestChat_Success(t *testing.T) {
	f := setup(t)

	w := f.post(gin.H{"message": "  Explain goroutines please  "})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)

	msg := body["message"].(map[string]interface{})
	assert.Equal(t, "assistant", msg["role"])
	assert.Equal(t, "Here is a reply.", msg["content"])

	conv := body["conversation"].(map[string]interface{})
	convID := conv["id"].(string)
	assert.NotEmpty(t, convID)
	assert.Equal(t, "Explain goroutines please", conv["title"])
	assert.Equal(t, float64(2), conv["messageCount"])

	usageView := body["usage"].(map[string]interface{})
	assert.Equal(t, float64(9), usageView["dailyRemaining"])
	assert.Equal(t, float64(99), usageView["monthlyRemaining"])
	assert.Equal(t, float64(8), usageView["tokens"].(map[string]interface{})["total"])

	meta := body["metadata"].(map[string]interface{})
	assert.Equal(t, "stub-model", meta["model"])
	assert.Equal(t, false, meta["isMock"])

	u := f.reload(t)
	assert.Equal(t, 1, u.Usage.DailyCount)
	assert.Equal(t, 1, u.Usage.TotalCount)
	assert.Empty(t, u.Usage.InFlight)

	w = f.post(gin.H{"message": "And channels?", "conversationId": convID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(4), decode(t, w)["conversation"].(map[string]interface{})["messageCount"])

	// system prompt, two prior messages, the new message
	require.Len(t, f.provider.lastMsgs, 4)
	assert.Equal(t, "system", f.provider.lastMsgs[0].Role)
	assert.Equal(t, "And channels?", f.provider.lastMsgs[3].Content)

	stored := f.conversations(t)
	require.Len(t, stored, 1)
	assert.Equal(t, 8*2, stored[0].Metadata.TotalTokens)
	assert.Equal(t, "stub-model", stored[0].Metadata.Model)
	assert.Equal(t, "friendly", stored[0].Metadata.Personality)

	events, err := f.sink.Recent(context.Background(), f.user.ID, 100)
	require.NoError(t, err)
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.EventType)
	}
	assert.Contains(t, types, models.EventConversationCreated)
	assert.Contains(t, types, models.EventAIRequest)
	assert.Contains(t, types, models.EventAIResponse)
}

func TestChat_ProviderRateLimitedKeepsMessageAndQuota(t *testing.T) {
	f := setup(t)
	f.provider.err = &ai.ProviderError{Kind: ai.KindRateLimited, Provider: "openai", StatusCode: 429}

	w := f.post(gin.H{"message": "Hello"})
	require.Equal(t, http.StatusServiceUnavailable, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "AI_UNAVAILABLE", body["error"])
	assert.Equal(t, true, body["retryable"])

	stored := f.conversations(t)
	require.Len(t, stored, 1)
	require.Len(t, stored[0].Messages, 1)
	assert.Equal(t, "user", stored[0].Messages[0].Role)
	assert.Equal(t, "Hello", stored[0].Messages[0].Content)

	u := f.reload(t)
	assert.Equal(t, 0, u.Usage.DailyCount)
	assert.Equal(t, 0, u.Usage.MonthlyCount)
	assert.Empty(t, u.Usage.InFlight)

	events, err := f.sink.Recent(context.Background(), f.user.ID, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventAIError, events[0].EventType)
	assert.Equal(t, "RATE_LIMITED", events[0].Properties["kind"])
}

func TestChat_ProviderFatalError(t *testing.T) {
	f := setup(t)
	f.provider.err = &ai.ProviderError{Kind: ai.KindAuthFailure, Provider: "openai", StatusCode: 401}

	w := f.post(gin.H{"message": "Hello"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, "AI_ERROR", body["error"])
	assert.NotContains(t, body, "retryable")
	assert.Equal(t, 0, f.reload(t).Usage.DailyCount)
}

func TestChat_UsageLimitExceeded(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	u := f.reload(t)
	u.Usage.DailyCount = 10
	u.Usage.MonthlyCount = 10
	require.NoError(t, f.store.UpdateUser(ctx, u))

	w := f.post(gin.H{"message": "Hello"})
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	body := decode(t, w)
	assert.Equal(t, "USAGE_LIMIT_EXCEEDED", body["error"])
	assert.Equal(t, "daily", body["boundary"])
	assert.Equal(t, float64(0), body["dailyRemaining"])
	assert.Equal(t, float64(90), body["monthlyRemaining"])
	limits := body["limits"].(map[string]interface{})
	assert.Equal(t, float64(10), limits["daily"])

	assert.Equal(t, 0, f.provider.callCount())
	assert.Empty(t, f.conversations(t))
}

func TestChat_InvalidMessage(t *testing.T) {
	f := setup(t)

	w := f.post(gin.H{"message": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_INPUT", decode(t, w)["error"])

	w = f.post(gin.H{"message": strings.Repeat("a", ai.MaxMessageLength+1)})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.post(gin.H{"message": "hi", "conversationId": "nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(t, w)["error"])

	assert.Equal(t, 0, f.provider.callCount())
	u := f.reload(t)
	assert.Equal(t, 0, u.Usage.DailyCount)
	assert.Empty(t, u.Usage.InFlight)
}

func TestChat_ConversationNotFound(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	w := f.post(gin.H{"message": "Hello", "conversationId": "0123456789abcdef01234567"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "CONVERSATION_NOT_FOUND", decode(t, w)["error"])
	assert.Empty(t, f.reload(t).Usage.InFlight)

	archived := models.NewConversation(f.user.ID, "friendly", time.Now())
	archived.Status = models.ConversationArchived
	require.NoError(t, f.store.CreateConversation(ctx, archived))
	w = f.post(gin.H{"message": "Hello", "conversationId": archived.ID})
	assert.Equal(t, http.StatusNotFound, w.Code)

	other := models.NewConversation("someone-else", "friendly", time.Now())
	require.NoError(t, f.store.CreateConversation(ctx, other))
	w = f.post(gin.H{"message": "Hello", "conversationId": other.ID})
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, 0, f.provider.callCount())
}

func TestChat_ConversationDeletedDuringGeneration(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	w := f.post(gin.H{"message": "First question"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	convID := decode(t, w)["conversation"].(map[string]interface{})["id"].(string)

	f.provider.during = func() {
		deleted := models.ConversationDeleted
		_, err := f.store.UpdateConversation(ctx, f.user.ID, convID, store.ConversationPatch{Status: &deleted}, time.Now())
		require.NoError(t, err)
	}
	w = f.post(gin.H{"message": "Second question", "conversationId": convID})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "CONVERSATION_NOT_FOUND", decode(t, w)["error"])

	_, err := f.store.GetConversation(ctx, f.user.ID, convID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	u := f.reload(t)
	assert.Equal(t, 1, u.Usage.DailyCount)
	assert.Empty(t, u.Usage.InFlight)
}

func TestChat_KeepsWritesMadeDuringGeneration(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	w := f.post(gin.H{"message": "First question"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	convID := decode(t, w)["conversation"].(map[string]interface{})["id"].(string)

	f.provider.during = func() {
		starred := true
		_, err := f.store.UpdateConversation(ctx, f.user.ID, convID, store.ConversationPatch{IsStarred: &starred}, time.Now())
		require.NoError(t, err)
		other := models.Message{Role: models.RoleMessageUser, Content: "Sent from another tab", Timestamp: time.Now()}
		_, err = f.store.AppendMessage(ctx, f.user.ID, convID, other, "")
		require.NoError(t, err)
	}
	w = f.post(gin.H{"message": "Second question", "conversationId": convID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(5), decode(t, w)["conversation"].(map[string]interface{})["messageCount"])

	conv, err := f.store.GetConversation(ctx, f.user.ID, convID)
	require.NoError(t, err)
	assert.True(t, conv.IsStarred)
	require.Len(t, conv.Messages, 5)
	assert.Equal(t, "Second question", conv.Messages[2].Content)
	assert.Equal(t, "Sent from another tab", conv.Messages[3].Content)
	assert.Equal(t, models.RoleMessageAssistant, conv.Messages[4].Role)
}

func TestChat_PersonalityFromPreferences(t *testing.T) {
	f := setup(t)
	u := f.reload(t)
	u.Preferences.AIPersonality = "concise"
	require.NoError(t, f.store.UpdateUser(context.Background(), u))

	require.Equal(t, http.StatusOK, f.post(gin.H{"message": "Hi"}).Code)
	require.Equal(t, http.StatusOK, f.post(gin.H{"message": "Hi", "personality": "detailed"}).Code)

	seen := map[string]bool{}
	for _, c := range f.conversations(t) {
		seen[c.Metadata.Personality] = true
	}
	assert.Equal(t, map[string]bool{"concise": true, "detailed": true}, seen)
}

func TestUsageAndStatus(t *testing.T) {
	f := setup(t)
	require.Equal(t, http.StatusOK, f.post(gin.H{"message": "Hi"}).Code)

	w := f.get("/ai/usage")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(1), body["dailyUsed"])
	current := body["current"].(map[string]interface{})
	assert.Equal(t, float64(9), current["dailyRemaining"])
	assert.Equal(t, true, current["canMake"])

	w = f.get("/ai/status")
	require.Equal(t, http.StatusOK, w.Code)
	status := decode(t, w)["status"].(map[string]interface{})
	assert.Equal(t, "stub", status["provider"])
	assert.Equal(t, true, status["available"])
}
