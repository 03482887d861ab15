package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aiassist/core/internal/pkg/cron"
	"github.com/aiassist/core/internal/pkg/nativelog"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

var (
	up   = pingFunc(func(context.Context) error { return nil })
	down = pingFunc(func(context.Context) error { return errors.New("down") })
)

func newRouter(h *Handler) *gin.Engine {
	r := gin.New()
	h.RegisterRoutes(r.Group("/api/v1"))
	return r
}

func get(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, "/api/v1"+path, nil))
	return w
}

func TestLive(t *testing.T) {
	sched := cron.New()

	w := get(newRouter(NewHandler(up, nil, sched, t.TempDir())), "GET", "/health")
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.NotContains(t, body, "redis")

	w = get(newRouter(NewHandler(up, down, sched, t.TempDir())), "GET", "/health")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["redis"])

	w = get(newRouter(NewHandler(down, up, sched, t.TempDir())), "GET", "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCronEndpoints(t *testing.T) {
	sched := cron.New()
	ran := make(chan struct{}, 1)
	sched.Register(cron.Job{
		Name:     "sweep",
		Interval: time.Hour,
		Fn: func(context.Context) error {
			ran <- struct{}{}
			return nil
		},
	})
	r := newRouter(NewHandler(up, nil, sched, t.TempDir()))

	w := get(r, "GET", "/health/cron")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"sweep"`)

	w = get(r, "POST", "/health/cron/run/sweep")
	require.Equal(t, http.StatusOK, w.Code)
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}

	assert.Equal(t, http.StatusNotFound, get(r, "POST", "/health/cron/run/missing").Code)
	assert.Equal(t, http.StatusNotFound, get(r, "GET", "/health/cron/task/missing").Code)
}

func TestLogEndpoints(t *testing.T) {
	dir := t.TempDir()
	h := NewHandler(up, nil, cron.New(), dir)
	h.now = func() time.Time { return time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC) }
	r := newRouter(h)

	today := nativelog.TodayFilename(h.now())
	require.NoError(t, os.WriteFile(filepath.Join(dir, today), []byte("today\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stdout_2025-06-01.log"), []byte("yesterday\n"), 0o644))

	w := get(r, "GET", "/health/log/list")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "stdout_2025-06-01.log")

	w = get(r, "GET", "/health/log")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "today\n", w.Body.String())

	assert.Equal(t, http.StatusBadRequest, get(r, "GET", "/health/log?filename=../../etc/passwd").Code)

	w = get(r, "DELETE", "/health/log?filename=stdout_2025-06-01.log")
	require.Equal(t, http.StatusNoContent, w.Code)
	_, err := os.Stat(filepath.Join(dir, "stdout_2025-06-01.log"))
	assert.True(t, os.IsNotExist(err))

	w = get(r, "DELETE", "/health/log?filename="+today)
	require.Equal(t, http.StatusNoContent, w.Code)
	data, err := os.ReadFile(filepath.Join(dir, today))
	require.NoError(t, err)
	assert.Empty(t, data)
}
