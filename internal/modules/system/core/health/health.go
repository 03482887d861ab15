// Package health serves the liveness probe and the operator endpoints for
// background jobs and native log files.
package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aiassist/core/internal/pkg/cron"
	"github.com/aiassist/core/internal/pkg/nativelog"
	"github.com/aiassist/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
)

const probeTimeout = 2 * time.Second

// Pinger is a dependency reported by the liveness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type logItem struct {
	Size     string `json:"size"`
	Filename string `json:"filename"`
	Created  int64  `json:"created"`
}

type Handler struct {
	database Pinger
	redis    Pinger
	sched    *cron.Scheduler
	logDir   string
	now      func() time.Time
}

// NewHandler builds the health endpoints. redis may be nil when rate
// limiting runs without it.
func NewHandler(database, redis Pinger, sched *cron.Scheduler, logDir string) *Handler {
	return &Handler{database: database, redis: redis, sched: sched, logDir: logDir, now: time.Now}
}

// RegisterRoutes mounts the public GET /health and the operator routes
// under /health guarded by adminMW.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, adminMW ...gin.HandlerFunc) {
	rg.GET("/health", h.live)

	admin := rg.Group("/health", adminMW...)
	cronGroup := admin.Group("/cron")
	{
		cronGroup.GET("", h.listJobs)
		cronGroup.POST("/run/:name", h.runJob)
		cronGroup.GET("/task/:name", h.jobState)
	}
	logGroup := admin.Group("/log")
	{
		logGroup.GET("/list", h.listLogs)
		logGroup.GET("", h.readLog)
		logGroup.DELETE("", h.deleteLog)
	}
}

func (h *Handler) live(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
	defer cancel()

	dbOK := h.database.Ping(ctx) == nil
	body := gin.H{"status": "ok", "database": dbOK, "timestamp": h.now()}
	code := http.StatusOK
	if !dbOK {
		body["status"] = "degraded"
		code = http.StatusServiceUnavailable
	}
	// A redis outage degrades rate limiting only; requests are still served.
	if h.redis != nil {
		body["redis"] = h.redis.Ping(ctx) == nil
	}
	c.JSON(code, body)
}

func (h *Handler) listJobs(c *gin.Context) {
	items := h.sched.List()
	byName := make(map[string]cron.ListItem, len(items))
	for _, item := range items {
		byName[item.Name] = item
	}
	response.OK(c, byName)
}

func (h *Handler) runJob(c *gin.Context) {
	// The job outlives the request that triggered it.
	if err := h.sched.Run(context.WithoutCancel(c.Request.Context()), c.Param("name")); err != nil {
		response.NotFoundMsg(c, err.Error())
		return
	}
	response.OK(c, gin.H{"message": "job triggered"})
}

func (h *Handler) jobState(c *gin.Context) {
	result, err := h.sched.GetTask(c.Param("name"))
	if err != nil {
		response.NotFoundMsg(c, err.Error())
		return
	}
	response.OK(c, result)
}

func (h *Handler) listLogs(c *gin.Context) {
	entries, err := os.ReadDir(h.logDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			response.OK(c, []logItem{})
			return
		}
		response.InternalError(c, err)
		return
	}

	items := make([]logItem, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".log") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		items = append(items, logItem{
			Size:     formatByteSize(info.Size()),
			Filename: entry.Name(),
			Created:  info.ModTime().UnixMilli(),
		})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Created > items[j].Created
	})
	response.OK(c, items)
}

func (h *Handler) readLog(c *gin.Context) {
	filename := strings.TrimSpace(c.Query("filename"))
	if filename == "" {
		filename = nativelog.TodayFilename(h.now())
	}
	path, ok := h.logPath(filename)
	if !ok {
		response.BadRequest(c, "invalid filename")
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		response.NotFoundMsg(c, "log file not exists")
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
}

// deleteLog removes a past log file. The file of the current day is
// truncated instead since the writer keeps appending to it.
func (h *Handler) deleteLog(c *gin.Context) {
	path, ok := h.logPath(c.Query("filename"))
	if !ok {
		response.BadRequest(c, "invalid filename")
		return
	}
	if filepath.Base(path) == nativelog.TodayFilename(h.now()) {
		if err := os.WriteFile(path, nil, 0o644); err != nil && !errors.Is(err, os.ErrNotExist) {
			response.InternalError(c, err)
			return
		}
	} else if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) logPath(filename string) (string, bool) {
	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "." || filename == string(filepath.Separator) || !strings.HasSuffix(filename, ".log") {
		return "", false
	}
	return filepath.Join(h.logDir, filename), true
}

func formatByteSize(size int64) string {
	switch {
	case size >= 1<<20:
		return fmt.Sprintf("%.2f MB", float64(size)/(1<<20))
	case size >= 1<<10:
		return fmt.Sprintf("%.2f KB", float64(size)/(1<<10))
	default:
		return fmt.Sprintf("%d B", size)
	}
}
