package app

import (
	"time"

	"github.com/aiassist/core/internal/middleware"
	"github.com/aiassist/core/internal/models"
	"github.com/aiassist/core/internal/modules/admin"
	"github.com/aiassist/core/internal/modules/ai/chat"
	"github.com/aiassist/core/internal/modules/analytics"
	"github.com/aiassist/core/internal/modules/auth/auth"
	"github.com/aiassist/core/internal/modules/conversation"
	"github.com/aiassist/core/internal/modules/processing/ai"
	"github.com/aiassist/core/internal/modules/system/core/health"
	"github.com/aiassist/core/internal/pkg/alert"
	"github.com/aiassist/core/internal/pkg/nativelog"
	pkgredis "github.com/aiassist/core/internal/pkg/redis"
	"github.com/aiassist/core/internal/pkg/response"
	"github.com/aiassist/core/internal/pkg/session"
	"github.com/aiassist/core/internal/pkg/usage"
	"github.com/aiassist/core/internal/store"
	"github.com/gin-gonic/gin"
)

const apiPrefix = "/api/v1"

// services are the shared components every module is built from.
type services struct {
	store    store.Store
	rdb      *pkgredis.Client
	sessions *session.Manager
	gate     *usage.Gate
	tracker  *analytics.Tracker
	pipeline *ai.Pipeline
	notifier *alert.Notifier
}

func (a *App) registerRoutes(s *services) {
	r := a.router
	log := a.logger
	authMW := middleware.Auth(s.sessions)
	adminMW := middleware.RequireRole(models.RoleAdmin)

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	rl := a.cfg.RateLimit
	generalLimit := middleware.RateLimit(s.rdb, middleware.RateLimitRule{
		Name:   "general",
		Window: rl.Window,
		Max:    int64(rl.Max),
	}, s.notifier, log)
	authLimit := middleware.RateLimit(s.rdb, middleware.RateLimitRule{
		Name:    "auth",
		Window:  rl.AuthWindow,
		Max:     int64(rl.AuthMax),
		Message: "Too many authentication attempts, please try again later",
	}, s.notifier, log)
	aiLimit := middleware.RateLimit(s.rdb, middleware.RateLimitRule{
		Name:    "ai",
		Window:  rl.AIWindow,
		Max:     int64(rl.AIMax),
		Message: "Too many AI requests, please slow down",
		Key:     middleware.KeyByUser,
	}, s.notifier, log)

	appInfo := gin.H{
		"name":    "ai-assistant",
		"version": Version,
	}
	started := time.Now()
	r.GET("/", func(c *gin.Context) {
		response.OK(c, appInfo)
	})

	api := r.Group(apiPrefix, generalLimit)
	api.GET("", func(c *gin.Context) {
		response.OK(c, gin.H{
			"name":    appInfo["name"],
			"version": appInfo["version"],
			"uptime":  int64(time.Since(started).Seconds()),
		})
	})

	var redisProbe health.Pinger
	if s.rdb != nil {
		redisProbe = s.rdb
	}
	health.NewHandler(s.store, redisProbe, a.sched, nativelog.ResolveDir(a.cfg.LogDir())).
		RegisterRoutes(api, authMW, adminMW)

	authSvc := auth.NewService(s.store, s.sessions, s.gate, s.tracker, log.Named("Auth"))
	auth.NewHandler(authSvc).RegisterRoutes(api, authMW, authLimit)

	aiGroup := api.Group("/ai", authMW)
	chatSvc := chat.NewService(s.store, s.gate, s.pipeline, s.tracker, log.Named("Chat"))
	chat.NewHandler(chatSvc).RegisterRoutes(aiGroup, aiLimit, middleware.Idempotence(s.rdb, log))
	conversation.NewHandler(conversation.NewService(s.store, log.Named("Conversation"))).RegisterRoutes(aiGroup)

	adminSvc := admin.NewService(s.store, s.store, s.gate, s.tracker, s.pipeline, log.Named("Admin")).
		WithProbe("database", s.store).
		WithProbe("redis", redisProbe)
	admin.NewHandler(adminSvc).RegisterRoutes(api, authMW)
}
