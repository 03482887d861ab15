package app

import (
	"net/url"
	"strings"
	"time"

	"github.com/aiassist/core/internal/config"
	"github.com/aiassist/core/internal/middleware"
	"github.com/gin-contrib/cors"
)

// corsConfig allows every origin in development. Elsewhere an empty
// allow-list also allows every origin, otherwise the request origin must
// match one of the patterns.
func corsConfig(cfg *config.AppConfig) cors.Config {
	cc := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.IdempotencyHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	patterns := cfg.AllowedOrigins
	if len(patterns) == 0 || cfg.IsDev() {
		cc.AllowOriginFunc = func(string) bool { return true }
		return cc
	}
	cc.AllowOriginFunc = func(origin string) bool {
		host := originHost(origin)
		for _, pattern := range patterns {
			if matchOrigin(pattern, host) {
				return true
			}
		}
		return false
	}
	return cc
}

// originHost returns the "host[:port]" portion of an origin URL.
func originHost(origin string) string {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return origin
	}
	return u.Host
}

// matchOrigin supports exact hosts, "*.example.com" subdomain wildcards and
// "localhost:*" port wildcards. Patterns given as full origins are reduced
// to their host first.
func matchOrigin(pattern, host string) bool {
	pattern = originHost(pattern)
	switch {
	case pattern == host:
		return true
	case strings.HasPrefix(pattern, "*."):
		return strings.HasSuffix(host, pattern[1:])
	case strings.HasSuffix(pattern, ":*"):
		return strings.HasPrefix(host, pattern[:len(pattern)-1])
	}
	return false
}
