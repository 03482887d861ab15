package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	neturl "net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}
	cfg, err := Parse(content, path)
	if err != nil {
		return nil, err
	}
	if abs, err := filepath.Abs(path); err == nil {
		cfg.baseDir = filepath.Dir(abs)
	}
	return cfg, nil
}

// Parse decodes YAML content, applies defaults and environment overrides and
// validates the result. name is only used in error messages.
func Parse(content []byte, name string) (*AppConfig, error) {
	cfg := defaultAppConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	raw := rawAppConfig{}
	if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config file %q: %w", name, err)
	}

	if err := applyRawAppConfig(&cfg, raw); err != nil {
		return nil, fmt.Errorf("config %q: %w", name, err)
	}
	applyEnvOverrides(&cfg)
	cfg.RedisURL = cfg.Redis.URLValue()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %q: %w", name, err)
	}
	return &cfg, nil
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Port:     defaultPort,
		Env:      defaultEnv,
		Timezone: defaultTimezone,
		Mongo: MongoRuntimeConfig{
			URI:      defaultMongoURI,
			Database: defaultMongoDatabase,
		},
		Redis: RedisRuntimeConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		Store: StoreRuntimeConfig{Driver: defaultStoreDriver},
		JWT: JWTRuntimeConfig{
			Secret:           DefaultJWTSecret,
			RefreshSecret:    defaultJWTRefreshSecret,
			ExpiresIn:        defaultJWTExpiresIn,
			RefreshExpiresIn: defaultJWTRefreshIn,
		},
		AI: AIProviderConfig{
			Type:      "openai",
			MaxTokens: defaultAIMaxTokens,
			Timeout:   defaultAITimeout,
		},
		AILimits: AILimitsConfig{
			DailyFree:      defaultDailyFree,
			DailyPremium:   defaultDailyPremium,
			MonthlyFree:    defaultMonthlyFree,
			MonthlyPremium: defaultMonthlyPremium,
			ReservationTTL: defaultReservationTTL,
		},
		RateLimit: RateLimitConfig{
			Window:     defaultRateWindow,
			Max:        defaultRateMax,
			AuthWindow: defaultAuthRateWindow,
			AuthMax:    defaultAuthRateMax,
			AIWindow:   defaultAIRateWindow,
			AIMax:      defaultAIRateMax,
		},
		Analytics: AnalyticsConfig{
			Enabled:       true,
			Sink:          defaultAnalyticsSink,
			RetentionDays: defaultAnalyticsRetention,
		},
		Alert: AlertConfig{SiteTitle: defaultAlertSiteTitle},
	}
}

func applyRawAppConfig(cfg *AppConfig, raw rawAppConfig) error {
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.Env); v != "" {
		cfg.Env = strings.ToLower(v)
	}
	if v := strings.TrimSpace(raw.Timezone); v != "" {
		cfg.Timezone = v
	}
	if v := strings.TrimSpace(raw.TZ); v != "" {
		cfg.Timezone = v
	}
	if raw.AllowedOrigins != nil {
		cfg.AllowedOrigins = normalizeOrigins(raw.AllowedOrigins)
	}
	if v := strings.TrimSpace(raw.LogDir); v != "" {
		cfg.Paths.Logs = v
	}

	if v := strings.TrimSpace(raw.Mongo.URI); v != "" {
		cfg.Mongo.URI = v
	}
	if v := strings.TrimSpace(raw.MongoURI); v != "" {
		cfg.Mongo.URI = v
	}
	if v := strings.TrimSpace(raw.Mongo.Database); v != "" {
		cfg.Mongo.Database = v
	}

	applyRawRedisConfig(&cfg.Redis, raw)

	if v := strings.ToLower(strings.TrimSpace(raw.Store.Driver)); v != "" {
		cfg.Store.Driver = v
	}

	if v := strings.TrimSpace(raw.JWT.Secret); v != "" {
		cfg.JWT.Secret = v
	}
	if v := strings.TrimSpace(raw.JWTSecret); v != "" {
		cfg.JWT.Secret = v
	}
	if v := strings.TrimSpace(raw.JWT.RefreshSecret); v != "" {
		cfg.JWT.RefreshSecret = v
	}
	var err error
	if cfg.JWT.ExpiresIn, err = durationOr(raw.JWT.ExpiresIn, cfg.JWT.ExpiresIn, "jwt.expires_in"); err != nil {
		return err
	}
	if cfg.JWT.RefreshExpiresIn, err = durationOr(raw.JWT.RefreshExpiresIn, cfg.JWT.RefreshExpiresIn, "jwt.refresh_expires_in"); err != nil {
		return err
	}

	if v := strings.TrimSpace(raw.AI.Provider); v != "" {
		cfg.AI.Type = NormalizeProviderType(v)
	}
	cfg.AI.APIKey = strings.TrimSpace(raw.AI.APIKey)
	cfg.AI.Endpoint = strings.TrimSpace(raw.AI.Endpoint)
	cfg.AI.Model = strings.TrimSpace(raw.AI.Model)
	if raw.AI.MaxTokens != 0 {
		cfg.AI.MaxTokens = raw.AI.MaxTokens
	}
	if cfg.AI.Timeout, err = durationOr(raw.AI.Timeout, cfg.AI.Timeout, "ai.timeout"); err != nil {
		return err
	}

	limits := &cfg.AILimits
	intOr(&limits.DailyFree, raw.AILimits.DailyFree)
	intOr(&limits.DailyPremium, raw.AILimits.DailyPremium)
	intOr(&limits.MonthlyFree, raw.AILimits.MonthlyFree)
	intOr(&limits.MonthlyPremium, raw.AILimits.MonthlyPremium)
	if limits.ReservationTTL, err = durationOr(raw.AILimits.ReservationTTL, limits.ReservationTTL, "ai_limits.reservation_ttl"); err != nil {
		return err
	}

	rl := &cfg.RateLimit
	intOr(&rl.Max, raw.RateLimit.Max)
	intOr(&rl.AuthMax, raw.RateLimit.AuthMax)
	intOr(&rl.AIMax, raw.RateLimit.AIMax)
	if rl.Window, err = durationOr(raw.RateLimit.Window, rl.Window, "rate_limit.window"); err != nil {
		return err
	}
	if rl.AuthWindow, err = durationOr(raw.RateLimit.AuthWindow, rl.AuthWindow, "rate_limit.auth_window"); err != nil {
		return err
	}
	if rl.AIWindow, err = durationOr(raw.RateLimit.AIWindow, rl.AIWindow, "rate_limit.ai_window"); err != nil {
		return err
	}

	if raw.Analytics.Enabled != nil {
		cfg.Analytics.Enabled = *raw.Analytics.Enabled
	}
	if v := strings.ToLower(strings.TrimSpace(raw.Analytics.Sink)); v != "" {
		cfg.Analytics.Sink = v
	}
	cfg.Analytics.MySQLDSN = strings.TrimSpace(raw.Analytics.MySQLDSN)
	intOr(&cfg.Analytics.RetentionDays, raw.Analytics.RetentionDays)

	cfg.Alert.BarkKey = strings.TrimSpace(raw.Alert.BarkKey)
	cfg.Alert.BarkServer = strings.TrimSpace(raw.Alert.BarkServer)
	if v := strings.TrimSpace(raw.Alert.SiteTitle); v != "" {
		cfg.Alert.SiteTitle = v
	}
	return nil
}

func applyRawRedisConfig(cfg *RedisRuntimeConfig, raw rawAppConfig) {
	if v := strings.TrimSpace(raw.Redis.URL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(raw.RedisURL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(raw.Redis.Host); v != "" {
		cfg.Host = v
	}
	if raw.Redis.Port != 0 {
		cfg.Port = raw.Redis.Port
	}
	cfg.Username = strings.TrimSpace(raw.Redis.Username)
	cfg.Password = strings.TrimSpace(raw.Redis.Password)
	if raw.Redis.DB != nil {
		cfg.DB = *raw.Redis.DB
	}
	if raw.Redis.TLS != nil {
		cfg.TLS = *raw.Redis.TLS
	}
}

// applyEnvOverrides lets deployments keep secrets out of the YAML file.
func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv("JWT_SECRET")); v != "" {
		cfg.JWT.Secret = v
	}
	if v := strings.TrimSpace(os.Getenv("JWT_REFRESH_SECRET")); v != "" {
		cfg.JWT.RefreshSecret = v
	}
	if v := strings.TrimSpace(os.Getenv("MONGODB_URI")); v != "" {
		cfg.Mongo.URI = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.Redis.URL = v
	}
	if cfg.AI.APIKey == "" {
		key := "OPENAI_API_KEY"
		if cfg.AI.Type == "anthropic" {
			key = "ANTHROPIC_API_KEY"
		}
		cfg.AI.APIKey = strings.TrimSpace(os.Getenv(key))
	}
}

func (c *AppConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d, expected 1-65535", c.Port)
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		return fmt.Errorf("invalid redis.port %d, expected 1-65535", c.Redis.Port)
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("invalid redis.db %d, expected >= 0", c.Redis.DB)
	}
	switch c.Store.Driver {
	case StoreDriverMongo, StoreDriverMemory:
	default:
		return fmt.Errorf("invalid store.driver %q, expected mongo or memory", c.Store.Driver)
	}
	switch c.Analytics.Sink {
	case AnalyticsSinkMongo:
	case AnalyticsSinkMySQL:
		if c.Analytics.Enabled && c.Analytics.MySQLDSN == "" {
			return errors.New("analytics.mysql_dsn is required when analytics.sink is mysql")
		}
	default:
		return fmt.Errorf("invalid analytics.sink %q, expected mongo or mysql", c.Analytics.Sink)
	}
	switch c.AI.Type {
	case "openai", "anthropic", "openai-compatible":
	default:
		return fmt.Errorf("invalid ai.provider %q", c.AI.Type)
	}
	l := c.AILimits
	if l.DailyFree < 1 || l.DailyPremium < 1 || l.MonthlyFree < 1 || l.MonthlyPremium < 1 {
		return errors.New("ai_limits must all be positive")
	}
	if l.ReservationTTL <= c.AI.Timeout {
		return fmt.Errorf("ai_limits.reservation_ttl (%s) must exceed ai.timeout (%s)", l.ReservationTTL, c.AI.Timeout)
	}
	if c.JWT.Secret == c.JWT.RefreshSecret {
		return errors.New("jwt.secret and jwt.refresh_secret must differ")
	}
	if c.IsProduction() && c.JWT.Secret == DefaultJWTSecret {
		return errors.New("jwt.secret must be set in production")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// ParseDuration accepts Go duration syntax, a day suffix ("7d") or a bare
// number of seconds.
func ParseDuration(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, errors.New("empty duration")
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

func durationOr(raw string, fallback time.Duration, key string) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

func intOr(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// NormalizeProviderType folds spelling variants such as "OpenAI_Compatible".
func NormalizeProviderType(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	t = strings.ReplaceAll(t, "_", "-")
	t = strings.ReplaceAll(t, " ", "")
	if t == "openaicompatible" {
		t = "openai-compatible"
	}
	return t
}

func (c RedisRuntimeConfig) URLValue() string {
	if u := strings.TrimSpace(c.URL); u != "" {
		if strings.HasPrefix(u, "redis://") || strings.HasPrefix(u, "rediss://") {
			return u
		}
		return "redis://" + u
	}

	scheme := "redis"
	if c.TLS {
		scheme = "rediss"
	}
	u := &neturl.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + strconv.Itoa(c.DB),
	}
	if c.Username != "" {
		if c.Password != "" {
			u.User = neturl.UserPassword(c.Username, c.Password)
		} else {
			u.User = neturl.User(c.Username)
		}
	} else if c.Password != "" {
		u.User = neturl.UserPassword("", c.Password)
	}
	return u.String()
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func (c *AppConfig) IsDev() bool {
	return strings.EqualFold(c.Env, defaultEnv)
}

func (c *AppConfig) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Location returns the zone used for calendar-day and calendar-month windows.
func (c *AppConfig) Location() *time.Location {
	if c == nil || c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// LogDir is the configured log directory resolved against the config file
// location, or empty when unset.
func (c *AppConfig) LogDir() string {
	if c == nil {
		return ""
	}
	return ResolvePath(c.baseDir, c.Paths.Logs)
}
