package config

import "time"

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int
	Env            string // "development" | "production" | "test"
	Timezone       string
	AllowedOrigins []string
	Paths          RuntimePathsConfig
	Mongo          MongoRuntimeConfig
	Redis          RedisRuntimeConfig
	RedisURL       string
	Store          StoreRuntimeConfig
	JWT            JWTRuntimeConfig
	AI             AIProviderConfig
	AILimits       AILimitsConfig
	RateLimit      RateLimitConfig
	Analytics      AnalyticsConfig
	Alert          AlertConfig

	baseDir string
}

type RuntimePathsConfig struct {
	Logs string
}

type MongoRuntimeConfig struct {
	URI      string
	Database string
}

type RedisRuntimeConfig struct {
	URL      string
	Host     string
	Port     int
	Username string
	Password string
	DB       int
	TLS      bool
}

type StoreRuntimeConfig struct {
	Driver string // mongo | memory
}

type JWTRuntimeConfig struct {
	Secret           string
	RefreshSecret    string
	ExpiresIn        time.Duration
	RefreshExpiresIn time.Duration
}

// AIProviderConfig selects the completion backend. An empty APIKey puts the
// pipeline in mock mode.
type AIProviderConfig struct {
	Type      string // openai | anthropic | openai-compatible
	APIKey    string
	Endpoint  string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// Configured reports whether a real provider credential is present.
func (c AIProviderConfig) Configured() bool { return c.APIKey != "" }

type AILimitsConfig struct {
	DailyFree      int
	DailyPremium   int
	MonthlyFree    int
	MonthlyPremium int
	ReservationTTL time.Duration
}

type RateLimitConfig struct {
	Window     time.Duration
	Max        int
	AuthWindow time.Duration
	AuthMax    int
	AIWindow   time.Duration
	AIMax      int
}

type AnalyticsConfig struct {
	Enabled       bool
	Sink          string // mongo | mysql
	MySQLDSN      string
	RetentionDays int
}

type AlertConfig struct {
	BarkKey    string
	BarkServer string
	SiteTitle  string
}

type rawAppConfig struct {
	Port           int               `yaml:"port"`
	Env            string            `yaml:"env"`
	Timezone       string            `yaml:"timezone"`
	TZ             string            `yaml:"tz"`
	AllowedOrigins []string          `yaml:"allowed_origins"`
	LogDir         string            `yaml:"log_dir"`
	Mongo          rawMongoConfig    `yaml:"mongo"`
	MongoURI       string            `yaml:"mongodb_uri"`
	Redis          rawRedisConfig    `yaml:"redis"`
	RedisURL       string            `yaml:"redis_url"`
	Store          rawStoreConfig    `yaml:"store"`
	JWT            rawJWTConfig      `yaml:"jwt"`
	JWTSecret      string            `yaml:"jwt_secret"`
	AI             rawAIConfig       `yaml:"ai"`
	AILimits       rawAILimitsConfig `yaml:"ai_limits"`
	RateLimit      rawRateConfig     `yaml:"rate_limit"`
	Analytics      rawAnalyticsConf  `yaml:"analytics"`
	Alert          rawAlertConfig    `yaml:"alert"`
}

type rawMongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type rawRedisConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       *int   `yaml:"db"`
	TLS      *bool  `yaml:"tls"`
}

type rawStoreConfig struct {
	Driver string `yaml:"driver"`
}

type rawJWTConfig struct {
	Secret           string `yaml:"secret"`
	RefreshSecret    string `yaml:"refresh_secret"`
	ExpiresIn        string `yaml:"expires_in"`
	RefreshExpiresIn string `yaml:"refresh_expires_in"`
}

type rawAIConfig struct {
	Provider  string `yaml:"provider"`
	APIKey    string `yaml:"api_key"`
	Endpoint  string `yaml:"endpoint"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
	Timeout   string `yaml:"timeout"`
}

type rawAILimitsConfig struct {
	DailyFree      int    `yaml:"daily_free"`
	DailyPremium   int    `yaml:"daily_premium"`
	MonthlyFree    int    `yaml:"monthly_free"`
	MonthlyPremium int    `yaml:"monthly_premium"`
	ReservationTTL string `yaml:"reservation_ttl"`
}

type rawRateConfig struct {
	Window     string `yaml:"window"`
	Max        int    `yaml:"max"`
	AuthWindow string `yaml:"auth_window"`
	AuthMax    int    `yaml:"auth_max"`
	AIWindow   string `yaml:"ai_window"`
	AIMax      int    `yaml:"ai_max"`
}

type rawAnalyticsConf struct {
	Enabled       *bool  `yaml:"enabled"`
	Sink          string `yaml:"sink"`
	MySQLDSN      string `yaml:"mysql_dsn"`
	RetentionDays int    `yaml:"retention_days"`
}

type rawAlertConfig struct {
	BarkKey    string `yaml:"bark_key"`
	BarkServer string `yaml:"bark_server"`
	SiteTitle  string `yaml:"site_title"`
}
