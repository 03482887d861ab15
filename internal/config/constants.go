package config

import "time"

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"

	defaultPort     = 3000
	defaultEnv      = "development"
	defaultTimezone = "Local"

	defaultMongoURI      = "mongodb://localhost:27017"
	defaultMongoDatabase = "ai_assistant"

	defaultRedisHost = "localhost"
	defaultRedisPort = 6379
	defaultRedisDB   = 0

	defaultStoreDriver = StoreDriverMongo

	// DefaultJWTSecret is rejected outside development.
	DefaultJWTSecret        = "ai-assistant-secret-change-me"
	defaultJWTRefreshSecret = "ai-assistant-refresh-secret-change-me"
	defaultJWTExpiresIn     = 7 * 24 * time.Hour
	defaultJWTRefreshIn     = 30 * 24 * time.Hour

	defaultAIMaxTokens = 1000
	defaultAITimeout   = 60 * time.Second

	defaultDailyFree      = 10
	defaultDailyPremium   = 100
	defaultMonthlyFree    = 100
	defaultMonthlyPremium = 3000
	defaultReservationTTL = 2 * time.Minute

	defaultRateWindow     = 15 * time.Minute
	defaultRateMax        = 100
	defaultAuthRateWindow = 15 * time.Minute
	defaultAuthRateMax    = 10
	defaultAIRateWindow   = time.Minute
	defaultAIRateMax      = 10

	defaultAnalyticsSink      = AnalyticsSinkMongo
	defaultAnalyticsRetention = 90

	defaultAlertSiteTitle = "AI Assistant"
)

const (
	StoreDriverMongo  = "mongo"
	StoreDriverMemory = "memory"

	AnalyticsSinkMongo = "mongo"
	AnalyticsSinkMySQL = "mysql"
)
