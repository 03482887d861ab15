package database

import (
	"fmt"

	"github.com/aiassist/core/internal/models"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenMySQL opens the analytics database and migrates its single table.
func OpenMySQL(dsn string, dev bool) (*gorm.DB, error) {
	logLevel := logger.Warn
	if dev {
		logLevel = logger.Info
	}
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:               dsn,
		DefaultStringSize: 191,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := db.AutoMigrate(&models.AnalyticsEvent{}); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return db, nil
}
