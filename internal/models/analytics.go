package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	EventLogin               = "login"
	EventLogout              = "logout"
	EventRegister            = "register"
	EventAIRequest           = "ai_request"
	EventAIResponse          = "ai_response"
	EventAIError             = "ai_error"
	EventConversationCreated = "conversation_created"
	EventSettingsUpdated     = "settings_updated"
)

// AnalyticsEvent is stored either as a Mongo document or a MySQL row.
type AnalyticsEvent struct {
	ID         string                 `json:"id"         bson:"_id"        gorm:"type:char(36);primaryKey"`
	UserID     string                 `json:"userId"     bson:"userId"     gorm:"type:varchar(64);index"`
	EventType  string                 `json:"eventType"  bson:"eventType"  gorm:"type:varchar(64);index"`
	Properties map[string]interface{} `json:"properties" bson:"properties" gorm:"serializer:json;type:longtext"`
	IP         string                 `json:"ip"         bson:"ip"`
	UserAgent  string                 `json:"userAgent"  bson:"userAgent"  gorm:"type:text"`
	CreatedAt  time.Time              `json:"createdAt"  bson:"createdAt"  gorm:"index"`
}

func (AnalyticsEvent) TableName() string { return "analytics_events" }

func (e *AnalyticsEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}
