package model

import (
	"time"

	"gorm.io/gorm"
)

// Session is a persisted login session backing the session-token header.
type Session struct {
	gorm.Model
	SessionToken string    `json:"session_token" gorm:"type:varchar(512);uniqueIndex;not null"`
	UserID       uint      `json:"user_id" gorm:"not null;index"`
	ExpiresAt    time.Time `json:"expires_at" gorm:"not null"`
	ClientIP     string    `json:"client_ip" gorm:"type:varchar(45)"`
	Browser      string    `json:"browser" gorm:"type:varchar(512)"`
}
