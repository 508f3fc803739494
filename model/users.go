package model

import "gorm.io/gorm"

// User is a staff account that can sign in to the scheduling console.
type User struct {
	gorm.Model
	Name           string `json:"name" gorm:"not null"`
	Email          string `json:"email" gorm:"type:varchar(191);uniqueIndex;not null"`
	Password       string `json:"-" gorm:"not null"`
	PasswordSalt   string `json:"-"`
	RoleID         uint32 `json:"role_id" gorm:"not null;default:2"`
	FailedAttempts int    `json:"-" gorm:"default:0"`
	LockedUntil    *int64 `json:"-"`
}
