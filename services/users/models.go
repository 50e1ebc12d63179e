package users

import (
	"time"
)

type User struct {
	ID                  uint       `json:"id" gorm:"primaryKey"`
	Email               string     `json:"email" gorm:"uniqueIndex;size:255;not null"`
	PasswordHash        string     `json:"-" gorm:"size:255;not null"`
	IsActive            bool       `json:"is_active" gorm:"not null;default:true"`
	TwoFactorEnabled    bool       `json:"two_factor_enabled" gorm:"not null;default:false"`
	TwoFactorSecret     string     `json:"-" gorm:"size:255"`
	FailedLoginAttempts int        `json:"-" gorm:"not null;default:0"`
	LockedUntil         *time.Time `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
