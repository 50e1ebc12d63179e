package lockout

import (
	"time"
)

type AccountLockout struct {
	ID             uint       `json:"id" gorm:"primaryKey"`
	UserID         uint       `json:"user_id" gorm:"not null;index"`
	LockedUntil    time.Time  `json:"locked_until" gorm:"not null"`
	FailedAttempts int        `json:"failed_attempts" gorm:"not null"`
	Reason         string     `json:"reason" gorm:"size:100"`
	UnlockedAt     *time.Time `json:"unlocked_at"`
	UnlockedBy     uint       `json:"unlocked_by"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (AccountLockout) TableName() string {
	return "account_lockouts"
}
