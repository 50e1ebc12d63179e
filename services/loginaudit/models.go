package loginaudit

import (
	"time"
)

// Failure reasons recorded in the audit trail. Detail lives here only; the
// response body never distinguishes them.
const (
	ReasonUserNotFound      = "user_not_found"
	ReasonInvalidPassword   = "invalid_password"
	ReasonAccountLocked     = "account_locked"
	ReasonAccountInactive   = "account_inactive"
	ReasonRateLimited       = "rate_limited"
	ReasonTwoFactorRequired   = "twofactor_required"
	ReasonTwoFactorInvalid    = "twofactor_invalid"
	ReasonPendingTokenInvalid = "pending_token_invalid"
	ReasonTokenReuse          = "refresh_token_reuse"
)

// LoginAttempt is append-only: written once at each decision point, never
// mutated.
type LoginAttempt struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	Email         string    `json:"email" gorm:"size:255;index"`
	IPAddress     string    `json:"ip_address" gorm:"size:45;index"`
	UserAgent     string    `json:"user_agent" gorm:"size:500"`
	Success       bool      `json:"success" gorm:"not null"`
	FailureReason string    `json:"failure_reason" gorm:"size:100"`
	CreatedAt     time.Time `json:"created_at" gorm:"index"`
}

func (LoginAttempt) TableName() string {
	return "login_attempts"
}
