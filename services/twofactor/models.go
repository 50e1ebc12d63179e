package twofactor

import (
	"time"
)

// BackupCode holds the bcrypt hash of one single-use recovery code. The
// plaintext is shown to the user exactly once, at generation time.
type BackupCode struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"user_id" gorm:"not null;index"`
	CodeHash  string    `json:"-" gorm:"size:255;not null"`
	CreatedAt time.Time `json:"created_at"`
}

func (BackupCode) TableName() string {
	return "backup_codes"
}

// UsedCode records a recently accepted TOTP code so it cannot be replayed
// within its validity window.
type UsedCode struct {
	ID     uint   `gorm:"primaryKey"`
	UserID uint   `gorm:"index:idx_user_code,priority:1;not null"`
	Code   string `gorm:"index:idx_user_code,priority:2;size:10;not null"`
	UsedAt int64  `gorm:"index:idx_used_at;not null"`
}

func (UsedCode) TableName() string {
	return "twofactor_used_codes"
}

// Enrollment is returned from Setup; it is the only time the backup codes
// exist in plaintext.
type Enrollment struct {
	Secret          string
	ProvisioningURI string
	BackupCodes     []string
}
