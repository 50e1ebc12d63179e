package refreshtoken

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Status is the explicit lifecycle variant of a stored refresh token. At most
// one Valid token exists per token hash; rotation flips the old record to
// Rotated in the same transaction that creates its replacement.
type Status string

const (
	StatusValid   Status = "valid"
	StatusRotated Status = "rotated"
	StatusRevoked Status = "revoked"
	StatusExpired Status = "expired"
)

type RefreshToken struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	UserID      uint       `json:"user_id" gorm:"not null;index"`
	TokenHash   string     `json:"-" gorm:"uniqueIndex;size:64;not null"`
	Fingerprint string     `json:"-" gorm:"size:64"`
	IssuedAt    time.Time  `json:"issued_at" gorm:"not null"`
	ExpiresAt   time.Time  `json:"expires_at" gorm:"not null;index"`
	UsedAt      *time.Time `json:"used_at"`
	RevokedAt   *time.Time `json:"revoked_at"`
}

func (RefreshToken) TableName() string {
	return "refresh_tokens"
}

func (t *RefreshToken) Status(now time.Time) Status {
	switch {
	case t.RevokedAt != nil:
		return StatusRevoked
	case t.UsedAt != nil:
		return StatusRotated
	case now.After(t.ExpiresAt):
		return StatusExpired
	default:
		return StatusValid
	}
}

// DeviceInfo is the client context a token is bound to.
type DeviceInfo struct {
	IPAddress string
	UserAgent string
}

// Fingerprint derives the identifier binding a refresh token to the device
// that received it.
func (d DeviceInfo) Fingerprint() string {
	hash := sha256.Sum256([]byte(d.IPAddress + "|" + d.UserAgent))
	return hex.EncodeToString(hash[:])
}

type IssuedToken struct {
	Token     string
	TokenID   uint
	UserID    uint
	ExpiresAt time.Time
}

type RotationResult struct {
	UserID     uint
	OldTokenID uint
	NewToken   *IssuedToken
}
