package sessions

import (
	"time"

	"github.com/mileusna/useragent"
)

type Session struct {
	ID             uint       `json:"id" gorm:"primaryKey"`
	UserID         uint       `json:"user_id" gorm:"not null;index"`
	RefreshTokenID uint       `json:"-" gorm:"not null;index"`
	DeviceName     string     `json:"device_name" gorm:"size:100"`
	Fingerprint    string     `json:"-" gorm:"size:64"`
	IPAddress      string     `json:"ip_address" gorm:"size:45"`
	UserAgent      string     `json:"user_agent" gorm:"size:500"`
	LastActivity   time.Time  `json:"last_activity" gorm:"not null;index"`
	ExpiresAt      time.Time  `json:"expires_at" gorm:"not null;index"`
	TerminatedAt   *time.Time `json:"terminated_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (Session) TableName() string {
	return "sessions"
}

func (s *Session) Active(now time.Time) bool {
	return s.TerminatedAt == nil && now.Before(s.ExpiresAt)
}

// DeriveDeviceName turns a raw user-agent string into a readable device
// label ("Chrome on Android", "Firefox on macOS"). Falls back to the
// caller-supplied name when one was given.
func DeriveDeviceName(userAgent, explicit string) string {
	if explicit != "" {
		return explicit
	}

	ua := useragent.Parse(userAgent)
	switch {
	case ua.Name != "" && ua.OS != "":
		return ua.Name + " on " + ua.OS
	case ua.Name != "":
		return ua.Name
	default:
		return "Unknown device"
	}
}
