package sessions

import (
	"errors"
	"fmt"
	"time"

	"github.com/learnhive/authcore/config"
	"github.com/learnhive/authcore/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrSessionNotFound = errors.New("session not found")

// TokenRevoker is the slice of the refresh-token service the registry needs
// when it evicts or terminates a session.
type TokenRevoker interface {
	RevokeByID(tokenID uint) error
}

type NewSession struct {
	UserID         uint
	RefreshTokenID uint
	DeviceName     string
	Fingerprint    string
	IPAddress      string
	UserAgent      string
	ExpiresAt      time.Time
}

type Service struct {
	db      *gorm.DB
	config  *config.Config
	revoker TokenRevoker
	logger  *logging.Service
}

func NewService(db *gorm.DB, cfg *config.Config, revoker TokenRevoker, logger *logging.Service) *Service {
	return &Service{
		db:      db,
		config:  cfg,
		revoker: revoker,
		logger:  logger,
	}
}

// Create registers a session for a fresh login. When the user is already at
// the session cap, the least-recently-active session is terminated and its
// refresh token revoked before the new one is created.
func (s *Service) Create(ns NewSession) (*Session, error) {
	now := time.Now()

	if max := s.config.Session.MaxPerUser; max > 0 {
		evicted, err := s.evictOldest(ns.UserID, max-1, now)
		if err != nil {
			return nil, err
		}
		if evicted > 0 && s.logger != nil {
			s.logger.Info("evicted least-recently-active sessions",
				zap.Uint("user_id", ns.UserID),
				zap.Int("count", evicted))
		}
	}

	session := Session{
		UserID:         ns.UserID,
		RefreshTokenID: ns.RefreshTokenID,
		DeviceName:     DeriveDeviceName(ns.UserAgent, ns.DeviceName),
		Fingerprint:    ns.Fingerprint,
		IPAddress:      ns.IPAddress,
		UserAgent:      ns.UserAgent,
		LastActivity:   now,
		ExpiresAt:      ns.ExpiresAt,
		CreatedAt:      now,
	}

	if err := s.db.Create(&session).Error; err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("session created",
			zap.Uint("user_id", ns.UserID),
			zap.Uint("session_id", session.ID),
			zap.String("device", session.DeviceName))
	}

	return &session, nil
}

func (s *Service) evictOldest(userID uint, keep int, now time.Time) (int, error) {
	var active []Session
	err := s.db.Where("user_id = ? AND terminated_at IS NULL AND expires_at > ?", userID, now).
		Order("last_activity ASC").
		Find(&active).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count active sessions: %w", err)
	}

	if len(active) <= keep {
		return 0, nil
	}

	evicted := 0
	for _, victim := range active[:len(active)-keep] {
		if err := s.terminate(&victim, now); err != nil {
			return evicted, err
		}
		evicted++
	}
	return evicted, nil
}

// List returns the user's active sessions, most recently active first.
func (s *Service) List(userID uint) ([]Session, error) {
	var sessions []Session
	err := s.db.Where("user_id = ? AND terminated_at IS NULL AND expires_at > ?", userID, time.Now()).
		Order("last_activity DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

func (s *Service) Get(sessionID, userID uint) (*Session, error) {
	var session Session
	err := s.db.Where("id = ? AND user_id = ?", sessionID, userID).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &session, nil
}

// Touch bumps last_activity for the session holding the given refresh token.
func (s *Service) Touch(refreshTokenID uint) error {
	return s.db.Model(&Session{}).
		Where("refresh_token_id = ?", refreshTokenID).
		Update("last_activity", time.Now()).Error
}

// AttachToken points the session at the replacement refresh token after a
// rotation and records the activity.
func (s *Service) AttachToken(oldTokenID, newTokenID uint) error {
	result := s.db.Model(&Session{}).
		Where("refresh_token_id = ? AND terminated_at IS NULL", oldTokenID).
		Updates(map[string]any{
			"refresh_token_id": newTokenID,
			"last_activity":    time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update session token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Terminate ends a single session owned by the user and revokes its token.
func (s *Service) Terminate(sessionID, userID uint) (bool, error) {
	session, err := s.Get(sessionID, userID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return false, nil
		}
		return false, err
	}

	if session.TerminatedAt != nil {
		return false, nil
	}

	if err := s.terminate(session, time.Now()); err != nil {
		return false, err
	}

	if s.logger != nil {
		s.logger.Info("session terminated",
			zap.Uint("user_id", userID),
			zap.Uint("session_id", sessionID))
	}
	return true, nil
}

// TerminateAll ends every active session for the user, optionally sparing
// one, and returns how many were ended.
func (s *Service) TerminateAll(userID uint, exceptSessionID uint) (int64, error) {
	var active []Session
	q := s.db.Where("user_id = ? AND terminated_at IS NULL", userID)
	if exceptSessionID != 0 {
		q = q.Where("id != ?", exceptSessionID)
	}
	if err := q.Find(&active).Error; err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	now := time.Now()
	var count int64
	for _, session := range active {
		if err := s.terminate(&session, now); err != nil {
			return count, err
		}
		count++
	}

	if s.logger != nil {
		s.logger.Info("terminated user sessions",
			zap.Uint("user_id", userID),
			zap.Int64("count", count))
	}
	return count, nil
}

func (s *Service) terminate(session *Session, now time.Time) error {
	result := s.db.Model(&Session{}).
		Where("id = ? AND terminated_at IS NULL", session.ID).
		Update("terminated_at", now)
	if result.Error != nil {
		return fmt.Errorf("failed to terminate session: %w", result.Error)
	}

	if s.revoker != nil && session.RefreshTokenID != 0 {
		if err := s.revoker.RevokeByID(session.RefreshTokenID); err != nil && s.logger != nil {
			s.logger.Warn("failed to revoke refresh token for terminated session",
				zap.Error(err),
				zap.Uint("session_id", session.ID))
		}
	}
	return nil
}

// CleanupExpired removes sessions past expiry and rows terminated more than
// a day ago.
func (s *Service) CleanupExpired() error {
	now := time.Now()
	result := s.db.Where("expires_at < ? OR terminated_at < ?", now, now.Add(-24*time.Hour)).
		Delete(&Session{})
	if result.Error != nil {
		return fmt.Errorf("failed to cleanup sessions: %w", result.Error)
	}

	if s.logger != nil && result.RowsAffected > 0 {
		s.logger.Info("cleaned up expired sessions",
			zap.Int64("count", result.RowsAffected))
	}
	return nil
}

func (s *Service) StartCleanupWorker() {
	go func() {
		ticker := time.NewTicker(s.config.Session.CleanupInterval)
		defer ticker.Stop()

		for range ticker.C {
			if err := s.CleanupExpired(); err != nil && s.logger != nil {
				s.logger.Error("session cleanup worker failed", zap.Error(err))
			}
		}
	}()
}
