package loginaudit

import (
	"fmt"
	"time"

	"github.com/learnhive/authcore/config"
	"github.com/learnhive/authcore/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	config *config.Config
	logger *logging.Service
}

func NewService(db *gorm.DB, cfg *config.Config, logger *logging.Service) *Service {
	return &Service{
		db:     db,
		config: cfg,
		logger: logger,
	}
}

// RecordSuccess writes a successful attempt. Audit failures are logged but
// never fail the login itself.
func (s *Service) RecordSuccess(email, ip, userAgent string) {
	s.record(LoginAttempt{
		Email:     email,
		IPAddress: ip,
		UserAgent: userAgent,
		Success:   true,
	})
}

func (s *Service) RecordFailure(email, ip, userAgent, reason string) {
	s.record(LoginAttempt{
		Email:         email,
		IPAddress:     ip,
		UserAgent:     userAgent,
		Success:       false,
		FailureReason: reason,
	})
}

func (s *Service) record(attempt LoginAttempt) {
	attempt.CreatedAt = time.Now()
	if err := s.db.Create(&attempt).Error; err != nil && s.logger != nil {
		s.logger.Error("failed to write login attempt",
			zap.Error(err),
			zap.String("email", attempt.Email))
	}
}

// RecentForEmail returns attempts for the address since the given time,
// newest first.
func (s *Service) RecentForEmail(email string, since time.Time) ([]LoginAttempt, error) {
	var attempts []LoginAttempt
	err := s.db.Where("email = ? AND created_at > ?", email, since).
		Order("created_at DESC").
		Find(&attempts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load login attempts: %w", err)
	}
	return attempts, nil
}

// CleanupExpired drops attempts older than the retention window.
func (s *Service) CleanupExpired() error {
	cutoff := time.Now().Add(-s.config.LoginAudit.Retention)
	result := s.db.Where("created_at < ?", cutoff).Delete(&LoginAttempt{})
	if result.Error != nil {
		return fmt.Errorf("failed to cleanup login attempts: %w", result.Error)
	}

	if s.logger != nil && result.RowsAffected > 0 {
		s.logger.Info("cleaned up old login attempts",
			zap.Int64("count", result.RowsAffected))
	}
	return nil
}

func (s *Service) StartCleanupWorker() {
	go func() {
		ticker := time.NewTicker(s.config.LoginAudit.CleanupInterval)
		defer ticker.Stop()

		for range ticker.C {
			if err := s.CleanupExpired(); err != nil && s.logger != nil {
				s.logger.Error("login attempt cleanup worker failed", zap.Error(err))
			}
		}
	}()
}
