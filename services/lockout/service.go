package lockout

import (
	"errors"
	"fmt"
	"time"

	"github.com/learnhive/authcore/config"
	"github.com/learnhive/authcore/services/logging"
	"github.com/learnhive/authcore/services/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrNoActiveLockout = errors.New("no active lockout for user")

const ReasonFailedAttempts = "failed_login_attempts"

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

// RecordFailure bumps the user's failure counter atomically; when the
// threshold is crossed it locks the account, resets the counter, and writes
// an AccountLockout record, all in one transaction. Returns whether this
// failure triggered a lock.
func (s *Service) RecordFailure(userID uint) (bool, error) {
	var locked bool

	err := s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&users.User{}).
			Where("id = ?", userID).
			UpdateColumn("failed_login_attempts", gorm.Expr("failed_login_attempts + 1"))
		if result.Error != nil {
			return fmt.Errorf("failed to increment failure counter: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return users.ErrUserNotFound
		}

		var user users.User
		if err := tx.First(&user, userID).Error; err != nil {
			return fmt.Errorf("failed to reload user: %w", err)
		}

		if user.FailedLoginAttempts < s.config.Lockout.Threshold {
			return nil
		}

		lockedUntil := time.Now().Add(s.config.Lockout.Duration)
		guard := tx.Model(&users.User{}).
			Where("id = ? AND failed_login_attempts >= ?", userID, s.config.Lockout.Threshold).
			Updates(map[string]any{
				"failed_login_attempts": 0,
				"locked_until":          lockedUntil,
			})
		if guard.Error != nil {
			return fmt.Errorf("failed to lock account: %w", guard.Error)
		}
		if guard.RowsAffected == 0 {
			// A sibling transaction crossed the threshold first.
			return nil
		}

		record := AccountLockout{
			UserID:         userID,
			LockedUntil:    lockedUntil,
			FailedAttempts: user.FailedLoginAttempts,
			Reason:         ReasonFailedAttempts,
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("failed to write lockout record: %w", err)
		}

		locked = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if locked && s.logger != nil {
		s.logger.Warn("account locked after repeated failures",
			zap.Uint("user_id", userID),
			zap.Int("threshold", s.config.Lockout.Threshold),
			zap.Duration("duration", s.config.Lockout.Duration))
	}

	return locked, nil
}

// RecordSuccess resets the failure counter.
func (s *Service) RecordSuccess(userID uint) error {
	err := s.db.Model(&users.User{}).
		Where("id = ? AND failed_login_attempts > 0", userID).
		Update("failed_login_attempts", 0).Error
	if err != nil {
		return fmt.Errorf("failed to reset failure counter: %w", err)
	}
	return nil
}

// IsLocked is a pure time comparison; locks expire on their own without an
// unlock call.
func (s *Service) IsLocked(user *users.User) bool {
	return user.LockedUntil != nil && time.Now().Before(*user.LockedUntil)
}

// Unlock is the manual admin override. It clears the lock and closes the
// open AccountLockout record.
func (s *Service) Unlock(userID, adminID uint) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&users.User{}).
			Where("id = ?", userID).
			Updates(map[string]any{
				"failed_login_attempts": 0,
				"locked_until":          nil,
			}).Error
		if err != nil {
			return fmt.Errorf("failed to unlock account: %w", err)
		}

		result := tx.Model(&AccountLockout{}).
			Where("user_id = ? AND unlocked_at IS NULL", userID).
			Updates(map[string]any{
				"unlocked_at": time.Now(),
				"unlocked_by": adminID,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to close lockout record: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNoActiveLockout
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.logger != nil {
		s.logger.Info("account unlocked by admin",
			zap.Uint("user_id", userID),
			zap.Uint("admin_id", adminID))
	}
	return nil
}

// History returns the user's lockout records, newest first.
func (s *Service) History(userID uint) ([]AccountLockout, error) {
	var records []AccountLockout
	err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load lockout history: %w", err)
	}
	return records, nil
}
