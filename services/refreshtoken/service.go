package refreshtoken

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/learnhive/authcore/config"
	"github.com/learnhive/authcore/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrTokenNotFound         = errors.New("refresh token not found")
	ErrTokenExpired          = errors.New("refresh token expired")
	ErrTokenRevoked          = errors.New("refresh token revoked")
	ErrFingerprintMismatch   = errors.New("refresh token device mismatch")
	ErrTokenGenerationFailed = errors.New("failed to generate secure token")
)

// ReuseError reports an attempt to rotate a token that was already rotated or
// revoked. Every refresh token belonging to UserID has been revoked by the
// time the caller sees it.
type ReuseError struct {
	UserID  uint
	TokenID uint
}

func (e *ReuseError) Error() string {
	return "refresh token reuse detected"
}

type Service struct {
	db     *gorm.DB
	config *config.Config
	logger *logging.Service
}

func NewService(db *gorm.DB, cfg *config.Config, logger *logging.Service) *Service {
	if logger != nil {
		logger.Info("initializing refresh token service",
			zap.Duration("token_expiry", cfg.RefreshToken.Expiry),
			zap.Int("token_length", cfg.RefreshToken.TokenLength),
			zap.Duration("cleanup_interval", cfg.RefreshToken.CleanupInterval))
	}

	return &Service{
		db:     db,
		config: cfg,
		logger: logger,
	}
}

// Issue generates a high-entropy opaque token, persists only its hash plus
// metadata, and returns the raw token. The raw token is never stored.
func (s *Service) Issue(userID uint, device DeviceInfo, ttl time.Duration) (*IssuedToken, error) {
	token, err := s.generateSecureToken()
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to generate refresh token", zap.Error(err))
		}
		return nil, ErrTokenGenerationFailed
	}

	now := time.Now()
	record := RefreshToken{
		UserID:      userID,
		TokenHash:   hashToken(token),
		Fingerprint: device.Fingerprint(),
		IssuedAt:    now,
		ExpiresAt:   now.Add(ttl),
	}

	if err := s.db.Create(&record).Error; err != nil {
		if s.logger != nil {
			s.logger.Error("failed to store refresh token", zap.Error(err))
		}
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("refresh token issued",
			zap.Uint("user_id", userID),
			zap.Uint("token_id", record.ID),
			zap.Time("expires_at", record.ExpiresAt))
	}

	return &IssuedToken{
		Token:     token,
		TokenID:   record.ID,
		UserID:    userID,
		ExpiresAt: record.ExpiresAt,
	}, nil
}

// Rotate marks the presented token used and issues its replacement in one
// transaction. The used_at IS NULL guard is the compare-and-swap that keeps
// two concurrent rotations of the same token from both succeeding. A token
// that is already Rotated or Revoked is treated as stolen: every token the
// user holds is revoked before the error is returned.
func (s *Service) Rotate(rawToken string, device DeviceInfo) (*RotationResult, error) {
	tokenHash := hashToken(rawToken)
	now := time.Now()

	var result *RotationResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var record RefreshToken
		if err := tx.Where("token_hash = ?", tokenHash).First(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTokenNotFound
			}
			return fmt.Errorf("database error: %w", err)
		}

		switch record.Status(now) {
		case StatusRotated, StatusRevoked:
			return &ReuseError{UserID: record.UserID, TokenID: record.ID}
		case StatusExpired:
			return ErrTokenExpired
		}

		if record.Fingerprint != "" && record.Fingerprint != device.Fingerprint() {
			if s.logger != nil {
				s.logger.Warn("refresh token rotation refused - device mismatch",
					zap.Uint("user_id", record.UserID),
					zap.Uint("token_id", record.ID))
			}
			return ErrFingerprintMismatch
		}

		swap := tx.Model(&RefreshToken{}).
			Where("id = ? AND used_at IS NULL AND revoked_at IS NULL", record.ID).
			Update("used_at", now)
		if swap.Error != nil {
			return fmt.Errorf("failed to mark token used: %w", swap.Error)
		}
		if swap.RowsAffected == 0 {
			// Lost the race to a concurrent rotation; the other caller won.
			return &ReuseError{UserID: record.UserID, TokenID: record.ID}
		}

		token, err := s.generateSecureToken()
		if err != nil {
			return ErrTokenGenerationFailed
		}

		// The replacement inherits the old expiry so rotation never extends
		// the chain past the lifetime granted at login.
		replacement := RefreshToken{
			UserID:      record.UserID,
			TokenHash:   hashToken(token),
			Fingerprint: record.Fingerprint,
			IssuedAt:    now,
			ExpiresAt:   record.ExpiresAt,
		}
		if err := tx.Create(&replacement).Error; err != nil {
			return fmt.Errorf("failed to store replacement token: %w", err)
		}

		result = &RotationResult{
			UserID:     record.UserID,
			OldTokenID: record.ID,
			NewToken: &IssuedToken{
				Token:     token,
				TokenID:   replacement.ID,
				UserID:    record.UserID,
				ExpiresAt: replacement.ExpiresAt,
			},
		}
		return nil
	})

	if err != nil {
		var reuse *ReuseError
		if errors.As(err, &reuse) {
			// The rotation transaction rolled back with the error; the chain
			// revocation must still commit, so it runs on its own.
			if rerr := s.revokeAllTx(s.db, reuse.UserID, now); rerr != nil {
				return nil, rerr
			}
			if s.logger != nil {
				s.logger.Warn("refresh token reuse detected - all user tokens revoked",
					zap.Uint("user_id", reuse.UserID),
					zap.Uint("token_id", reuse.TokenID))
			}
		}
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("refresh token rotated",
			zap.Uint("user_id", result.UserID),
			zap.Uint("old_token_id", result.OldTokenID),
			zap.Uint("new_token_id", result.NewToken.TokenID))
	}

	return result, nil
}

// Get looks up the record for a raw token without changing its state.
func (s *Service) Get(rawToken string) (*RefreshToken, error) {
	var record RefreshToken
	err := s.db.Where("token_hash = ?", hashToken(rawToken)).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &record, nil
}

func (s *Service) Revoke(rawToken string) error {
	result := s.db.Model(&RefreshToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", hashToken(rawToken)).
		Update("revoked_at", time.Now())
	if result.Error != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func (s *Service) RevokeByID(tokenID uint) error {
	result := s.db.Model(&RefreshToken{}).
		Where("id = ? AND revoked_at IS NULL", tokenID).
		Update("revoked_at", time.Now())
	if result.Error != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", result.Error)
	}
	return nil
}

// RevokeAll revokes every live token for the user, optionally sparing the
// given token IDs (the current session's token during a "log out everywhere
// else").
func (s *Service) RevokeAll(userID uint, except ...uint) (int64, error) {
	var count int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&RefreshToken{}).
			Where("user_id = ? AND revoked_at IS NULL", userID)
		if len(except) > 0 {
			q = q.Where("id NOT IN ?", except)
		}
		result := q.Update("revoked_at", time.Now())
		if result.Error != nil {
			return fmt.Errorf("failed to revoke user refresh tokens: %w", result.Error)
		}
		count = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}

	if s.logger != nil {
		s.logger.Info("revoked user refresh tokens",
			zap.Uint("user_id", userID),
			zap.Int64("count", count))
	}
	return count, nil
}

func (s *Service) revokeAllTx(tx *gorm.DB, userID uint, now time.Time) error {
	result := tx.Model(&RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", now)
	if result.Error != nil {
		return fmt.Errorf("failed to revoke user refresh tokens: %w", result.Error)
	}
	return nil
}

// CleanupExpired removes records past their expiry. Expired records are inert
// either way; this only reclaims storage.
func (s *Service) CleanupExpired() error {
	result := s.db.Where("expires_at < ?", time.Now()).Delete(&RefreshToken{})
	if result.Error != nil {
		if s.logger != nil {
			s.logger.Error("failed to cleanup expired refresh tokens", zap.Error(result.Error))
		}
		return fmt.Errorf("failed to cleanup expired tokens: %w", result.Error)
	}

	if s.logger != nil && result.RowsAffected > 0 {
		s.logger.Info("cleaned up expired refresh tokens",
			zap.Int64("count", result.RowsAffected))
	}

	return nil
}

func (s *Service) StartCleanupWorker() {
	go func() {
		ticker := time.NewTicker(s.config.RefreshToken.CleanupInterval)
		defer ticker.Stop()

		for range ticker.C {
			if err := s.CleanupExpired(); err != nil && s.logger != nil {
				s.logger.Error("refresh token cleanup worker failed", zap.Error(err))
			}
		}
	}()

	if s.logger != nil {
		s.logger.Info("started refresh token cleanup worker",
			zap.Duration("interval", s.config.RefreshToken.CleanupInterval))
	}
}

func (s *Service) generateSecureToken() (string, error) {
	tokenBytes := make([]byte, s.config.RefreshToken.TokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(tokenBytes), nil
}

func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
