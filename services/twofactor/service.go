package twofactor

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/learnhive/authcore/config"
	"github.com/learnhive/authcore/services/logging"
	"github.com/learnhive/authcore/services/users"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrNotEnrolled     = errors.New("two-factor authentication is not set up")
	ErrAlreadyEnabled  = errors.New("two-factor authentication is already enabled")
	ErrInvalidCode     = errors.New("invalid two-factor code")
	ErrCodeAlreadyUsed = errors.New("two-factor code has already been used")
)

const (
	totpDigits       = 6
	backupCodeLength = 8

	// Accepted codes are remembered for three steps so a code cannot be
	// replayed anywhere inside the skew window.
	replayRetentionSeconds = 90
)

type Service struct {
	db     *gorm.DB
	config *config.Config
	users  users.Store
	logger *logging.Service
}

func NewService(db *gorm.DB, cfg *config.Config, userStore users.Store, logger *logging.Service) *Service {
	if logger != nil {
		logger.Info("initializing two-factor service",
			zap.String("issuer", cfg.TwoFactor.Issuer),
			zap.Int("backup_code_count", cfg.TwoFactor.BackupCodeCount))
	}

	return &Service{
		db:     db,
		config: cfg,
		users:  userStore,
		logger: logger,
	}
}

// Setup generates a fresh TOTP secret and backup-code pool for the user.
// two_factor_enabled stays false until Enable verifies a live code.
func (s *Service) Setup(user *users.User) (*Enrollment, error) {
	if user.TwoFactorEnabled {
		return nil, ErrAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.config.TwoFactor.Issuer,
		AccountName: user.Email,
		SecretSize:  s.config.TwoFactor.SecretSize,
	})
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to generate TOTP key",
				zap.Error(err),
				zap.Uint("user_id", user.ID))
		}
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	codes, err := s.replaceBackupCodes(s.db, user.ID)
	if err != nil {
		return nil, err
	}

	user.TwoFactorSecret = key.Secret()
	user.TwoFactorEnabled = false
	if err := s.users.Save(user); err != nil {
		return nil, fmt.Errorf("failed to store TOTP secret: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("two-factor enrollment started",
			zap.Uint("user_id", user.ID))
	}

	return &Enrollment{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		BackupCodes:     codes,
	}, nil
}

// Enable flips two_factor_enabled after verifying a live TOTP code against
// the secret stored during Setup.
func (s *Service) Enable(user *users.User, code string) error {
	if user.TwoFactorSecret == "" {
		return ErrNotEnrolled
	}
	if user.TwoFactorEnabled {
		return ErrAlreadyEnabled
	}

	if !s.validateTOTP(code, user.TwoFactorSecret) {
		if s.logger != nil {
			s.logger.Warn("two-factor enable failed - invalid code",
				zap.Uint("user_id", user.ID))
		}
		return ErrInvalidCode
	}

	user.TwoFactorEnabled = true
	if err := s.users.Save(user); err != nil {
		return fmt.Errorf("failed to enable two-factor: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("two-factor enabled", zap.Uint("user_id", user.ID))
	}
	return nil
}

// Verify accepts either a 6-digit TOTP code (current or immediately
// preceding step) or an 8-character backup code. A matched backup code is
// removed from the pool.
func (s *Service) Verify(user *users.User, code string) error {
	if !user.TwoFactorEnabled || user.TwoFactorSecret == "" {
		return ErrNotEnrolled
	}

	if len(code) == totpDigits {
		return s.verifyTOTP(user, code)
	}
	return s.verifyBackupCode(user, code)
}

func (s *Service) verifyTOTP(user *users.User, code string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		cutoff := time.Now().Unix() - replayRetentionSeconds
		var existing UsedCode
		if err := tx.Where("user_id = ? AND code = ? AND used_at > ?", user.ID, code, cutoff).First(&existing).Error; err == nil {
			if s.logger != nil {
				s.logger.Warn("two-factor verification failed - code already used",
					zap.Uint("user_id", user.ID))
			}
			return ErrCodeAlreadyUsed
		}

		if !s.validateTOTP(code, user.TwoFactorSecret) {
			return ErrInvalidCode
		}

		used := UsedCode{
			UserID: user.ID,
			Code:   code,
			UsedAt: time.Now().Unix(),
		}
		if err := tx.Create(&used).Error; err != nil {
			return fmt.Errorf("failed to store used code: %w", err)
		}
		return nil
	})
}

func (s *Service) verifyBackupCode(user *users.User, code string) error {
	if len(code) != backupCodeLength {
		return ErrInvalidCode
	}

	var stored []BackupCode
	if err := s.db.Where("user_id = ?", user.ID).Find(&stored).Error; err != nil {
		return fmt.Errorf("failed to load backup codes: %w", err)
	}

	for _, candidate := range stored {
		if bcrypt.CompareHashAndPassword([]byte(candidate.CodeHash), []byte(code)) == nil {
			if err := s.db.Delete(&BackupCode{}, candidate.ID).Error; err != nil {
				return fmt.Errorf("failed to consume backup code: %w", err)
			}
			if s.logger != nil {
				s.logger.Info("backup code consumed",
					zap.Uint("user_id", user.ID),
					zap.Int("remaining", len(stored)-1))
			}
			return nil
		}
	}

	return ErrInvalidCode
}

// validateTOTP checks the code against the current and adjacent 30-second
// steps (skew 1) to tolerate clock drift.
func (s *Service) validateTOTP(code, secret string) bool {
	valid, err := totp.ValidateCustom(code, secret, time.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && valid
}

// Disable clears the secret and wipes the backup-code pool and replay log.
func (s *Service) Disable(user *users.User) error {
	if user.TwoFactorSecret == "" && !user.TwoFactorEnabled {
		return ErrNotEnrolled
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", user.ID).Delete(&BackupCode{}).Error; err != nil {
			return fmt.Errorf("failed to delete backup codes: %w", err)
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&UsedCode{}).Error; err != nil {
			return fmt.Errorf("failed to delete used codes: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	user.TwoFactorEnabled = false
	user.TwoFactorSecret = ""
	if err := s.users.Save(user); err != nil {
		return fmt.Errorf("failed to disable two-factor: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("two-factor disabled", zap.Uint("user_id", user.ID))
	}
	return nil
}

// RegenerateBackupCodes replaces the whole pool and returns the new
// plaintext codes.
func (s *Service) RegenerateBackupCodes(user *users.User) ([]string, error) {
	if user.TwoFactorSecret == "" {
		return nil, ErrNotEnrolled
	}

	codes, err := s.replaceBackupCodes(s.db, user.ID)
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("backup codes regenerated",
			zap.Uint("user_id", user.ID),
			zap.Int("count", len(codes)))
	}
	return codes, nil
}

func (s *Service) replaceBackupCodes(db *gorm.DB, userID uint) ([]string, error) {
	codes := make([]string, 0, s.config.TwoFactor.BackupCodeCount)

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&BackupCode{}).Error; err != nil {
			return fmt.Errorf("failed to clear backup codes: %w", err)
		}

		for i := 0; i < s.config.TwoFactor.BackupCodeCount; i++ {
			code, err := generateBackupCode()
			if err != nil {
				return fmt.Errorf("failed to generate backup code: %w", err)
			}

			hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("failed to hash backup code: %w", err)
			}

			record := BackupCode{
				UserID:   userID,
				CodeHash: string(hash),
			}
			if err := tx.Create(&record).Error; err != nil {
				return fmt.Errorf("failed to store backup code: %w", err)
			}

			codes = append(codes, code)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return codes, nil
}

func generateBackupCode() (string, error) {
	buf := make([]byte, backupCodeLength/2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// CleanupUsedCodes drops replay-log entries past the retention window.
func (s *Service) CleanupUsedCodes() error {
	cutoff := time.Now().Unix() - replayRetentionSeconds
	result := s.db.Where("used_at < ?", cutoff).Delete(&UsedCode{})
	if result.Error != nil {
		return fmt.Errorf("failed to cleanup used codes: %w", result.Error)
	}
	return nil
}
