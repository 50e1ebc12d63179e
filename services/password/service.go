package password

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/learnhive/authcore/config"
	"github.com/learnhive/authcore/services/logging"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrHashingFailed    = errors.New("failed to hash password")
	ErrPasswordMismatch = errors.New("password does not match")
	ErrPolicyViolation  = errors.New("password does not meet policy requirements")
)

// dummyHash is compared against when no real hash is available, so that a
// lookup miss costs the same as a wrong password.
var dummyHash = []byte("$2a$12$K8QpFLwKDuQTDev8aJGs/eR1VXNh4hvXD3wQJ1J5kEJpO1bIszdG6")

type Service struct {
	config *config.Config
	logger *logging.Service
}

func NewService(cfg *config.Config, logger *logging.Service) *Service {
	if cfg.Password.BcryptCost < bcrypt.MinCost || cfg.Password.BcryptCost > bcrypt.MaxCost {
		cfg.Password.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		config: cfg,
		logger: logger,
	}
}

func (s *Service) ValidatePolicy(password string) error {
	if len(password) < s.config.Password.MinLength {
		if s.logger != nil {
			s.logger.Warn("password policy check failed: insufficient length",
				zap.Int("length", len(password)),
				zap.Int("min_required", s.config.Password.MinLength))
		}
		return fmt.Errorf("%w: must be at least %d characters", ErrPolicyViolation, s.config.Password.MinLength)
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	var missing []string

	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	if s.config.Password.RequireUpper && !hasUpper {
		missing = append(missing, "one uppercase letter")
	}
	if s.config.Password.RequireLower && !hasLower {
		missing = append(missing, "one lowercase letter")
	}
	if s.config.Password.RequireNumber && !hasNumber {
		missing = append(missing, "one number")
	}
	if s.config.Password.RequireSpecial && !hasSpecial {
		missing = append(missing, "one special character")
	}

	if len(missing) > 0 {
		if s.logger != nil {
			s.logger.Warn("password policy check failed: missing requirements",
				zap.Strings("missing_requirements", missing))
		}
		return fmt.Errorf("%w: must contain at least %s", ErrPolicyViolation, strings.Join(missing, ", "))
	}

	return nil
}

func (s *Service) Hash(password string) (string, error) {
	if err := s.ValidatePolicy(password); err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.Password.BcryptCost)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("password hashing failed", zap.Error(err))
		}
		return "", ErrHashingFailed
	}

	return string(hash), nil
}

func (s *Service) Verify(hashedPassword, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)); err != nil {
		return ErrPasswordMismatch
	}
	return nil
}

// VerifyDummy burns a bcrypt comparison for requests against unknown
// accounts, keeping response timing uniform.
func (s *Service) VerifyDummy(password string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}
