package accesstoken

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/learnhive/authcore/config"
	"github.com/learnhive/authcore/services/logging"
	"go.uber.org/zap"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrMalformedToken   = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrWrongTokenType   = errors.New("wrong token type")
)

const (
	TypeAccess           = "access"
	TypeTwoFactorPending = "twofactor_pending"
)

type Claims struct {
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

func (c *Claims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return uint(id), nil
}

// Service mints and verifies self-contained signed tokens. Verification is a
// pure computation with no storage lookup; revocation is bounded by expiry.
type Service struct {
	config *config.Config
	logger *logging.Service
}

func NewService(cfg *config.Config, logger *logging.Service) *Service {
	return &Service{
		config: cfg,
		logger: logger,
	}
}

func (s *Service) AccessExpirySeconds() int {
	return int(s.config.AccessToken.Expiry.Seconds())
}

func (s *Service) Issue(userID uint) (string, error) {
	return s.sign(userID, TypeAccess, s.config.AccessToken.Expiry)
}

// IssuePendingTwoFactor mints the short-lived intermediate token handed out
// after a correct password on a 2FA-enabled account. It is only good for
// completing the 2FA step.
func (s *Service) IssuePendingTwoFactor(userID uint) (string, error) {
	return s.sign(userID, TypeTwoFactorPending, s.config.AccessToken.PendingTwoFactorExpiry)
}

func (s *Service) sign(userID uint, tokenType string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.config.AccessToken.Issuer,
			Subject:   fmt.Sprintf("%d", userID),
			Audience:  []string{s.config.AccessToken.Issuer},
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.config.AccessToken.Secret))
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to sign token",
				zap.Error(err),
				zap.String("token_type", tokenType))
		}
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

func (s *Service) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() == "none" {
			return nil, errors.New("'none' algorithm is not allowed")
		}

		if token.Method.Alg() != "HS256" {
			return nil, fmt.Errorf("unexpected algorithm: expected HS256, got %s", token.Method.Alg())
		}

		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("invalid algorithm family: %v", token.Header["alg"])
		}

		return []byte(s.config.AccessToken.Secret), nil
	})

	if err != nil {
		if s.logger != nil {
			s.logger.Warn("token validation failed", zap.Error(err))
		}

		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformedToken
		case errors.Is(err, jwt.ErrSignatureInvalid):
			return nil, ErrInvalidSignature
		default:
			return nil, ErrInvalidToken
		}
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

func (s *Service) VerifyAccess(tokenString string) (*Claims, error) {
	claims, err := s.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TypeAccess {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

func (s *Service) VerifyPendingTwoFactor(tokenString string) (*Claims, error) {
	claims, err := s.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TypeTwoFactorPending {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}
