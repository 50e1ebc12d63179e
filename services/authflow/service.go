package authflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/learnhive/authcore/config"
	"github.com/learnhive/authcore/services/accesstoken"
	"github.com/learnhive/authcore/services/lockout"
	"github.com/learnhive/authcore/services/loginaudit"
	"github.com/learnhive/authcore/services/logging"
	"github.com/learnhive/authcore/services/password"
	"github.com/learnhive/authcore/services/ratelimit"
	"github.com/learnhive/authcore/services/refreshtoken"
	"github.com/learnhive/authcore/services/sessions"
	"github.com/learnhive/authcore/services/twofactor"
	"github.com/learnhive/authcore/services/users"
	"go.uber.org/zap"
)

// ClientMeta is the request context a login carries: where it came from and
// what the device calls itself.
type ClientMeta struct {
	IPAddress  string
	UserAgent  string
	DeviceName string
}

type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	ExpiresIn        int       `json:"expires_in"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	SessionID        uint      `json:"session_id,omitempty"`
}

// LoginResult is either a finished login (Pair set) or a half-open one
// waiting on the second factor (PendingToken set).
type LoginResult struct {
	TwoFactorRequired bool       `json:"two_factor_required"`
	PendingToken      string     `json:"pending_token,omitempty"`
	Pair              *TokenPair `json:"tokens,omitempty"`
}

// Service composes the credential, token, session, lockout, rate-limit and
// two-factor services into the login/refresh/logout flows. It is the only
// entry point other subsystems call.
type Service struct {
	config    *config.Config
	users     users.Store
	passwords *password.Service
	tokens    *accesstoken.Service
	refresh   *refreshtoken.Service
	sessions  *sessions.Service
	limiter   *ratelimit.Limiter
	lockouts  *lockout.Service
	twofactor *twofactor.Service
	audit     *loginaudit.Service
	logger    *logging.Service
}

func NewService(
	cfg *config.Config,
	userStore users.Store,
	passwords *password.Service,
	tokens *accesstoken.Service,
	refresh *refreshtoken.Service,
	sessionRegistry *sessions.Service,
	limiter *ratelimit.Limiter,
	lockouts *lockout.Service,
	twoFactor *twofactor.Service,
	audit *loginaudit.Service,
	logger *logging.Service,
) *Service {
	return &Service{
		config:    cfg,
		users:     userStore,
		passwords: passwords,
		tokens:    tokens,
		refresh:   refresh,
		sessions:  sessionRegistry,
		limiter:   limiter,
		lockouts:  lockouts,
		twofactor: twoFactor,
		audit:     audit,
		logger:    logger,
	}
}

// Register creates an account with a policy-compliant password.
func (s *Service) Register(email, plaintext string) (*users.User, error) {
	hash, err := s.passwords.Hash(plaintext)
	if err != nil {
		if errors.Is(err, password.ErrPolicyViolation) {
			return nil, fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
		}
		return nil, ErrInternal
	}

	user := &users.User{
		Email:        users.NormalizeEmail(email),
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := s.users.Create(user); err != nil {
		if s.logger != nil {
			s.logger.Error("registration failed", zap.Error(err))
		}
		return nil, ErrInternal
	}

	if s.logger != nil {
		s.logger.Info("user registered", zap.Uint("user_id", user.ID))
	}
	return user, nil
}

// Authenticate runs the login state machine: rate limit, credentials, lock
// check, active check, then either the pending-2FA hand-off or token
// issuance. The error for an unknown email and a wrong password is
// identical.
func (s *Service) Authenticate(ctx context.Context, email, plaintext string, meta ClientMeta, rememberMe bool) (*LoginResult, error) {
	email = users.NormalizeEmail(email)

	for _, key := range []string{"login:email:" + email, "login:ip:" + meta.IPAddress} {
		decision, err := s.limiter.Allow(ctx, key)
		if err != nil {
			if s.logger != nil {
				s.logger.Error("rate limit check failed", zap.Error(err))
			}
			return nil, ErrInternal
		}
		if !decision.Allowed {
			s.audit.RecordFailure(email, meta.IPAddress, meta.UserAgent, loginaudit.ReasonRateLimited)
			return nil, ErrRateLimited
		}
	}

	user, err := s.users.FindByEmail(email)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			s.passwords.VerifyDummy(plaintext)
			s.audit.RecordFailure(email, meta.IPAddress, meta.UserAgent, loginaudit.ReasonUserNotFound)
			return nil, ErrInvalidCredentials
		}
		return nil, ErrInternal
	}

	if err := s.passwords.Verify(user.PasswordHash, plaintext); err != nil {
		if _, err := s.lockouts.RecordFailure(user.ID); err != nil && s.logger != nil {
			s.logger.Error("failed to record login failure", zap.Error(err), zap.Uint("user_id", user.ID))
		}
		s.audit.RecordFailure(email, meta.IPAddress, meta.UserAgent, loginaudit.ReasonInvalidPassword)
		return nil, ErrInvalidCredentials
	}

	// Checked after the password so a correct guess during a lockout still
	// reveals nothing but AccountLocked.
	if s.lockouts.IsLocked(user) {
		s.audit.RecordFailure(email, meta.IPAddress, meta.UserAgent, loginaudit.ReasonAccountLocked)
		return nil, ErrAccountLocked
	}

	if !user.IsActive {
		s.audit.RecordFailure(email, meta.IPAddress, meta.UserAgent, loginaudit.ReasonAccountInactive)
		return nil, ErrAccountInactive
	}

	if user.TwoFactorEnabled {
		pending, err := s.tokens.IssuePendingTwoFactor(user.ID)
		if err != nil {
			return nil, ErrInternal
		}
		s.audit.RecordFailure(email, meta.IPAddress, meta.UserAgent, loginaudit.ReasonTwoFactorRequired)
		return &LoginResult{TwoFactorRequired: true, PendingToken: pending}, nil
	}

	pair, err := s.issuePair(user, meta, rememberMe)
	if err != nil {
		return nil, err
	}

	if err := s.lockouts.RecordSuccess(user.ID); err != nil && s.logger != nil {
		s.logger.Warn("failed to reset failure counter", zap.Error(err), zap.Uint("user_id", user.ID))
	}
	s.audit.RecordSuccess(email, meta.IPAddress, meta.UserAgent)

	return &LoginResult{Pair: pair}, nil
}

// CompleteTwoFactor finishes a login that Authenticate left pending. The
// pending token is single-purpose and never grants access by itself.
func (s *Service) CompleteTwoFactor(ctx context.Context, pendingToken, code string, meta ClientMeta, rememberMe bool) (*TokenPair, error) {
	claims, err := s.tokens.VerifyPendingTwoFactor(pendingToken)
	if err != nil {
		// No user is identifiable from a bad pending token; the attempt is
		// still recorded against the source address.
		s.audit.RecordFailure("", meta.IPAddress, meta.UserAgent, loginaudit.ReasonPendingTokenInvalid)
		if errors.Is(err, accesstoken.ErrExpiredToken) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	userID, err := claims.UserID()
	if err != nil {
		s.audit.RecordFailure("", meta.IPAddress, meta.UserAgent, loginaudit.ReasonPendingTokenInvalid)
		return nil, ErrTokenInvalid
	}

	decision, err := s.limiter.Allow(ctx, fmt.Sprintf("twofactor:user:%d", userID))
	if err != nil {
		return nil, ErrInternal
	}
	if !decision.Allowed {
		return nil, ErrRateLimited
	}

	user, err := s.users.FindByID(userID)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	if s.lockouts.IsLocked(user) {
		return nil, ErrAccountLocked
	}
	if !user.IsActive {
		return nil, ErrAccountInactive
	}

	if err := s.twofactor.Verify(user, code); err != nil {
		if _, err := s.lockouts.RecordFailure(user.ID); err != nil && s.logger != nil {
			s.logger.Error("failed to record login failure", zap.Error(err), zap.Uint("user_id", user.ID))
		}
		s.audit.RecordFailure(user.Email, meta.IPAddress, meta.UserAgent, loginaudit.ReasonTwoFactorInvalid)
		return nil, ErrTwoFactorInvalid
	}

	pair, err := s.issuePair(user, meta, rememberMe)
	if err != nil {
		return nil, err
	}

	if err := s.lockouts.RecordSuccess(user.ID); err != nil && s.logger != nil {
		s.logger.Warn("failed to reset failure counter", zap.Error(err), zap.Uint("user_id", user.ID))
	}
	s.audit.RecordSuccess(user.Email, meta.IPAddress, meta.UserAgent)

	return pair, nil
}

// Refresh rotates the presented refresh token and mints a new access token.
// A reused token reports the same generic error as any other invalid token,
// but quietly tears down every session the user holds.
func (s *Service) Refresh(ctx context.Context, rawToken string, meta ClientMeta) (*TokenPair, error) {
	device := refreshtoken.DeviceInfo{IPAddress: meta.IPAddress, UserAgent: meta.UserAgent}

	rotation, err := s.refresh.Rotate(rawToken, device)
	if err != nil {
		var reuse *refreshtoken.ReuseError
		switch {
		case errors.As(err, &reuse):
			if _, terr := s.sessions.TerminateAll(reuse.UserID, 0); terr != nil && s.logger != nil {
				s.logger.Error("failed to terminate sessions after reuse",
					zap.Error(terr), zap.Uint("user_id", reuse.UserID))
			}
			s.auditReuse(reuse.UserID, meta)
			return nil, ErrTokenInvalid
		case errors.Is(err, refreshtoken.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, refreshtoken.ErrTokenNotFound),
			errors.Is(err, refreshtoken.ErrFingerprintMismatch):
			return nil, ErrTokenInvalid
		default:
			return nil, ErrInternal
		}
	}

	if err := s.sessions.AttachToken(rotation.OldTokenID, rotation.NewToken.TokenID); err != nil {
		// The session may have been evicted; the rotated token still stands.
		if !errors.Is(err, sessions.ErrSessionNotFound) && s.logger != nil {
			s.logger.Warn("failed to reattach session after rotation", zap.Error(err))
		}
	}

	access, err := s.tokens.Issue(rotation.UserID)
	if err != nil {
		return nil, ErrInternal
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     rotation.NewToken.Token,
		ExpiresIn:        s.tokens.AccessExpirySeconds(),
		RefreshExpiresAt: rotation.NewToken.ExpiresAt,
	}, nil
}

func (s *Service) auditReuse(userID uint, meta ClientMeta) {
	email := ""
	if user, err := s.users.FindByID(userID); err == nil {
		email = user.Email
	}
	s.audit.RecordFailure(email, meta.IPAddress, meta.UserAgent, loginaudit.ReasonTokenReuse)
	if s.logger != nil {
		s.logger.Warn("refresh token reuse - all sessions revoked",
			zap.Uint("user_id", userID),
			zap.String("ip", meta.IPAddress))
	}
}

// Logout ends one session, or every session when all is set, and returns
// how many were ended.
func (s *Service) Logout(userID, sessionID uint, all bool) (int64, error) {
	if all {
		count, err := s.sessions.TerminateAll(userID, 0)
		if err != nil {
			return count, ErrInternal
		}
		// Catch tokens that lost their session row along the way.
		if _, err := s.refresh.RevokeAll(userID); err != nil && s.logger != nil {
			s.logger.Warn("failed to revoke remaining tokens on logout", zap.Error(err))
		}
		return count, nil
	}

	ok, err := s.sessions.Terminate(sessionID, userID)
	if err != nil {
		return 0, ErrInternal
	}
	if !ok {
		return 0, nil
	}
	return 1, nil
}

func (s *Service) ListSessions(userID uint) ([]sessions.Session, error) {
	list, err := s.sessions.List(userID)
	if err != nil {
		return nil, ErrInternal
	}
	return list, nil
}

func (s *Service) TerminateSession(sessionID, userID uint) (bool, error) {
	ok, err := s.sessions.Terminate(sessionID, userID)
	if err != nil {
		return false, ErrInternal
	}
	return ok, nil
}

func (s *Service) SetupTwoFactor(userID uint) (*twofactor.Enrollment, error) {
	user, err := s.users.FindByID(userID)
	if err != nil {
		return nil, ErrInternal
	}
	return s.twofactor.Setup(user)
}

func (s *Service) EnableTwoFactor(userID uint, code string) error {
	user, err := s.users.FindByID(userID)
	if err != nil {
		return ErrInternal
	}
	if err := s.twofactor.Enable(user, code); err != nil {
		if errors.Is(err, twofactor.ErrInvalidCode) {
			return ErrTwoFactorInvalid
		}
		return err
	}
	return nil
}

func (s *Service) DisableTwoFactor(userID uint) error {
	user, err := s.users.FindByID(userID)
	if err != nil {
		return ErrInternal
	}
	return s.twofactor.Disable(user)
}

func (s *Service) VerifyTwoFactor(userID uint, code string) error {
	user, err := s.users.FindByID(userID)
	if err != nil {
		return ErrInternal
	}
	if err := s.twofactor.Verify(user, code); err != nil {
		if errors.Is(err, twofactor.ErrInvalidCode) || errors.Is(err, twofactor.ErrCodeAlreadyUsed) {
			return ErrTwoFactorInvalid
		}
		return err
	}
	return nil
}

func (s *Service) RegenerateBackupCodes(userID uint) ([]string, error) {
	user, err := s.users.FindByID(userID)
	if err != nil {
		return nil, ErrInternal
	}
	return s.twofactor.RegenerateBackupCodes(user)
}

// CheckRateLimit exposes the admission check with its remaining-quota
// metadata for caller-visible headers.
func (s *Service) CheckRateLimit(ctx context.Context, key string) (ratelimit.Decision, error) {
	return s.limiter.Allow(ctx, key)
}

func (s *Service) issuePair(user *users.User, meta ClientMeta, rememberMe bool) (*TokenPair, error) {
	ttl := s.config.RefreshToken.Expiry
	if rememberMe {
		ttl = s.config.RefreshToken.RememberMeExpiry
	}

	device := refreshtoken.DeviceInfo{IPAddress: meta.IPAddress, UserAgent: meta.UserAgent}
	issued, err := s.refresh.Issue(user.ID, device, ttl)
	if err != nil {
		return nil, ErrInternal
	}

	session, err := s.sessions.Create(sessions.NewSession{
		UserID:         user.ID,
		RefreshTokenID: issued.TokenID,
		DeviceName:     meta.DeviceName,
		Fingerprint:    device.Fingerprint(),
		IPAddress:      meta.IPAddress,
		UserAgent:      meta.UserAgent,
		ExpiresAt:      issued.ExpiresAt,
	})
	if err != nil {
		return nil, ErrInternal
	}

	access, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, ErrInternal
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     issued.Token,
		ExpiresIn:        s.tokens.AccessExpirySeconds(),
		RefreshExpiresAt: issued.ExpiresAt,
		SessionID:        session.ID,
	}, nil
}
