package twofactor

import (
	"testing"
	"time"

	"github.com/learnhive/authcore/services/users"
	"github.com/learnhive/authcore/testutils"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, users.Store, *gorm.DB) {
	cfg := testutils.GetTestConfig()
	db := testutils.SetupTestDB(t, &users.User{}, &BackupCode{}, &UsedCode{})
	store := users.NewGormStore(db)
	return NewService(db, cfg, store, nil), store, db
}

func enrolledUser(t *testing.T, service *Service, store users.Store) (*users.User, *Enrollment) {
	user := &users.User{Email: "student@example.com", PasswordHash: "x", IsActive: true}
	require.NoError(t, store.Create(user))

	enrollment, err := service.Setup(user)
	require.NoError(t, err)

	code := currentCode(t, enrollment.Secret, time.Now())
	require.NoError(t, service.Enable(user, code))
	return user, enrollment
}

func currentCode(t *testing.T, secret string, at time.Time) string {
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func TestService_Setup(t *testing.T) {
	service, store, _ := newTestService(t)

	user := &users.User{Email: "student@example.com", PasswordHash: "x", IsActive: true}
	require.NoError(t, store.Create(user))

	enrollment, err := service.Setup(user)
	require.NoError(t, err)

	assert.NotEmpty(t, enrollment.Secret)
	assert.Contains(t, enrollment.ProvisioningURI, "otpauth://totp/")
	assert.Len(t, enrollment.BackupCodes, 10)
	for _, code := range enrollment.BackupCodes {
		assert.Len(t, code, backupCodeLength)
	}

	t.Run("secret is stored but not yet enabled", func(t *testing.T) {
		fresh, err := store.FindByID(user.ID)
		require.NoError(t, err)
		assert.Equal(t, enrollment.Secret, fresh.TwoFactorSecret)
		assert.False(t, fresh.TwoFactorEnabled)
	})

	t.Run("rejected once enabled", func(t *testing.T) {
		require.NoError(t, service.Enable(user, currentCode(t, enrollment.Secret, time.Now())))

		_, err := service.Setup(user)
		assert.ErrorIs(t, err, ErrAlreadyEnabled)
	})
}

func TestService_Enable(t *testing.T) {
	service, store, _ := newTestService(t)

	user := &users.User{Email: "student@example.com", PasswordHash: "x", IsActive: true}
	require.NoError(t, store.Create(user))

	t.Run("before setup", func(t *testing.T) {
		err := service.Enable(user, "123456")
		assert.ErrorIs(t, err, ErrNotEnrolled)
	})

	enrollment, err := service.Setup(user)
	require.NoError(t, err)

	t.Run("wrong code", func(t *testing.T) {
		err := service.Enable(user, "000000")
		assert.ErrorIs(t, err, ErrInvalidCode)
		assert.False(t, user.TwoFactorEnabled)
	})

	t.Run("live code flips the flag", func(t *testing.T) {
		require.NoError(t, service.Enable(user, currentCode(t, enrollment.Secret, time.Now())))

		fresh, err := store.FindByID(user.ID)
		require.NoError(t, err)
		assert.True(t, fresh.TwoFactorEnabled)
	})
}

func TestService_VerifyTOTP(t *testing.T) {
	t.Run("current code", func(t *testing.T) {
		service, store, _ := newTestService(t)
		user, enrollment := enrolledUser(t, service, store)

		// Enable consumed the current step's code via validateTOTP only, so
		// the replay log is still empty; the previous step keeps this test
		// clear of it regardless.
		code := currentCode(t, enrollment.Secret, time.Now().Add(-30*time.Second))
		assert.NoError(t, service.Verify(user, code))
	})

	t.Run("replayed code is rejected", func(t *testing.T) {
		service, store, _ := newTestService(t)
		user, enrollment := enrolledUser(t, service, store)

		code := currentCode(t, enrollment.Secret, time.Now())
		require.NoError(t, service.Verify(user, code))

		err := service.Verify(user, code)
		assert.ErrorIs(t, err, ErrCodeAlreadyUsed)
	})

	t.Run("code from two steps back is rejected", func(t *testing.T) {
		service, store, _ := newTestService(t)
		user, enrollment := enrolledUser(t, service, store)

		stale := currentCode(t, enrollment.Secret, time.Now().Add(-90*time.Second))
		err := service.Verify(user, stale)
		assert.ErrorIs(t, err, ErrInvalidCode)
	})

	t.Run("not enrolled", func(t *testing.T) {
		service, _, _ := newTestService(t)
		err := service.Verify(&users.User{ID: 1}, "123456")
		assert.ErrorIs(t, err, ErrNotEnrolled)
	})
}

func TestService_VerifyBackupCode(t *testing.T) {
	service, store, db := newTestService(t)
	user, enrollment := enrolledUser(t, service, store)

	code := enrollment.BackupCodes[3]

	t.Run("consumed on first use", func(t *testing.T) {
		require.NoError(t, service.Verify(user, code))

		var remaining int64
		require.NoError(t, db.Model(&BackupCode{}).Where("user_id = ?", user.ID).Count(&remaining).Error)
		assert.Equal(t, int64(9), remaining)
	})

	t.Run("second use fails", func(t *testing.T) {
		err := service.Verify(user, code)
		assert.ErrorIs(t, err, ErrInvalidCode)
	})

	t.Run("unknown code", func(t *testing.T) {
		err := service.Verify(user, "ffffffff")
		assert.ErrorIs(t, err, ErrInvalidCode)
	})

	t.Run("wrong length", func(t *testing.T) {
		err := service.Verify(user, "abc")
		assert.ErrorIs(t, err, ErrInvalidCode)
	})
}

func TestService_RegenerateBackupCodes(t *testing.T) {
	service, store, db := newTestService(t)
	user, enrollment := enrolledUser(t, service, store)

	fresh, err := service.RegenerateBackupCodes(user)
	require.NoError(t, err)
	assert.Len(t, fresh, 10)
	assert.NotEqual(t, enrollment.BackupCodes, fresh)

	var count int64
	require.NoError(t, db.Model(&BackupCode{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.Equal(t, int64(10), count)

	t.Run("old codes no longer work", func(t *testing.T) {
		err := service.Verify(user, enrollment.BackupCodes[0])
		assert.ErrorIs(t, err, ErrInvalidCode)
	})

	t.Run("new codes do", func(t *testing.T) {
		assert.NoError(t, service.Verify(user, fresh[0]))
	})

	t.Run("not enrolled", func(t *testing.T) {
		_, err := service.RegenerateBackupCodes(&users.User{ID: 999})
		assert.ErrorIs(t, err, ErrNotEnrolled)
	})
}

func TestService_Disable(t *testing.T) {
	service, store, db := newTestService(t)
	user, _ := enrolledUser(t, service, store)

	require.NoError(t, service.Disable(user))

	fresh, err := store.FindByID(user.ID)
	require.NoError(t, err)
	assert.False(t, fresh.TwoFactorEnabled)
	assert.Empty(t, fresh.TwoFactorSecret)

	var codes int64
	require.NoError(t, db.Model(&BackupCode{}).Where("user_id = ?", user.ID).Count(&codes).Error)
	assert.Zero(t, codes)

	t.Run("second disable fails", func(t *testing.T) {
		err := service.Disable(fresh)
		assert.ErrorIs(t, err, ErrNotEnrolled)
	})
}

func TestService_CleanupUsedCodes(t *testing.T) {
	service, store, db := newTestService(t)
	user, enrollment := enrolledUser(t, service, store)

	code := currentCode(t, enrollment.Secret, time.Now())
	require.NoError(t, service.Verify(user, code))

	// Age the entry past retention, then sweep.
	stale := time.Now().Unix() - replayRetentionSeconds - 10
	require.NoError(t, db.Model(&UsedCode{}).Where("user_id = ?", user.ID).Update("used_at", stale).Error)

	require.NoError(t, service.CleanupUsedCodes())

	var count int64
	require.NoError(t, db.Model(&UsedCode{}).Count(&count).Error)
	assert.Zero(t, count)
}
