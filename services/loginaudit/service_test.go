package loginaudit

import (
	"testing"
	"time"

	"github.com/learnhive/authcore/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	cfg := testutils.GetTestConfig()
	db := testutils.SetupTestDB(t, &LoginAttempt{})
	return NewService(db, cfg, nil), db
}

func TestService_Record(t *testing.T) {
	service, db := newTestService(t)

	service.RecordSuccess("student@example.com", "203.0.113.7", "curl/8.0")
	service.RecordFailure("student@example.com", "203.0.113.7", "curl/8.0", ReasonInvalidPassword)

	var attempts []LoginAttempt
	require.NoError(t, db.Order("id ASC").Find(&attempts).Error)
	require.Len(t, attempts, 2)

	assert.True(t, attempts[0].Success)
	assert.Empty(t, attempts[0].FailureReason)

	assert.False(t, attempts[1].Success)
	assert.Equal(t, ReasonInvalidPassword, attempts[1].FailureReason)
	assert.Equal(t, "203.0.113.7", attempts[1].IPAddress)
}

func TestService_RecentForEmail(t *testing.T) {
	service, db := newTestService(t)

	service.RecordFailure("student@example.com", "203.0.113.7", "curl/8.0", ReasonUserNotFound)
	service.RecordSuccess("student@example.com", "203.0.113.7", "curl/8.0")
	service.RecordSuccess("other@example.com", "203.0.113.7", "curl/8.0")

	// An attempt outside the lookback window.
	old := LoginAttempt{Email: "student@example.com", Success: true, CreatedAt: time.Now().Add(-48 * time.Hour)}
	require.NoError(t, db.Create(&old).Error)

	attempts, err := service.RecentForEmail("student@example.com", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	for _, attempt := range attempts {
		assert.Equal(t, "student@example.com", attempt.Email)
	}
}

func TestService_CleanupExpired(t *testing.T) {
	service, db := newTestService(t)

	service.RecordSuccess("student@example.com", "203.0.113.7", "curl/8.0")

	stale := LoginAttempt{Email: "student@example.com", CreatedAt: time.Now().Add(-91 * 24 * time.Hour)}
	require.NoError(t, db.Create(&stale).Error)

	require.NoError(t, service.CleanupExpired())

	var count int64
	require.NoError(t, db.Model(&LoginAttempt{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
