package sessions

import (
	"testing"
	"time"

	"github.com/learnhive/authcore/config"
	"github.com/learnhive/authcore/services/refreshtoken"
	"github.com/learnhive/authcore/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestRegistry(t *testing.T) (*Service, *refreshtoken.Service, *gorm.DB, *config.Config) {
	cfg := testutils.GetTestConfig()
	db := testutils.SetupTestDB(t, &Session{}, &refreshtoken.RefreshToken{})
	tokens := refreshtoken.NewService(db, cfg, nil)
	return NewService(db, cfg, tokens, nil), tokens, db, cfg
}

func issueAndTrack(t *testing.T, registry *Service, tokens *refreshtoken.Service, userID uint, userAgent string) (*Session, *refreshtoken.IssuedToken) {
	device := refreshtoken.DeviceInfo{IPAddress: "203.0.113.7", UserAgent: userAgent}
	issued, err := tokens.Issue(userID, device, time.Hour)
	require.NoError(t, err)

	session, err := registry.Create(NewSession{
		UserID:         userID,
		RefreshTokenID: issued.TokenID,
		Fingerprint:    device.Fingerprint(),
		IPAddress:      device.IPAddress,
		UserAgent:      userAgent,
		ExpiresAt:      issued.ExpiresAt,
	})
	require.NoError(t, err)
	return session, issued
}

func TestService_Create(t *testing.T) {
	registry, tokens, _, _ := newTestRegistry(t)

	session, _ := issueAndTrack(t, registry, tokens, 1, "Mozilla/5.0 (Linux; Android 14; Pixel 7) Chrome/120.0")

	assert.NotZero(t, session.ID)
	assert.True(t, session.Active(time.Now()))
	assert.Contains(t, session.DeviceName, "Chrome")
}

func TestService_SessionCapEviction(t *testing.T) {
	registry, tokens, _, cfg := newTestRegistry(t)
	cfg.Session.MaxPerUser = 3

	var all []*Session
	var issuedTokens []*refreshtoken.IssuedToken
	for i := 0; i < 4; i++ {
		session, issued := issueAndTrack(t, registry, tokens, 1, "curl/8.0")
		all = append(all, session)
		issuedTokens = append(issuedTokens, issued)
		time.Sleep(5 * time.Millisecond)
	}

	active, err := registry.List(1)
	require.NoError(t, err)
	assert.Len(t, active, 3)

	// The first (least recently active) session was evicted and its token
	// revoked with it.
	for _, s := range active {
		assert.NotEqual(t, all[0].ID, s.ID)
	}

	record, err := tokens.Get(issuedTokens[0].Token)
	require.NoError(t, err)
	assert.Equal(t, refreshtoken.StatusRevoked, record.Status(time.Now()))
}

func TestService_ListIsScopedAndOrdered(t *testing.T) {
	registry, tokens, _, _ := newTestRegistry(t)

	first, _ := issueAndTrack(t, registry, tokens, 1, "curl/8.0")
	time.Sleep(5 * time.Millisecond)
	second, _ := issueAndTrack(t, registry, tokens, 1, "curl/8.0")
	issueAndTrack(t, registry, tokens, 2, "curl/8.0")

	list, err := registry.List(1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestService_Touch(t *testing.T) {
	registry, tokens, _, _ := newTestRegistry(t)

	session, issued := issueAndTrack(t, registry, tokens, 1, "curl/8.0")
	before := session.LastActivity

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, registry.Touch(issued.TokenID))

	reloaded, err := registry.Get(session.ID, 1)
	require.NoError(t, err)
	assert.True(t, reloaded.LastActivity.After(before))
}

func TestService_AttachToken(t *testing.T) {
	registry, tokens, _, _ := newTestRegistry(t)

	session, issued := issueAndTrack(t, registry, tokens, 1, "curl/8.0")

	device := refreshtoken.DeviceInfo{IPAddress: "203.0.113.7", UserAgent: "curl/8.0"}
	replacement, err := tokens.Issue(1, device, time.Hour)
	require.NoError(t, err)

	require.NoError(t, registry.AttachToken(issued.TokenID, replacement.TokenID))

	reloaded, err := registry.Get(session.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, replacement.TokenID, reloaded.RefreshTokenID)

	t.Run("unknown token", func(t *testing.T) {
		err := registry.AttachToken(99999, replacement.TokenID)
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestService_Terminate(t *testing.T) {
	registry, tokens, _, _ := newTestRegistry(t)

	session, issued := issueAndTrack(t, registry, tokens, 1, "curl/8.0")

	t.Run("terminates and revokes", func(t *testing.T) {
		ok, err := registry.Terminate(session.ID, 1)
		require.NoError(t, err)
		assert.True(t, ok)

		record, err := tokens.Get(issued.Token)
		require.NoError(t, err)
		assert.Equal(t, refreshtoken.StatusRevoked, record.Status(time.Now()))
	})

	t.Run("idempotent", func(t *testing.T) {
		ok, err := registry.Terminate(session.ID, 1)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("scoped to owner", func(t *testing.T) {
		other, _ := issueAndTrack(t, registry, tokens, 2, "curl/8.0")

		ok, err := registry.Terminate(other.ID, 1)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestService_TerminateAll(t *testing.T) {
	registry, tokens, _, _ := newTestRegistry(t)

	keep, _ := issueAndTrack(t, registry, tokens, 1, "curl/8.0")
	issueAndTrack(t, registry, tokens, 1, "curl/8.0")
	issueAndTrack(t, registry, tokens, 1, "curl/8.0")

	count, err := registry.TerminateAll(1, keep.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	active, err := registry.List(1)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, keep.ID, active[0].ID)
}

func TestService_CleanupExpired(t *testing.T) {
	registry, tokens, db, _ := newTestRegistry(t)

	session, _ := issueAndTrack(t, registry, tokens, 1, "curl/8.0")
	require.NoError(t, db.Model(&Session{}).
		Where("id = ?", session.ID).
		Update("expires_at", time.Now().Add(-time.Hour)).Error)

	require.NoError(t, registry.CleanupExpired())

	var count int64
	require.NoError(t, db.Model(&Session{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDeriveDeviceName(t *testing.T) {
	cases := []struct {
		name      string
		userAgent string
		explicit  string
		want      string
	}{
		{"explicit name wins", "Mozilla/5.0", "Pixel 7", "Pixel 7"},
		{"parsed from user agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36", "", "Chrome on macOS"},
		{"unparseable", "", "", "Unknown device"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveDeviceName(tc.userAgent, tc.explicit))
		})
	}
}
