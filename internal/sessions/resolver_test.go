package sessions_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Riken-Shah/finding-me/internal/pkg/clientinfo"
	"github.com/Riken-Shah/finding-me/internal/pkg/geoip"
	"github.com/Riken-Shah/finding-me/internal/sessions"
	"github.com/Riken-Shah/finding-me/internal/testsupport"
)

func desktopChrome() clientinfo.ClientInfo {
	return clientinfo.ClientInfo{Device: "desktop", Browser: "chrome", OS: "MacOS"}
}

func TestResolveMintsNewSession(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	resolver := sessions.NewResolver(db, testsupport.GetLogger())
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	resolution, err := resolver.Resolve(sessions.ResolveInput{
		Token:     "",
		PageViews: 1,
		Client:    desktopChrome(),
		Location:  geoip.Location{Country: "US", City: "Portland"},
		Now:       now,
	})
	require.NoError(t, err)

	assert.True(t, resolution.IsNewSession)
	assert.Len(t, resolution.SessionID, 64)

	var session sessions.Session
	require.NoError(t, db.First(&session, "session_id = ?", resolution.SessionID).Error)
	assert.Equal(t, 1, session.PageCount)
	assert.True(t, session.IsBounce)
	assert.False(t, session.IsReturning)
	assert.Equal(t, "US", session.Country)
	assert.Equal(t, "Portland", session.City)
}

func TestResolveMultiPageBatchClearsBounce(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	resolver := sessions.NewResolver(db, testsupport.GetLogger())

	resolution, err := resolver.Resolve(sessions.ResolveInput{
		PageViews: 3,
		Client:    desktopChrome(),
		Now:       time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	var session sessions.Session
	require.NoError(t, db.First(&session, "session_id = ?", resolution.SessionID).Error)
	assert.Equal(t, 3, session.PageCount)
	assert.False(t, session.IsBounce)
}

func TestResolveReuseWindow(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	resolver := sessions.NewResolver(db, testsupport.GetLogger())
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("29 minutes old reuses the session", func(t *testing.T) {
		session := testsupport.CreateTestSession(t, db, "a1b2c3d4000000000000000000000000000000000000000000000000000029ok", now.Add(-29*time.Minute))

		resolution, err := resolver.Resolve(sessions.ResolveInput{
			Token:     session.SessionID,
			PageViews: 1,
			Client:    desktopChrome(),
			Now:       now,
		})
		require.NoError(t, err)

		assert.False(t, resolution.IsNewSession)
		assert.Equal(t, session.SessionID, resolution.SessionID)

		var updated sessions.Session
		require.NoError(t, db.First(&updated, "session_id = ?", session.SessionID).Error)
		assert.Equal(t, 2, updated.PageCount)
		assert.False(t, updated.IsBounce)
		require.NotNil(t, updated.EndTime)
		assert.Equal(t, *updated.EndTime, updated.LastSeen())
		assert.InDelta(t, 29*time.Minute/time.Millisecond, updated.TotalTimeMs, 1000)
	})

	t.Run("31 minutes old mints a new session", func(t *testing.T) {
		session := testsupport.CreateTestSession(t, db, "a1b2c3d4000000000000000000000000000000000000000000000000000031no", now.Add(-31*time.Minute))

		resolution, err := resolver.Resolve(sessions.ResolveInput{
			Token:     session.SessionID,
			PageViews: 1,
			Client:    desktopChrome(),
			Now:       now,
		})
		require.NoError(t, err)

		assert.True(t, resolution.IsNewSession)
		assert.NotEqual(t, session.SessionID, resolution.SessionID)

		// The stale session is untouched.
		var stale sessions.Session
		require.NoError(t, db.First(&stale, "session_id = ?", session.SessionID).Error)
		assert.Equal(t, 1, stale.PageCount)

		// And the new one counts as returning: the expired token is a
		// prior session inside the lookback window.
		var fresh sessions.Session
		require.NoError(t, db.First(&fresh, "session_id = ?", resolution.SessionID).Error)
		assert.True(t, fresh.IsReturning)
	})

	t.Run("unknown token mints a new session", func(t *testing.T) {
		resolution, err := resolver.Resolve(sessions.ResolveInput{
			Token:     "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff",
			PageViews: 1,
			Now:       now,
		})
		require.NoError(t, err)
		assert.True(t, resolution.IsNewSession)
	})
}

func TestResolveReturningVisitorFingerprint(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	resolver := sessions.NewResolver(db, testsupport.GetLogger())
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	// CreateTestSession uses the desktop/chrome/MacOS fingerprint.
	testsupport.CreateTestSession(t, db, "0000000000000000000000000000000000000000000000000000000000000001", now.AddDate(0, 0, -7))

	t.Run("matching fingerprint without token", func(t *testing.T) {
		resolution, err := resolver.Resolve(sessions.ResolveInput{
			PageViews: 1,
			Client:    desktopChrome(),
			Now:       now,
		})
		require.NoError(t, err)

		var session sessions.Session
		require.NoError(t, db.First(&session, "session_id = ?", resolution.SessionID).Error)
		assert.True(t, session.IsReturning)
	})

	t.Run("different fingerprint is a first visit", func(t *testing.T) {
		resolution, err := resolver.Resolve(sessions.ResolveInput{
			PageViews: 1,
			Client:    clientinfo.ClientInfo{Device: "mobile", Browser: "safari", OS: "iOS"},
			Now:       now,
		})
		require.NoError(t, err)

		var session sessions.Session
		require.NoError(t, db.First(&session, "session_id = ?", resolution.SessionID).Error)
		assert.False(t, session.IsReturning)
	})

	t.Run("fully unknown fingerprint never matches", func(t *testing.T) {
		resolution, err := resolver.Resolve(sessions.ResolveInput{
			PageViews: 1,
			Client: clientinfo.ClientInfo{
				Device:  clientinfo.UnknownDevice,
				Browser: clientinfo.UnknownBrowser,
				OS:      clientinfo.UnknownOS,
			},
			Now: now,
		})
		require.NoError(t, err)

		var session sessions.Session
		require.NoError(t, db.First(&session, "session_id = ?", resolution.SessionID).Error)
		assert.False(t, session.IsReturning)
	})
}

func TestResolveCapturesUTMAndReferrer(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	resolver := sessions.NewResolver(db, testsupport.GetLogger())

	resolution, err := resolver.Resolve(sessions.ResolveInput{
		RawURL:    "https://example.com/essays?utm_source=newsletter&utm_medium=email&utm_campaign=march",
		Referrer:  "https://news.ycombinator.com/",
		PageViews: 1,
		Client:    desktopChrome(),
		Now:       time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	var session sessions.Session
	require.NoError(t, db.First(&session, "session_id = ?", resolution.SessionID).Error)
	assert.Equal(t, "newsletter", session.UTMSource)
	assert.Equal(t, "email", session.UTMMedium)
	assert.Equal(t, "march", session.UTMCampaign)
	assert.Equal(t, "https://news.ycombinator.com/", session.Referrer)
}

func TestResolvePropagatesStorageErrors(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	resolver := sessions.NewResolver(db, testsupport.GetLogger())

	// Break storage so both the lookback query and the insert fail.
	require.NoError(t, db.Exec("DROP TABLE sessions").Error)

	_, err := resolver.Resolve(sessions.ResolveInput{
		PageViews: 1,
		Client:    desktopChrome(),
		Now:       time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)
}

func TestMintTokenShape(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := sessions.MintToken()
		require.NoError(t, err)
		assert.Len(t, token, 64)
		assert.False(t, seen[token], "token collision")
		seen[token] = true
	}
}
