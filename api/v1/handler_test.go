package v1_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Riken-Shah/finding-me/internal/sessions"
	"github.com/Riken-Shah/finding-me/internal/testsupport"
	"github.com/Riken-Shah/finding-me/internal/tracking"
)

const testUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type trackResponse struct {
	SessionID    string `json:"session_id"`
	IsNewSession bool   `json:"is_new_session"`
	Code         string `json:"code"`
	Error        string `json:"error"`
	Tracked      *bool  `json:"tracked"`
}

func postTrack(t *testing.T, app *fiber.App, body string, mutate func(*http.Request)) (*http.Response, trackResponse) {
	t.Helper()

	req := httptest.NewRequest("POST", "/api/v1/track", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", testUserAgent)
	req.Header.Set("Sec-Fetch-Site", "same-origin") // Required for browser-only validation
	if mutate != nil {
		mutate(req)
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var parsed trackResponse
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &parsed))
	}
	return resp, parsed
}

func sessionCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, cookie := range resp.Cookies() {
		if cookie.Name == testsupport.SessionCookieName {
			return cookie
		}
	}
	return nil
}

func TestTrackBatchCreatesSession(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	body := `{"events":[
		{"event":"session_start","url":"https://example.com/home"},
		{"event":"pageview","path":"/home","url":"https://example.com/home"},
		{"event":"pageview","path":"/about","url":"https://example.com/about"}
	]}`
	resp, parsed := postTrack(t, app, body, nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, parsed.IsNewSession)
	assert.Len(t, parsed.SessionID, 64)

	cookie := sessionCookie(t, resp)
	require.NotNil(t, cookie)
	assert.Equal(t, parsed.SessionID, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	var session sessions.Session
	require.NoError(t, db.First(&session, "session_id = ?", parsed.SessionID).Error)
	assert.Equal(t, 2, session.PageCount)
	assert.False(t, session.IsBounce)

	var views []tracking.PageView
	require.NoError(t, db.Where("session_id = ?", parsed.SessionID).Order("id ASC").Find(&views).Error)
	require.Len(t, views, 2)
	assert.True(t, views[0].EntryPage)
	assert.False(t, views[0].ExitPage)
	assert.False(t, views[1].EntryPage)
	assert.True(t, views[1].ExitPage)
}

func TestTrackReusesSessionFromCookie(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	first, firstParsed := postTrack(t, app, `{"events":[{"event":"pageview","path":"/home"}]}`, nil)
	require.Equal(t, http.StatusOK, first.StatusCode)
	cookie := sessionCookie(t, first)
	require.NotNil(t, cookie)

	_, secondParsed := postTrack(t, app, `{"events":[{"event":"pageview","path":"/essays"}]}`, func(req *http.Request) {
		req.AddCookie(cookie)
	})

	assert.Equal(t, firstParsed.SessionID, secondParsed.SessionID)
	assert.False(t, secondParsed.IsNewSession)

	var session sessions.Session
	require.NoError(t, db.First(&session, "session_id = ?", firstParsed.SessionID).Error)
	assert.Equal(t, 2, session.PageCount)
	assert.False(t, session.IsBounce)
}

func TestTrackHeaderToken(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	_, first := postTrack(t, app, `{"events":[{"event":"pageview","path":"/home"}]}`, nil)

	_, second := postTrack(t, app, `{"events":[{"event":"pageview","path":"/about"}]}`, func(req *http.Request) {
		req.Header.Set("X-Session-Id", first.SessionID)
	})

	assert.Equal(t, first.SessionID, second.SessionID)
	assert.False(t, second.IsNewSession)
}

func TestTrackMissingParameter(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	resp, parsed := postTrack(t, app, `{"events":[{"event":"click","path":"/home","element":"cta-button"}]}`, nil)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "MISSING_PARAMETER", parsed.Code)
	assert.Equal(t, "missing required parameters: element and href", parsed.Error)

	// A rejected payload creates nothing, not even a session.
	var sessionCount int64
	require.NoError(t, db.Model(&sessions.Session{}).Count(&sessionCount).Error)
	assert.Zero(t, sessionCount)

	var eventCount int64
	require.NoError(t, db.Model(&tracking.Event{}).Count(&eventCount).Error)
	assert.Zero(t, eventCount)
}

func TestTrackGeoHeaders(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	_, parsed := postTrack(t, app, `{"events":[{"event":"pageview","path":"/home"}]}`, func(req *http.Request) {
		req.Header.Set("X-Vercel-IP-Country", "NL")
		req.Header.Set("X-Vercel-IP-City", "The%20Hague")
		req.Header.Set("X-Vercel-IP-Latitude", "52.08")
		req.Header.Set("X-Vercel-IP-Longitude", "4.31")
	})

	var session sessions.Session
	require.NoError(t, db.First(&session, "session_id = ?", parsed.SessionID).Error)
	assert.Equal(t, "NL", session.Country)
	assert.Equal(t, "The Hague", session.City)
	require.NotNil(t, session.Latitude)
	require.NotNil(t, session.Longitude)
	assert.InDelta(t, 52.08, *session.Latitude, 0.001)
	assert.InDelta(t, 4.31, *session.Longitude, 0.001)
}

func TestTrackNoTrackHeader(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	resp, parsed := postTrack(t, app, `{"events":[{"event":"pageview","path":"/home"}]}`, func(req *http.Request) {
		req.Header.Set("X-No-Track", "1")
	})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, parsed.Tracked)
	assert.False(t, *parsed.Tracked)

	var count int64
	require.NoError(t, db.Table("sessions").Count(&count).Error)
	assert.Zero(t, count)
}

func TestTrackBotsIgnored(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	resp, parsed := postTrack(t, app, `{"events":[{"event":"pageview","path":"/home"}]}`, func(req *http.Request) {
		req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")
	})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, parsed.Tracked)
	assert.False(t, *parsed.Tracked)

	var count int64
	require.NoError(t, db.Table("sessions").Count(&count).Error)
	assert.Zero(t, count)
}

func TestTrackRejectsServerToServer(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	resp, _ := postTrack(t, app, `{"events":[{"event":"pageview","path":"/home"}]}`, func(req *http.Request) {
		// No Sec-Fetch-Site header - simulating server-to-server request
		req.Header.Del("Sec-Fetch-Site")
	})

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var count int64
	require.NoError(t, db.Table("sessions").Count(&count).Error)
	assert.Zero(t, count)
}

func TestTrackGetForm(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	req := httptest.NewRequest("GET", "/api/v1/track?event=pageview&path=/home&url=https%3A%2F%2Fexample.com%2Fhome", nil)
	req.Header.Set("User-Agent", testUserAgent)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var parsed trackResponse
	require.NoError(t, json.Unmarshal(raw, &parsed))
	assert.True(t, parsed.IsNewSession)

	var pv tracking.PageView
	require.NoError(t, db.Where("session_id = ?", parsed.SessionID).First(&pv).Error)
	assert.Equal(t, "/home", pv.PagePath)
}

func TestTrackSingleEventBody(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	resp, parsed := postTrack(t, app, `{"event":"pageview","path":"/home","url":"https://example.com/home"}`, nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, parsed.IsNewSession)

	var count int64
	require.NoError(t, db.Model(&tracking.PageView{}).Where("session_id = ?", parsed.SessionID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestTrackMalformedBody(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	resp, parsed := postTrack(t, app, `{not json`, nil)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_REQUEST", parsed.Code)

	var count int64
	require.NoError(t, db.Table("sessions").Count(&count).Error)
	assert.Zero(t, count)
}
