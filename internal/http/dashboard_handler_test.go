package http_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Riken-Shah/finding-me/internal/testsupport"
)

func getDashboard(t *testing.T, app *fiber.App, path string) (*http.Response, map[string]json.RawMessage) {
	t.Helper()

	req := httptest.NewRequest("GET", path, nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var parsed map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &parsed))
	return resp, parsed
}

func TestDashboardEmptyWindow(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	resp, parsed := getDashboard(t, app, "/api/v1/dashboard?range=24h")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Empty data comes back as empty arrays and zeroed scalars, never null.
	for _, key := range []string{"pages", "navigation_paths", "device_metrics", "geographic_data", "click_through"} {
		assert.JSONEq(t, "[]", string(parsed[key]), key)
	}

	var retention map[string]float64
	require.NoError(t, json.Unmarshal(parsed["retention"], &retention))
	assert.Zero(t, retention["total_sessions"])
	assert.Zero(t, retention["bounce_rate"])

	var scroll map[string]float64
	require.NoError(t, json.Unmarshal(parsed["scroll_depth"], &scroll))
	assert.Len(t, scroll, 4)
	assert.Zero(t, scroll["25"])

	assert.JSONEq(t, `"24h"`, string(parsed["range"]))
}

func TestDashboardAggregatesRecordedActivity(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	now := time.Now().UTC()
	session := testsupport.CreateTestSession(t, db, "d1d1d1d1d1d1d1d1d1d1d1d1d1d1d1d1d1d1d1d1d1d1d1d1d1d1d1d1d1d1d1d1", now.Add(-time.Hour))
	testsupport.CreateTestPageView(t, db, session.SessionID, "/home", now.Add(-time.Hour))
	testsupport.CreateTestPageView(t, db, session.SessionID, "/essays", now.Add(-50*time.Minute))

	resp, parsed := getDashboard(t, app, "/api/v1/dashboard?range=24h")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var retention map[string]float64
	require.NoError(t, json.Unmarshal(parsed["retention"], &retention))
	assert.Equal(t, float64(1), retention["total_sessions"])

	var pageRows []map[string]any
	require.NoError(t, json.Unmarshal(parsed["pages"], &pageRows))
	require.Len(t, pageRows, 2)

	var paths []map[string]any
	require.NoError(t, json.Unmarshal(parsed["navigation_paths"], &paths))
	require.Len(t, paths, 1)
	assert.Equal(t, "/home", paths[0]["from_path"])
	assert.Equal(t, "/essays", paths[0]["to_path"])

	var devices []map[string]any
	require.NoError(t, json.Unmarshal(parsed["device_metrics"], &devices))
	require.Len(t, devices, 1)
	assert.Equal(t, "desktop", devices[0]["device"])
}

func TestDashboardCustomWindow(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	from := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	session := testsupport.CreateTestSession(t, db, "c2c2c2c2c2c2c2c2c2c2c2c2c2c2c2c2c2c2c2c2c2c2c2c2c2c2c2c2c2c2c2c2", from.Add(time.Hour))
	testsupport.CreateTestPageView(t, db, session.SessionID, "/home", from.Add(time.Hour))

	path := "/api/v1/dashboard?startTime=" + strconv.FormatInt(from.UnixMilli(), 10) +
		"&endTime=" + strconv.FormatInt(to.UnixMilli(), 10)
	resp, parsed := getDashboard(t, app, path)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var retention map[string]float64
	require.NoError(t, json.Unmarshal(parsed["retention"], &retention))
	assert.Equal(t, float64(1), retention["total_sessions"])
	assert.JSONEq(t, `"custom"`, string(parsed["range"]))
}

func TestDashboardRejectsBadRange(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	resp, parsed := getDashboard(t, app, "/api/v1/dashboard?range=90d")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `"INVALID_TIME_RANGE"`, string(parsed["code"]))
}
