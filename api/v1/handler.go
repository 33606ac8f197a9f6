package v1

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"github.com/Riken-Shah/finding-me/internal/config"
	"github.com/Riken-Shah/finding-me/internal/pkg/clientinfo"
	"github.com/Riken-Shah/finding-me/internal/pkg/geoip"
	"github.com/Riken-Shah/finding-me/internal/sessions"
	"github.com/Riken-Shah/finding-me/internal/tracking"
)

const (
	errInvalidRequest = "Invalid request"

	codeInvalidRequest   = "INVALID_REQUEST"
	codeMissingParameter = "MISSING_PARAMETER"
	codeInvalidSession   = "INVALID_SESSION"
	codeStorageError     = "STORAGE_ERROR"
)

// TrackRequest is the POST body: either a batch under "events" or a single
// event's fields at the top level.
type TrackRequest struct {
	Events   []tracking.TrackedEvent `json:"events"`
	Referrer string                  `json:"referrer"`
	tracking.TrackedEvent
}

// TrackHandler accepts both request shapes (GET with query params, POST with
// a JSON body), resolves the session, and records every event in order under
// it. The resolved token is echoed in the body and the session cookie.
func TrackHandler(ctx *cartridge.Context) error {
	cfg := config.GetConfig()

	// Internal dashboard polling opts out of its own analytics.
	if ctx.Get("X-No-Track") != "" {
		return ctx.Status(http.StatusOK).JSON(fiber.Map{"status": "ok", "tracked": false})
	}

	events, referrer, err := parseTrackRequest(ctx.Ctx)
	if err != nil {
		ctx.Logger.Debug("Failed to parse tracking request", slog.Any("error", err))
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": errInvalidRequest,
			"code":  codeInvalidRequest,
		})
	}

	// Validate before resolving so a bad payload never mints a session.
	for _, ev := range events {
		if err := tracking.Validate(ev); err != nil {
			return trackError(ctx, err)
		}
	}

	userAgent := ctx.Get("User-Agent")
	if forwardedUA := ctx.Get("X-Forwarded-User-Agent"); forwardedUA != "" {
		userAgent = forwardedUA
	}
	client := clientinfo.Parse(userAgent)
	if client.Bot {
		return ctx.Status(http.StatusOK).JSON(fiber.Map{"status": "ok", "tracked": false})
	}

	if referrer == "" {
		referrer = ctx.Get("Referer")
	}

	pageViews := 0
	rawURL := ""
	for _, ev := range events {
		if ev.IsPageView() {
			pageViews++
		}
		if rawURL == "" && ev.URL != "" {
			rawURL = ev.URL
		}
	}

	db := ctx.DBManager.GetConnection()
	now := time.Now().UTC()

	resolver := sessions.NewResolver(db, ctx.Logger)
	resolution, err := resolver.Resolve(sessions.ResolveInput{
		Token:     requestToken(ctx.Ctx, cfg.AppName+"_session"),
		RawURL:    rawURL,
		Referrer:  referrer,
		PageViews: pageViews,
		Client:    client,
		Location:  requestLocation(ctx.Ctx),
		Now:       now,
	})
	if err != nil {
		ctx.Logger.Error("Failed to resolve session", slog.Any("error", err))
		return trackError(ctx, err)
	}

	recorder := tracking.NewRecorder(db, ctx.Logger)
	for _, ev := range events {
		if ev.Event == tracking.EventTypeSessionStart && resolution.IsNewSession {
			// The insert above already opened the session.
			continue
		}
		if err := recorder.Record(resolution.SessionID, ev, now); err != nil {
			return trackError(ctx, err)
		}
	}

	setSessionCookie(ctx.Ctx, cfg, resolution.SessionID)
	return ctx.Status(http.StatusOK).JSON(fiber.Map{
		"session_id":     resolution.SessionID,
		"is_new_session": resolution.IsNewSession,
	})
}

// requestLocation prefers the edge proxy's geolocation headers when present
// and falls back to a GeoIP lookup on the client address.
func requestLocation(c *fiber.Ctx) geoip.Location {
	country := c.Get("X-Vercel-IP-Country")
	if country == "" {
		country = c.Get("CF-IPCountry")
	}
	if country == "" || country == "XX" {
		return geoip.Lookup(getClientIP(c))
	}

	loc := geoip.Location{Country: country}
	if city := c.Get("X-Vercel-IP-City"); city != "" {
		if decoded, err := url.QueryUnescape(city); err == nil {
			loc.City = decoded
		} else {
			loc.City = city
		}
	}
	if lat, err := strconv.ParseFloat(c.Get("X-Vercel-IP-Latitude"), 64); err == nil {
		if lng, err := strconv.ParseFloat(c.Get("X-Vercel-IP-Longitude"), 64); err == nil {
			loc.Latitude = &lat
			loc.Longitude = &lng
		}
	}
	return loc
}

// requestToken reads the client token: cookie first (authoritative once
// set), then the X-Session-Id header, then the query param.
func requestToken(c *fiber.Ctx, cookieName string) string {
	if token := c.Cookies(cookieName); token != "" {
		return token
	}
	if token := c.Get("X-Session-Id"); token != "" {
		return token
	}
	return c.Query("session_id")
}

func setSessionCookie(c *fiber.Ctx, cfg *config.Config, sessionID string) {
	c.Cookie(&fiber.Cookie{
		Name:     cfg.AppName + "_session",
		Value:    sessionID,
		MaxAge:   cfg.GetSessionCookieMaxAge(),
		HTTPOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: fiber.CookieSameSiteLaxMode,
		Path:     "/",
	})
}

// parseTrackRequest extracts the ordered event list from either request
// shape. A POST body with no batch falls back to its top-level single-event
// fields.
func parseTrackRequest(c *fiber.Ctx) ([]tracking.TrackedEvent, string, error) {
	if c.Method() == fiber.MethodGet {
		return []tracking.TrackedEvent{queryEvent(c)}, c.Query("referrer"), nil
	}

	var req TrackRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return nil, "", err
	}

	if len(req.Events) > 0 {
		return req.Events, req.Referrer, nil
	}
	return []tracking.TrackedEvent{req.TrackedEvent}, req.Referrer, nil
}

// queryEvent builds a single event from GET query params.
func queryEvent(c *fiber.Ctx) tracking.TrackedEvent {
	ev := tracking.TrackedEvent{
		Event:          c.Query("event"),
		Path:           c.Query("path"),
		URL:            c.Query("url"),
		Element:        c.Query("element"),
		Href:           c.Query("href"),
		SectionID:      c.Query("section_id"),
		ViewportWidth:  c.QueryInt("viewport_width"),
		ViewportHeight: c.QueryInt("viewport_height"),
	}
	ev.ScrollDepth = queryIntPtr(c, "scroll_depth")
	ev.X = queryIntPtr(c, "x")
	ev.Y = queryIntPtr(c, "y")
	ev.TimeSpentMs = queryInt64Ptr(c, "time_spent_ms")
	ev.VisibleMs = queryInt64Ptr(c, "visible_ms")
	ev.TTFB = queryFloatPtr(c, "ttfb")
	ev.FCP = queryFloatPtr(c, "fcp")
	ev.LCP = queryFloatPtr(c, "lcp")
	ev.CLS = queryFloatPtr(c, "cls")
	ev.FID = queryFloatPtr(c, "fid")
	return ev
}

func queryIntPtr(c *fiber.Ctx, key string) *int {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &value
}

func queryInt64Ptr(c *fiber.Ctx, key string) *int64 {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &value
}

func queryFloatPtr(c *fiber.Ctx, key string) *float64 {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &value
}

// trackError maps recorder and resolver failures onto the response
// taxonomy: 400 for payload problems, 403 for unknown sessions, 500 for
// storage failures (opaque, details stay in the logs).
func trackError(ctx *cartridge.Context, err error) error {
	var missing *tracking.MissingParamError
	if errors.As(err, &missing) {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": missing.Error(),
			"code":  codeMissingParameter,
		})
	}

	var invalid *tracking.InvalidSessionError
	if errors.As(err, &invalid) {
		return ctx.Status(http.StatusForbidden).JSON(fiber.Map{
			"error": invalid.Error(),
			"code":  codeInvalidSession,
		})
	}

	ctx.Logger.Error("Tracking request failed", slog.Any("error", err))
	return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to record event",
		"code":  codeStorageError,
	})
}
