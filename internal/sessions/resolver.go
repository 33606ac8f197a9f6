package sessions

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"github.com/Riken-Shah/finding-me/internal/config"
	"github.com/Riken-Shah/finding-me/internal/pkg/clientinfo"
	"github.com/Riken-Shah/finding-me/internal/pkg/geoip"
)

// ResolveInput carries everything the resolver needs about one tracking
// request. PageViews is the number of page-view events in the request batch;
// the resolver owns page_count and the bounce flag so concurrent requests
// for the same token cannot lose updates.
type ResolveInput struct {
	Token     string
	RawURL    string
	Referrer  string
	PageViews int
	Client    clientinfo.ClientInfo
	Location  geoip.Location
	Now       time.Time
}

// Resolution is the resolver's verdict for one request.
type Resolution struct {
	SessionID    string
	IsNewSession bool
}

// Resolver maps inbound tokens to sessions using a sliding inactivity window.
type Resolver struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewResolver(db *gorm.DB, logger *slog.Logger) *Resolver {
	return &Resolver{db: db, logger: logger}
}

// Resolve reuses the supplied token when its session saw activity inside the
// inactivity window, and otherwise mints a fresh session. Reuse is a single
// conditional UPDATE keyed on the token and the window, so two concurrent
// requests both land their page-view increments.
func (r *Resolver) Resolve(in ResolveInput) (Resolution, error) {
	cfg := config.GetConfig()
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if in.Token != "" {
		reused, err := r.touchExisting(in, now, cfg.GetSessionTimeout())
		if err != nil {
			return Resolution{}, err
		}
		if reused {
			return Resolution{SessionID: in.Token, IsNewSession: false}, nil
		}
	}

	return r.mintSession(in, now, cfg.GetReturningLookbackDays())
}

// touchExisting refreshes end_time and total_time_ms, adds the request's
// page views to page_count, and clears the bounce flag once the session has
// more than one page view. Returns false when the token is unknown or its
// session fell outside the window.
func (r *Resolver) touchExisting(in ResolveInput, now time.Time, timeoutSeconds int) (bool, error) {
	cutoff := now.Add(-time.Duration(timeoutSeconds) * time.Second)

	var affected int64
	err := sqlite.PerformWrite(r.logger, r.db, func(tx *gorm.DB) error {
		result := tx.Exec(`
			UPDATE sessions
			SET end_time = ?,
			    total_time_ms = CAST((julianday(?) - julianday(start_time)) * 86400000.0 AS INTEGER),
			    page_count = page_count + ?,
			    is_bounce = CASE WHEN page_count + ? > 1 THEN 0 ELSE is_bounce END,
			    updated_at = ?
			WHERE session_id = ?
			  AND COALESCE(end_time, start_time) >= ?
		`, now, now, in.PageViews, in.PageViews, now, in.Token, cutoff)
		if result.Error != nil {
			return result.Error
		}
		affected = result.RowsAffected
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("touching session %s: %w", in.Token, err)
	}
	return affected > 0, nil
}

func (r *Resolver) mintSession(in ResolveInput, now time.Time, lookbackDays int) (Resolution, error) {
	token, err := MintToken()
	if err != nil {
		return Resolution{}, err
	}

	returning, err := r.isReturningVisitor(in, now, lookbackDays)
	if err != nil {
		return Resolution{}, fmt.Errorf("classifying returning visitor: %w", err)
	}

	pageCount := in.PageViews
	if pageCount < 1 {
		pageCount = 1
	}

	session := Session{
		SessionID:   token,
		StartTime:   now,
		PageCount:   pageCount,
		IsBounce:    pageCount <= 1,
		IsReturning: returning,
		Device:      in.Client.Device,
		Browser:     in.Client.Browser,
		OS:          in.Client.OS,
		Country:     in.Location.Country,
		City:        in.Location.City,
		Latitude:    in.Location.Latitude,
		Longitude:   in.Location.Longitude,
		Referrer:    in.Referrer,
	}
	session.UTMSource, session.UTMMedium, session.UTMCampaign, session.UTMTerm, session.UTMContent = utmParams(in.RawURL)

	err = sqlite.PerformWrite(r.logger, r.db, func(tx *gorm.DB) error {
		return tx.Create(&session).Error
	})
	if err != nil {
		return Resolution{}, fmt.Errorf("creating session: %w", err)
	}

	return Resolution{SessionID: token, IsNewSession: true}, nil
}

// isReturningVisitor checks the lookback window for an earlier session with
// the same token (expired but remembered client-side) or the same
// device/browser/os fingerprint. A fully unknown fingerprint only matches by
// token, otherwise every unparseable user agent would count as returning.
func (r *Resolver) isReturningVisitor(in ResolveInput, now time.Time, lookbackDays int) (bool, error) {
	since := now.AddDate(0, 0, -lookbackDays)

	query := r.db.Model(&Session{}).Where("start_time >= ?", since)
	fingerprintKnown := in.Client.Device != clientinfo.UnknownDevice ||
		in.Client.Browser != clientinfo.UnknownBrowser ||
		in.Client.OS != clientinfo.UnknownOS

	switch {
	case in.Token != "" && fingerprintKnown:
		query = query.Where("session_id = ? OR (device = ? AND browser = ? AND os = ?)",
			in.Token, in.Client.Device, in.Client.Browser, in.Client.OS)
	case in.Token != "":
		query = query.Where("session_id = ?", in.Token)
	case fingerprintKnown:
		query = query.Where("device = ? AND browser = ? AND os = ?",
			in.Client.Device, in.Client.Browser, in.Client.OS)
	default:
		return false, nil
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func utmParams(rawURL string) (source, medium, campaign, term, content string) {
	if rawURL == "" {
		return
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return
	}
	values := parsed.Query()
	return values.Get("utm_source"), values.Get("utm_medium"),
		values.Get("utm_campaign"), values.Get("utm_term"), values.Get("utm_content")
}
