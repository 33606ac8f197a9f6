package metrics

import (
	"fmt"

	"gorm.io/gorm"
)

// RetentionMetrics is the session-level summary block for a window.
type RetentionMetrics struct {
	TotalSessions             int64   `json:"total_sessions"`
	BouncedSessions           int64   `json:"bounced_sessions"`
	BounceRate                float64 `json:"bounce_rate"`
	AvgSessionDurationSeconds float64 `json:"avg_session_duration_seconds"`
	AvgPagesPerSession        float64 `json:"avg_pages_per_session"`
	ReturningSessions         int64   `json:"returning_sessions"`
	ReturningVisitorRate      float64 `json:"returning_visitor_rate"`
	ConversionRate            float64 `json:"conversion_rate"`
}

// GetRetentionMetrics computes session totals, bounce rate, average duration
// and pages per session, and returning/conversion rates for the window. A
// session counts as bounced when it has at most one page view inside the
// window and its engagement signals never cleared the bounce flag.
func GetRetentionMetrics(db *gorm.DB, params QueryParams) (RetentionMetrics, error) {
	var raw struct {
		TotalSessions      int64
		BouncedSessions    int64
		ReturningSessions  int64
		ConvertedSessions  int64
		AvgDurationMs      *float64
		AvgPagesPerSession *float64
	}

	query := `
    WITH windowed AS (
        SELECT
            s.session_id,
            s.is_bounce,
            s.is_returning,
            s.total_time_ms,
            s.page_count,
            (
                SELECT COUNT(*) FROM pageviews p
                WHERE p.session_id = s.session_id
                AND p.timestamp BETWEEN ? AND ?
            ) AS window_views,
            EXISTS (
                SELECT 1 FROM events e
                WHERE e.session_id = s.session_id
                AND e.event_type = 'conversion'
                AND e.timestamp BETWEEN ? AND ?
            ) AS converted
        FROM sessions s
        WHERE s.start_time BETWEEN ? AND ?
    )
    SELECT
        COUNT(*) AS total_sessions,
        COALESCE(SUM(CASE WHEN window_views <= 1 AND is_bounce = 1 THEN 1 ELSE 0 END), 0) AS bounced_sessions,
        COALESCE(SUM(CASE WHEN is_returning = 1 THEN 1 ELSE 0 END), 0) AS returning_sessions,
        COALESCE(SUM(CASE WHEN converted THEN 1 ELSE 0 END), 0) AS converted_sessions,
        AVG(CASE WHEN total_time_ms > 0 THEN CAST(total_time_ms AS REAL) END) AS avg_duration_ms,
        AVG(CAST(page_count AS REAL)) AS avg_pages_per_session
    FROM windowed
    `

	from := params.TimeFrame.From.UTC()
	to := params.TimeFrame.To.UTC()
	err := db.Raw(query, from, to, from, to, from, to).Scan(&raw).Error
	if err != nil {
		return RetentionMetrics{}, fmt.Errorf("error computing retention metrics: %w", err)
	}

	result := RetentionMetrics{
		TotalSessions:        raw.TotalSessions,
		BouncedSessions:      raw.BouncedSessions,
		ReturningSessions:    raw.ReturningSessions,
		BounceRate:           percentage(raw.BouncedSessions, raw.TotalSessions),
		ReturningVisitorRate: percentage(raw.ReturningSessions, raw.TotalSessions),
		ConversionRate:       percentage(raw.ConvertedSessions, raw.TotalSessions),
	}
	if raw.AvgDurationMs != nil {
		result.AvgSessionDurationSeconds = roundTo(*raw.AvgDurationMs/1000, DisplayDecimals)
	}
	if raw.AvgPagesPerSession != nil {
		result.AvgPagesPerSession = roundTo(*raw.AvgPagesPerSession, DisplayDecimals)
	}

	return result, nil
}
