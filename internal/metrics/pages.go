package metrics

import (
	"fmt"

	"gorm.io/gorm"
)

// PageMetric is the per-path rollup, ordered by view count.
type PageMetric struct {
	PagePath        string  `json:"page_path"`
	Views           int64   `json:"views"`
	UniqueSessions  int64   `json:"unique_sessions"`
	AvgTimeOnPageMs float64 `json:"avg_time_on_page_ms"`
	AvgScrollDepth  float64 `json:"avg_scroll_depth"`
	MaxScrollDepth  int     `json:"max_scroll_depth"`
	EntryRate       float64 `json:"entry_rate"`
	ExitRate        float64 `json:"exit_rate"`
}

// GetPageMetrics returns the top pages by views with per-path engagement
// figures. Null time-on-page rows (the still-open last view of each session)
// are skipped by AVG rather than counted as zero.
func GetPageMetrics(db *gorm.DB, params QueryParams) ([]PageMetric, error) {
	var rawResults []struct {
		PagePath        string
		Views           int64
		UniqueSessions  int64
		AvgTimeOnPageMs *float64
		AvgScrollDepth  *float64
		MaxScrollDepth  int
		Entries         int64
		Exits           int64
	}

	query := `
    SELECT
        page_path,
        COUNT(*) AS views,
        COUNT(DISTINCT session_id) AS unique_sessions,
        AVG(CAST(time_on_page_ms AS REAL)) AS avg_time_on_page_ms,
        AVG(CAST(max_scroll_percentage AS REAL)) AS avg_scroll_depth,
        COALESCE(MAX(max_scroll_percentage), 0) AS max_scroll_depth,
        SUM(CASE WHEN entry_page = 1 THEN 1 ELSE 0 END) AS entries,
        SUM(CASE WHEN exit_page = 1 THEN 1 ELSE 0 END) AS exits
    FROM pageviews
    WHERE timestamp BETWEEN ? AND ?
    GROUP BY page_path
    HAVING views > 0
    ORDER BY views DESC
    LIMIT ?
    `

	err := db.Raw(query,
		params.TimeFrame.From.UTC(),
		params.TimeFrame.To.UTC(),
		params.Limit,
	).Scan(&rawResults).Error
	if err != nil {
		return nil, fmt.Errorf("error computing page metrics: %w", err)
	}

	results := make([]PageMetric, len(rawResults))
	for i, r := range rawResults {
		metric := PageMetric{
			PagePath:       r.PagePath,
			Views:          r.Views,
			UniqueSessions: r.UniqueSessions,
			MaxScrollDepth: r.MaxScrollDepth,
			EntryRate:      percentage(r.Entries, r.Views),
			ExitRate:       percentage(r.Exits, r.Views),
		}
		if r.AvgTimeOnPageMs != nil {
			metric.AvgTimeOnPageMs = roundTo(*r.AvgTimeOnPageMs, DisplayDecimals)
		}
		if r.AvgScrollDepth != nil {
			metric.AvgScrollDepth = roundTo(*r.AvgScrollDepth, DisplayDecimals)
		}
		results[i] = metric
	}

	return results, nil
}
