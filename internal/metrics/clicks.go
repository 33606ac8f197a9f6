package metrics

import (
	"fmt"

	"gorm.io/gorm"
)

// ClickMetric is the click-through rollup grouped by (page, element, href).
// CTR relates clicks to the page's views inside the same window.
type ClickMetric struct {
	PagePath       string  `json:"page_path"`
	Element        string  `json:"element"`
	Href           string  `json:"href"`
	Clicks         int64   `json:"clicks"`
	UniqueSessions int64   `json:"unique_sessions"`
	CTR            float64 `json:"ctr"`
	UniqueCTR      float64 `json:"unique_ctr"`
	AvgX           float64 `json:"avg_x"`
	AvgY           float64 `json:"avg_y"`
	ViewportWidth  int     `json:"viewport_width"`
	ViewportHeight int     `json:"viewport_height"`
}

// GetClickMetrics aggregates click events by page path, element and href.
// The click payload lives in event_data as JSON, so the grouping keys and
// coordinates come out via json_extract.
func GetClickMetrics(db *gorm.DB, params QueryParams) ([]ClickMetric, error) {
	var rawResults []struct {
		PagePath        string
		Element         string
		Href            string
		Clicks          int64
		UniqueSessions  int64
		AvgX            *float64
		AvgY            *float64
		ViewportWidth   int
		ViewportHeight  int
		PathViews       int64
		PathUniqueViews int64
	}

	query := `
    WITH path_views AS (
        SELECT
            page_path,
            COUNT(*) AS views,
            COUNT(DISTINCT session_id) AS unique_views
        FROM pageviews
        WHERE timestamp BETWEEN ? AND ?
        GROUP BY page_path
    )
    SELECT
        e.page_path,
        COALESCE(json_extract(e.event_data, '$.element'), '') AS element,
        COALESCE(json_extract(e.event_data, '$.href'), '') AS href,
        COUNT(*) AS clicks,
        COUNT(DISTINCT e.session_id) AS unique_sessions,
        AVG(json_extract(e.event_data, '$.x')) AS avg_x,
        AVG(json_extract(e.event_data, '$.y')) AS avg_y,
        COALESCE(MAX(json_extract(e.event_data, '$.viewport_width')), 0) AS viewport_width,
        COALESCE(MAX(json_extract(e.event_data, '$.viewport_height')), 0) AS viewport_height,
        COALESCE(pv.views, 0) AS path_views,
        COALESCE(pv.unique_views, 0) AS path_unique_views
    FROM events e
    LEFT JOIN path_views pv ON pv.page_path = e.page_path
    WHERE e.event_type = 'click'
    AND e.timestamp BETWEEN ? AND ?
    GROUP BY e.page_path, element, href
    ORDER BY clicks DESC
    LIMIT ?
    `

	from := params.TimeFrame.From.UTC()
	to := params.TimeFrame.To.UTC()
	err := db.Raw(query, from, to, from, to, params.Limit).Scan(&rawResults).Error
	if err != nil {
		return nil, fmt.Errorf("error computing click metrics: %w", err)
	}

	results := make([]ClickMetric, len(rawResults))
	for i, r := range rawResults {
		metric := ClickMetric{
			PagePath:       r.PagePath,
			Element:        r.Element,
			Href:           r.Href,
			Clicks:         r.Clicks,
			UniqueSessions: r.UniqueSessions,
			CTR:            percentage(r.Clicks, r.PathViews),
			UniqueCTR:      percentage(r.UniqueSessions, r.PathUniqueViews),
			ViewportWidth:  r.ViewportWidth,
			ViewportHeight: r.ViewportHeight,
		}
		if r.AvgX != nil {
			metric.AvgX = roundTo(*r.AvgX, DisplayDecimals)
		}
		if r.AvgY != nil {
			metric.AvgY = roundTo(*r.AvgY, DisplayDecimals)
		}
		results[i] = metric
	}

	return results, nil
}
