package metrics

import (
	"fmt"

	"gorm.io/gorm"
)

// GeoMetric groups session counts by location. Rows without usable
// coordinates are excluded so the map layer never plots (0, 0).
type GeoMetric struct {
	Country           string  `json:"country"`
	City              string  `json:"city"`
	Latitude          float64 `json:"latitude"`
	Longitude         float64 `json:"longitude"`
	Sessions          int64   `json:"sessions"`
	ReturningSessions int64   `json:"returning_sessions"`
	BounceRate        float64 `json:"bounce_rate"`
}

// GetGeographicMetrics returns the top locations by session count.
func GetGeographicMetrics(db *gorm.DB, params QueryParams) ([]GeoMetric, error) {
	var rawResults []struct {
		Country           string
		City              string
		Latitude          float64
		Longitude         float64
		Sessions          int64
		ReturningSessions int64
		BouncedSessions   int64
	}

	query := `
    SELECT
        country,
        city,
        latitude,
        longitude,
        COUNT(*) AS sessions,
        SUM(CASE WHEN is_returning = 1 THEN 1 ELSE 0 END) AS returning_sessions,
        SUM(CASE WHEN is_bounce = 1 THEN 1 ELSE 0 END) AS bounced_sessions
    FROM sessions
    WHERE start_time BETWEEN ? AND ?
    AND latitude IS NOT NULL
    AND longitude IS NOT NULL
    GROUP BY country, city, latitude, longitude
    HAVING sessions > 0
    ORDER BY sessions DESC
    LIMIT ?
    `

	err := db.Raw(query,
		params.TimeFrame.From.UTC(),
		params.TimeFrame.To.UTC(),
		params.Limit,
	).Scan(&rawResults).Error
	if err != nil {
		return nil, fmt.Errorf("error computing geographic metrics: %w", err)
	}

	results := make([]GeoMetric, len(rawResults))
	for i, r := range rawResults {
		results[i] = GeoMetric{
			Country:           r.Country,
			City:              r.City,
			Latitude:          r.Latitude,
			Longitude:         r.Longitude,
			Sessions:          r.Sessions,
			ReturningSessions: r.ReturningSessions,
			BounceRate:        percentage(r.BouncedSessions, r.Sessions),
		}
	}

	return results, nil
}
