package metrics

import (
	"fmt"

	"gorm.io/gorm"
)

// DeviceMetric groups session counts by (device class, browser). Engaged
// means the session did not bounce.
type DeviceMetric struct {
	Device            string `json:"device"`
	Browser           string `json:"browser"`
	Sessions          int64  `json:"sessions"`
	ReturningSessions int64  `json:"returning_sessions"`
	EngagedSessions   int64  `json:"engaged_sessions"`
}

// GetDeviceMetrics returns session counts per (device, browser) pair with
// returning and engaged sub-counts.
func GetDeviceMetrics(db *gorm.DB, params QueryParams) ([]DeviceMetric, error) {
	var results []DeviceMetric

	query := `
    SELECT
        device,
        browser,
        COUNT(*) AS sessions,
        SUM(CASE WHEN is_returning = 1 THEN 1 ELSE 0 END) AS returning_sessions,
        SUM(CASE WHEN is_bounce = 0 THEN 1 ELSE 0 END) AS engaged_sessions
    FROM sessions
    WHERE start_time BETWEEN ? AND ?
    GROUP BY device, browser
    HAVING sessions > 0
    ORDER BY sessions DESC
    LIMIT ?
    `

	err := db.Raw(query,
		params.TimeFrame.From.UTC(),
		params.TimeFrame.To.UTC(),
		params.Limit,
	).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error computing device metrics: %w", err)
	}

	return results, nil
}
