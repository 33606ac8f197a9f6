package metrics

import (
	"fmt"

	"gorm.io/gorm"
)

// NavigationPath is one observed page-to-page transition with its frequency.
type NavigationPath struct {
	FromPath string `json:"from_path"`
	ToPath   string `json:"to_path"`
	Count    int64  `json:"count"`
}

// GetNavigationPaths returns the most common page-to-page transitions in the
// window. Transitions are computed per session with a window function over
// the chronological page view order; refreshes (same path to same path) are
// skipped.
func GetNavigationPaths(db *gorm.DB, params QueryParams) ([]NavigationPath, error) {
	var results []NavigationPath

	query := `
    WITH ordered AS (
        SELECT
            session_id,
            page_path,
            LEAD(page_path) OVER (
                PARTITION BY session_id
                ORDER BY timestamp ASC, id ASC
            ) AS next_path
        FROM pageviews
        WHERE timestamp BETWEEN ? AND ?
    )
    SELECT
        page_path AS from_path,
        next_path AS to_path,
        COUNT(*) AS count
    FROM ordered
    WHERE next_path IS NOT NULL
    AND next_path != page_path
    GROUP BY page_path, next_path
    ORDER BY count DESC
    LIMIT ?
    `

	err := db.Raw(query,
		params.TimeFrame.From.UTC(),
		params.TimeFrame.To.UTC(),
		params.Limit,
	).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error computing navigation paths: %w", err)
	}

	return results, nil
}
