package metrics

import (
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"github.com/Riken-Shah/finding-me/internal/tracking"
)

// GetScrollDepthDistribution returns, for each scroll milestone, the share
// of page views in the window whose max scroll reached it, as a percentage.
// Keys are the milestone values ("25", "50", "75", "100").
func GetScrollDepthDistribution(db *gorm.DB, params QueryParams) (map[string]float64, error) {
	var raw struct {
		Total int64
		M25   int64
		M50   int64
		M75   int64
		M100  int64
	}

	query := `
    SELECT
        COUNT(*) AS total,
        COALESCE(SUM(CASE WHEN max_scroll_percentage >= 25 THEN 1 ELSE 0 END), 0) AS m25,
        COALESCE(SUM(CASE WHEN max_scroll_percentage >= 50 THEN 1 ELSE 0 END), 0) AS m50,
        COALESCE(SUM(CASE WHEN max_scroll_percentage >= 75 THEN 1 ELSE 0 END), 0) AS m75,
        COALESCE(SUM(CASE WHEN max_scroll_percentage >= 100 THEN 1 ELSE 0 END), 0) AS m100
    FROM pageviews
    WHERE timestamp BETWEEN ? AND ?
    `

	err := db.Raw(query,
		params.TimeFrame.From.UTC(),
		params.TimeFrame.To.UTC(),
	).Scan(&raw).Error
	if err != nil {
		return nil, fmt.Errorf("error computing scroll depth distribution: %w", err)
	}

	counts := map[int]int64{25: raw.M25, 50: raw.M50, 75: raw.M75, 100: raw.M100}
	distribution := make(map[string]float64, len(tracking.ScrollMilestones))
	for _, milestone := range tracking.ScrollMilestones {
		distribution[strconv.Itoa(milestone)] = percentage(counts[milestone], raw.Total)
	}

	return distribution, nil
}
