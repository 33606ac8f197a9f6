// Package metrics answers "what happened in window [from, to]?" with
// read-only rollups over sessions, pageviews and events.
package metrics

import (
	"time"

	"github.com/Riken-Shah/finding-me/internal/timeframe"
)

// DefaultLimit caps per-group result sets (top pages, top countries, ...).
const DefaultLimit = 10

// QueryParams contains common parameters for windowed queries.
type QueryParams struct {
	TimeFrame *timeframe.TimeFrame
	Limit     int
}

// NewQueryParams creates query params with the default limit. A nil time
// frame falls back to the trailing 7 days to prevent panics downstream.
func NewQueryParams(tf *timeframe.TimeFrame) QueryParams {
	if tf == nil {
		now := time.Now().UTC()
		tf = &timeframe.TimeFrame{
			From:  now.AddDate(0, 0, -7),
			To:    now,
			Label: timeframe.RangeLabelLast7Days,
		}
	}
	return QueryParams{
		TimeFrame: tf,
		Limit:     DefaultLimit,
	}
}
