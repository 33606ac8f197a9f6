// Package tracking records page views and interaction events against a
// resolved session and keeps the session's derived fields consistent.
package tracking

import (
	"time"
)

// Event type names accepted on the wire.
const (
	EventTypeSessionStart = "session_start"
	EventTypePageView     = "pageview"
	EventTypeScroll       = "scroll"
	EventTypeClick        = "click"
	EventTypeSectionView  = "section_view"
	EventTypeSectionEnter = "section_enter"
	EventTypeSectionExit  = "section_exit"
	EventTypePerformance  = "performance"
	EventTypeUserEngaged  = "user_engaged"
	EventTypeBounce       = "bounce"
	EventTypeSessionEnd   = "session_end"
	EventTypeConversion   = "conversion"
)

// Scroll milestones reported by the capture client.
var ScrollMilestones = []int{25, 50, 75, 100}

// PageView is one page navigation within a session. time_on_page_ms stays
// null until the next page view or session end back-fills it.
type PageView struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	SessionID           string    `gorm:"size:64;index;not null" json:"session_id"`
	PagePath            string    `gorm:"index;not null" json:"page_path"`
	Timestamp           time.Time `gorm:"index;not null" json:"timestamp"`
	TimeOnPageMs        *int64    `json:"time_on_page_ms"`
	MaxScrollPercentage int       `gorm:"not null;default:0" json:"max_scroll_percentage"`
	EntryPage           bool      `gorm:"not null;default:false" json:"entry_page"`
	ExitPage            bool      `gorm:"not null;default:false" json:"exit_page"`
	ViewportWidth       int       `json:"viewport_width"`
	ViewportHeight      int       `json:"viewport_height"`
	TTFB                *float64  `gorm:"column:ttfb" json:"ttfb"`
	FCP                 *float64  `gorm:"column:fcp" json:"fcp"`
	LCP                 *float64  `gorm:"column:lcp" json:"lcp"`
	CLS                 *float64  `gorm:"column:cls" json:"cls"`
	FID                 *float64  `gorm:"column:fid" json:"fid"`
	CreatedAt           time.Time `json:"created_at"`
}

func (PageView) TableName() string {
	return "pageviews"
}

// Event is an append-only interaction record. EventData holds the
// type-specific payload as JSON so aggregation can json_extract from it.
type Event struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID string    `gorm:"size:64;index;not null" json:"session_id"`
	PagePath  string    `json:"page_path"`
	EventType string    `gorm:"index;not null" json:"event_type"`
	EventName string    `gorm:"index" json:"event_name"`
	EventData string    `json:"event_data"`
	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
	CreatedAt time.Time `json:"created_at"`
}

func (Event) TableName() string {
	return "events"
}

// TrackedEvent is the wire shape of one tracking call, single or batched.
// Pointer fields distinguish "absent" from zero for validation.
type TrackedEvent struct {
	Event          string   `json:"event"`
	Path           string   `json:"path"`
	URL            string   `json:"url"`
	ScrollDepth    *int     `json:"scroll_depth"`
	Element        string   `json:"element"`
	Href           string   `json:"href"`
	X              *int     `json:"x"`
	Y              *int     `json:"y"`
	ViewportWidth  int      `json:"viewport_width"`
	ViewportHeight int      `json:"viewport_height"`
	SectionID      string   `json:"section_id"`
	VisibleMs      *int64   `json:"visible_ms"`
	VisiblePercent *float64 `json:"visible_percent"`
	TimeSpentMs    *int64   `json:"time_spent_ms"`
	TTFB           *float64 `json:"ttfb"`
	FCP            *float64 `json:"fcp"`
	LCP            *float64 `json:"lcp"`
	CLS            *float64 `json:"cls"`
	FID            *float64 `json:"fid"`
}

// IsPageView reports whether this event should create a pageview row.
func (e TrackedEvent) IsPageView() bool {
	return e.Event == EventTypePageView
}
