// Package sessions owns the visitor session model and the resolver that
// decides, for each inbound tracking request, which session it belongs to.
package sessions

import (
	"time"
)

// Session represents one visitor session. The token (SessionID) is opaque:
// client-supplied or server-minted, with the server as the final authority.
type Session struct {
	SessionID   string     `gorm:"primaryKey;size:64" json:"session_id"`
	StartTime   time.Time  `gorm:"index;not null" json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	TotalTimeMs int64      `gorm:"not null;default:0" json:"total_time_ms"`
	PageCount   int        `gorm:"not null;default:1" json:"page_count"`
	IsBounce    bool       `gorm:"not null;default:true" json:"is_bounce"`
	IsReturning bool       `gorm:"not null;default:false" json:"is_returning"`
	Device      string     `gorm:"index" json:"device"`
	Browser     string     `json:"browser"`
	OS          string     `json:"os"`
	Country     string     `gorm:"index" json:"country"`
	City        string     `gorm:"index" json:"city"`
	Latitude    *float64   `gorm:"index:idx_sessions_coords" json:"latitude"`
	Longitude   *float64   `gorm:"index:idx_sessions_coords" json:"longitude"`
	Referrer    string     `json:"referrer"`
	UTMSource   string     `json:"utm_source"`
	UTMMedium   string     `json:"utm_medium"`
	UTMCampaign string     `json:"utm_campaign"`
	UTMTerm     string     `json:"utm_term"`
	UTMContent  string     `json:"utm_content"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName pins the table name used by the aggregation SQL.
func (Session) TableName() string {
	return "sessions"
}

// LastSeen returns the session's most recent activity instant.
func (s *Session) LastSeen() time.Time {
	if s.EndTime != nil {
		return *s.EndTime
	}
	return s.StartTime
}
