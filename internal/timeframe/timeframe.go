// Package timeframe provides time-window selection and arithmetic for the
// metrics aggregation queries. Windows are either named relative ranges
// ("24h", "7d", "30d") or explicit start/end instants supplied by the caller
// in epoch milliseconds. All windows are stored in UTC.
package timeframe

import (
	"fmt"
	"time"
)

// RangeLabel represents the available named time range options
type RangeLabel string

const (
	RangeLabelLast24Hours RangeLabel = "24h"
	RangeLabelLast7Days   RangeLabel = "7d"
	RangeLabelLast30Days  RangeLabel = "30d"
	RangeLabelCustom      RangeLabel = "custom"
)

// TimeFrame represents a period between two points in time
type TimeFrame struct {
	From  time.Time
	To    time.Time
	Label RangeLabel
}

// TimeProvider abstracts the clock so tests can pin "now".
type TimeProvider interface {
	Now() time.Time
}

// DefaultTimeProvider uses the system clock in UTC.
type DefaultTimeProvider struct{}

// Now returns the current time in UTC.
func (p *DefaultTimeProvider) Now() time.Time {
	return time.Now().UTC()
}

// Parser resolves range selectors into concrete TimeFrames.
type Parser struct {
	timeProvider TimeProvider
}

// NewParser creates a Parser. Pass a TimeProvider to pin the clock in tests;
// omit it for the system clock.
func NewParser(timeProvider ...TimeProvider) *Parser {
	var provider TimeProvider = &DefaultTimeProvider{}
	if len(timeProvider) > 0 && timeProvider[0] != nil {
		provider = timeProvider[0]
	}
	return &Parser{timeProvider: provider}
}

// ParseParams carries the raw selector values from the query interface.
// StartMs/EndMs are epoch milliseconds; both must be set for a custom window.
type ParseParams struct {
	Range   string
	StartMs int64
	EndMs   int64
}

// Parse resolves the selector into a TimeFrame. An explicit start/end pair
// wins over the named range; an empty selector defaults to the last 24 hours.
func (p *Parser) Parse(params ParseParams) (*TimeFrame, error) {
	if params.StartMs > 0 || params.EndMs > 0 {
		return p.parseCustom(params.StartMs, params.EndMs)
	}

	now := p.timeProvider.Now()
	label := RangeLabel(params.Range)
	if params.Range == "" {
		label = RangeLabelLast24Hours
	}

	switch label {
	case RangeLabelLast24Hours:
		return &TimeFrame{From: now.Add(-24 * time.Hour), To: now, Label: label}, nil
	case RangeLabelLast7Days:
		return &TimeFrame{From: now.AddDate(0, 0, -7), To: now, Label: label}, nil
	case RangeLabelLast30Days:
		return &TimeFrame{From: now.AddDate(0, 0, -30), To: now, Label: label}, nil
	default:
		return nil, fmt.Errorf("unknown time range %q", params.Range)
	}
}

func (p *Parser) parseCustom(startMs, endMs int64) (*TimeFrame, error) {
	if startMs <= 0 || endMs <= 0 {
		return nil, fmt.Errorf("custom time range requires both startTime and endTime")
	}

	from := time.UnixMilli(startMs).UTC()
	to := time.UnixMilli(endMs).UTC()
	if !from.Before(to) {
		return nil, fmt.Errorf("startTime must be before endTime")
	}

	return &TimeFrame{From: from, To: to, Label: RangeLabelCustom}, nil
}

// Duration returns the window length.
func (tf *TimeFrame) Duration() time.Duration {
	return tf.To.Sub(tf.From)
}

// Contains reports whether t falls inside the window (inclusive bounds).
func (tf *TimeFrame) Contains(t time.Time) bool {
	return !t.Before(tf.From) && !t.After(tf.To)
}
