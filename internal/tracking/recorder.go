package tracking

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// Recorder persists page views and events for resolved sessions. Each call
// applies its session update and row insert inside one write transaction.
type Recorder struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRecorder(db *gorm.DB, logger *slog.Logger) *Recorder {
	return &Recorder{db: db, logger: logger}
}

// Record validates the event, confirms its session exists, and dispatches to
// the event-type-specific recording path.
func (r *Recorder) Record(sessionID string, ev TrackedEvent, now time.Time) error {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if err := Validate(ev); err != nil {
		return err
	}

	exists, err := r.sessionExists(sessionID)
	if err != nil {
		return fmt.Errorf("checking session %s: %w", sessionID, err)
	}
	if !exists {
		return &InvalidSessionError{SessionID: sessionID}
	}

	switch ev.Event {
	case EventTypePageView:
		return r.RecordPageView(sessionID, ev, now)
	case EventTypeSessionEnd:
		return r.EndSession(sessionID, ev.TimeSpentMs, now)
	default:
		return r.recordEvent(sessionID, ev, now)
	}
}

// Validate enforces the per-type required fields. A failing event is never
// partially recorded; callers can also run it up front so a bad payload
// leaves no trace at all.
func Validate(ev TrackedEvent) error {
	switch ev.Event {
	case "":
		return &MissingParamError{Params: []string{"event"}}
	case EventTypePageView:
		if ev.Path == "" {
			return &MissingParamError{Params: []string{"path"}}
		}
	case EventTypeScroll:
		if ev.ScrollDepth == nil {
			return &MissingParamError{Params: []string{"scroll_depth"}}
		}
	case EventTypeClick:
		if ev.Element == "" || ev.Href == "" {
			return &MissingParamError{Params: []string{"element", "href"}}
		}
	}
	return nil
}

func (r *Recorder) sessionExists(sessionID string) (bool, error) {
	var count int64
	err := r.db.Table("sessions").Where("session_id = ?", sessionID).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// RecordPageView back-fills the previous page view's time_on_page and clears
// its exit flag, inserts the new row as the current exit page, and refreshes
// the session's end_time and total_time_ms.
func (r *Recorder) RecordPageView(sessionID string, ev TrackedEvent, ts time.Time) error {
	err := sqlite.PerformWrite(r.logger, r.db, func(tx *gorm.DB) error {
		stamped := tx.Exec(`
			UPDATE pageviews
			SET time_on_page_ms = CAST((julianday(?) - julianday(timestamp)) * 86400000.0 AS INTEGER),
			    exit_page = 0
			WHERE id = (
				SELECT id FROM pageviews
				WHERE session_id = ?
				ORDER BY timestamp DESC, id DESC
				LIMIT 1
			)
		`, ts, sessionID)
		if stamped.Error != nil {
			return fmt.Errorf("stamping previous page view: %w", stamped.Error)
		}

		pv := PageView{
			SessionID:      sessionID,
			PagePath:       ev.Path,
			Timestamp:      ts,
			EntryPage:      stamped.RowsAffected == 0,
			ExitPage:       true,
			ViewportWidth:  ev.ViewportWidth,
			ViewportHeight: ev.ViewportHeight,
		}
		if err := tx.Create(&pv).Error; err != nil {
			return fmt.Errorf("inserting page view: %w", err)
		}

		return touchSession(tx, sessionID, ts)
	})
	if err != nil {
		r.logger.Error("Failed to record page view",
			slog.String("session_id", sessionID),
			slog.String("path", ev.Path),
			slog.Any("error", err))
	}
	return err
}

// recordEvent appends the event row and applies its side effects: scroll
// events lift the latest page view's max scroll, performance samples
// back-fill null metric columns, and engagement signals clear the bounce flag.
func (r *Recorder) recordEvent(sessionID string, ev TrackedEvent, ts time.Time) error {
	payload, err := eventPayload(ev)
	if err != nil {
		return fmt.Errorf("encoding event payload: %w", err)
	}

	eventName := ev.Event
	if ev.SectionID != "" {
		eventName = ev.SectionID
	}

	err = sqlite.PerformWrite(r.logger, r.db, func(tx *gorm.DB) error {
		row := Event{
			SessionID: sessionID,
			PagePath:  ev.Path,
			EventType: ev.Event,
			EventName: eventName,
			EventData: payload,
			Timestamp: ts,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("inserting event: %w", err)
		}

		switch ev.Event {
		case EventTypeScroll:
			if err := applyScrollDepth(tx, sessionID, ev.Path, *ev.ScrollDepth); err != nil {
				return err
			}
		case EventTypePerformance:
			if err := backfillPerformance(tx, sessionID, ev); err != nil {
				return err
			}
		case EventTypeUserEngaged, EventTypeConversion:
			if err := tx.Exec(`UPDATE sessions SET is_bounce = 0, updated_at = ? WHERE session_id = ?`,
				ts, sessionID).Error; err != nil {
				return fmt.Errorf("clearing bounce flag: %w", err)
			}
		}

		return touchSession(tx, sessionID, ts)
	})
	if err != nil {
		r.logger.Error("Failed to record event",
			slog.String("session_id", sessionID),
			slog.String("event_type", ev.Event),
			slog.Any("error", err))
	}
	return err
}

// EndSession stamps end_time and, when the client reports a final time-spent
// value, applies it to the most recent page view.
func (r *Recorder) EndSession(sessionID string, timeSpentMs *int64, ts time.Time) error {
	err := sqlite.PerformWrite(r.logger, r.db, func(tx *gorm.DB) error {
		if timeSpentMs != nil {
			if err := tx.Exec(`
				UPDATE pageviews
				SET time_on_page_ms = ?
				WHERE id = (
					SELECT id FROM pageviews
					WHERE session_id = ?
					ORDER BY timestamp DESC, id DESC
					LIMIT 1
				)
			`, *timeSpentMs, sessionID).Error; err != nil {
				return fmt.Errorf("stamping final page view: %w", err)
			}
		}
		return touchSession(tx, sessionID, ts)
	})
	if err != nil {
		r.logger.Error("Failed to end session",
			slog.String("session_id", sessionID),
			slog.Any("error", err))
	}
	return err
}

// touchSession refreshes the session's end_time and recomputes
// total_time_ms from its start_time.
func touchSession(tx *gorm.DB, sessionID string, ts time.Time) error {
	err := tx.Exec(`
		UPDATE sessions
		SET end_time = ?,
		    total_time_ms = CAST((julianday(?) - julianday(start_time)) * 86400000.0 AS INTEGER),
		    updated_at = ?
		WHERE session_id = ?
	`, ts, ts, ts, sessionID).Error
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	return nil
}

// applyScrollDepth lifts the latest page view's max scroll, preferring the
// page view matching the event's path when one is given.
func applyScrollDepth(tx *gorm.DB, sessionID, path string, depth int) error {
	query := `
		UPDATE pageviews
		SET max_scroll_percentage = MAX(max_scroll_percentage, ?)
		WHERE id = (
			SELECT id FROM pageviews
			WHERE session_id = ?
			ORDER BY timestamp DESC, id DESC
			LIMIT 1
		)
	`
	args := []any{depth, sessionID}
	if path != "" {
		query = `
			UPDATE pageviews
			SET max_scroll_percentage = MAX(max_scroll_percentage, ?)
			WHERE id = (
				SELECT id FROM pageviews
				WHERE session_id = ? AND page_path = ?
				ORDER BY timestamp DESC, id DESC
				LIMIT 1
			)
		`
		args = []any{depth, sessionID, path}
	}
	if err := tx.Exec(query, args...).Error; err != nil {
		return fmt.Errorf("applying scroll depth: %w", err)
	}
	return nil
}

// backfillPerformance only fills columns that are still null, so partial
// samples accumulate onto the same page view instead of clobbering each other.
func backfillPerformance(tx *gorm.DB, sessionID string, ev TrackedEvent) error {
	err := tx.Exec(`
		UPDATE pageviews
		SET ttfb = COALESCE(ttfb, ?),
		    fcp = COALESCE(fcp, ?),
		    lcp = COALESCE(lcp, ?),
		    cls = COALESCE(cls, ?),
		    fid = COALESCE(fid, ?)
		WHERE id = (
			SELECT id FROM pageviews
			WHERE session_id = ?
			ORDER BY timestamp DESC, id DESC
			LIMIT 1
		)
	`, ev.TTFB, ev.FCP, ev.LCP, ev.CLS, ev.FID, sessionID).Error
	if err != nil {
		return fmt.Errorf("backfilling performance metrics: %w", err)
	}
	return nil
}

// eventPayload builds the type-specific JSON stored in event_data.
func eventPayload(ev TrackedEvent) (string, error) {
	data := map[string]any{}

	switch ev.Event {
	case EventTypeClick:
		data["element"] = ev.Element
		data["href"] = ev.Href
		if ev.X != nil {
			data["x"] = *ev.X
		}
		if ev.Y != nil {
			data["y"] = *ev.Y
		}
		if ev.ViewportWidth > 0 {
			data["viewport_width"] = ev.ViewportWidth
		}
		if ev.ViewportHeight > 0 {
			data["viewport_height"] = ev.ViewportHeight
		}
	case EventTypeScroll:
		data["depth"] = *ev.ScrollDepth
	case EventTypeSectionView, EventTypeSectionEnter, EventTypeSectionExit:
		data["section_id"] = ev.SectionID
		if ev.VisibleMs != nil {
			data["visible_ms"] = *ev.VisibleMs
		}
		if ev.VisiblePercent != nil {
			data["visible_percent"] = *ev.VisiblePercent
		}
	case EventTypePerformance:
		for key, value := range map[string]*float64{
			"ttfb": ev.TTFB, "fcp": ev.FCP, "lcp": ev.LCP, "cls": ev.CLS, "fid": ev.FID,
		} {
			if value != nil {
				data[key] = *value
			}
		}
	case EventTypeSessionEnd, EventTypeBounce:
		if ev.TimeSpentMs != nil {
			data["time_spent_ms"] = *ev.TimeSpentMs
		}
	}

	if len(data) == 0 {
		return "", nil
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}
