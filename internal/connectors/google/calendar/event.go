package calendar

import (
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/tripsync/tripctx/internal/core/domain"
)

const dateLayout = "2006-01-02"

// EventToCalendarEvent converts a Google Calendar event. It reports false for
// cancelled events and events without a usable start time.
func EventToCalendarEvent(event *calendar.Event) (domain.CalendarEvent, bool) {
	if !shouldInclude(event) {
		return domain.CalendarEvent{}, false
	}

	start, allDay, ok := parseEventTime(event.Start)
	if !ok {
		return domain.CalendarEvent{}, false
	}
	end, _, ok := parseEventTime(event.End)
	if !ok {
		end = start
	}

	return domain.CalendarEvent{
		ID:       event.Id,
		Title:    event.Summary,
		Start:    start,
		End:      end,
		AllDay:   allDay,
		Location: event.Location,
	}, true
}

// parseEventTime reads DateTime, falling back to the all-day Date.
func parseEventTime(t *calendar.EventDateTime) (at time.Time, allDay, ok bool) {
	if t == nil {
		return time.Time{}, false, false
	}
	if t.DateTime != "" {
		parsed, err := time.Parse(time.RFC3339, t.DateTime)
		return parsed, false, err == nil
	}
	if t.Date != "" {
		parsed, err := time.Parse(dateLayout, t.Date)
		return parsed, true, err == nil
	}
	return time.Time{}, false, false
}

func shouldInclude(event *calendar.Event) bool {
	return event != nil && event.Id != "" && event.Status != "cancelled"
}
