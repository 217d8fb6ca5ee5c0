package displaytime

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

const (
	calendarBaseURL = "https://calendar.google.com/calendar/render"
	calendarLayout  = "20060102T150405Z"

	// DefaultCalendarDuration is used when an event has no end time.
	DefaultCalendarDuration = 30 * time.Minute
)

// ErrInvalidEvent is returned by CalendarLink for events that cannot be
// placed on a calendar.
var ErrInvalidEvent = errors.New("invalid calendar event")

// CalendarEvent describes an "add to calendar" target.
type CalendarEvent struct {
	Title       string
	Start       time.Time
	End         *time.Time
	Description string
	Location    string
}

// CalendarLink builds a Google Calendar template URL for ev.
func CalendarLink(ev CalendarEvent) (string, error) {
	if ev.Start.IsZero() {
		return "", fmt.Errorf("%w: missing start time", ErrInvalidEvent)
	}
	end := ev.Start.Add(DefaultCalendarDuration)
	if ev.End != nil {
		end = *ev.End
	}
	if !end.After(ev.Start) {
		return "", fmt.Errorf("%w: end must be after start", ErrInvalidEvent)
	}

	q := url.Values{}
	q.Set("action", "TEMPLATE")
	q.Set("text", ev.Title)
	q.Set("dates", ev.Start.UTC().Format(calendarLayout)+"/"+end.UTC().Format(calendarLayout))
	if ev.Description != "" {
		q.Set("details", ev.Description)
	}
	if ev.Location != "" {
		q.Set("location", ev.Location)
	}
	q.Set("ctz", ZoneName)
	return calendarBaseURL + "?" + q.Encode(), nil
}
