// Package displaytime converts between absolute instants and the portal's
// display timezone (Pacific time, DST aware).
package displaytime

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // embed the zone database so conversions never depend on the host
)

const (
	// ZoneName is the IANA zone all wall-clock values are rendered in.
	ZoneName = "America/Los_Angeles"
	// InputLayout is the minute-precision wall-clock format used for form
	// style input (no zone designator).
	InputLayout = "2006-01-02T15:04"
)

var zone = mustLoadZone()

func mustLoadZone() *time.Location {
	loc, err := time.LoadLocation(ZoneName)
	if err != nil {
		panic(fmt.Sprintf("displaytime: load %s: %v", ZoneName, err))
	}
	return loc
}

// Zone returns the display location.
func Zone() *time.Location { return zone }

// DisplayParts is an instant broken down in the display zone.
type DisplayParts struct {
	Weekday  string // "Mon"
	Month    string // "Jan"
	Day      int
	Hour12   int // 1..12
	Minute   int
	Meridiem string // "AM" or "PM"
	Zone     string // "PST" or "PDT"
}

// ToDisplayParts breaks t down in the display zone regardless of the host's
// local zone.
func ToDisplayParts(t time.Time) DisplayParts {
	lt := t.In(zone)
	h := lt.Hour() % 12
	if h == 0 {
		h = 12
	}
	mer := "AM"
	if lt.Hour() >= 12 {
		mer = "PM"
	}
	abbr, _ := lt.Zone()
	return DisplayParts{
		Weekday:  lt.Format("Mon"),
		Month:    lt.Format("Jan"),
		Day:      lt.Day(),
		Hour12:   h,
		Minute:   lt.Minute(),
		Meridiem: mer,
		Zone:     abbr,
	}
}

// Clock renders the time of day, e.g. "3:05 PM".
func (p DisplayParts) Clock() string {
	return fmt.Sprintf("%d:%02d %s", p.Hour12, p.Minute, p.Meridiem)
}

// Format renders t as "Fri, Oct 16, 3:00 PM PT".
func Format(t time.Time) string {
	p := ToDisplayParts(t)
	return fmt.Sprintf("%s, %s %d, %s PT", p.Weekday, p.Month, p.Day, p.Clock())
}

// FormatRange renders a start and optional end. An end on the same display
// day only repeats the clock.
func FormatRange(start time.Time, end *time.Time) string {
	if end == nil {
		return Format(start)
	}
	s, e := start.In(zone), end.In(zone)
	if s.YearDay() == e.YearDay() && s.Year() == e.Year() {
		p := ToDisplayParts(start)
		return fmt.Sprintf("%s, %s %d, %s - %s PT", p.Weekday, p.Month, p.Day, p.Clock(), ToDisplayParts(*end).Clock())
	}
	return strings.TrimSuffix(Format(start), " PT") + " - " + Format(*end)
}

// ToInputValue renders t as a display-zone wall clock in InputLayout.
func ToInputValue(t time.Time) string {
	return t.In(zone).Format(InputLayout)
}

// FromInputValue parses a display-zone wall clock and returns the UTC
// instant. Wall clocks skipped by a spring-forward transition are rejected.
func FromInputValue(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	t, err := time.ParseInLocation(InputLayout, s, zone)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date/time %q: want YYYY-MM-DDTHH:MM", s)
	}
	if t.Format(InputLayout) != s {
		return time.Time{}, fmt.Errorf("%s does not exist in %s", s, ZoneName)
	}
	return t.UTC(), nil
}

// Status is the lifecycle label of a meeting relative to now.
type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// DefaultStatusDuration is assumed for meetings without an end time.
const DefaultStatusDuration = time.Hour

// StatusAt labels a meeting. Display only; it never gates signups.
func StatusAt(start time.Time, end *time.Time, now time.Time) Status {
	if now.Before(start) {
		return StatusUpcoming
	}
	e := start.Add(DefaultStatusDuration)
	if end != nil {
		e = *end
	}
	if now.After(e) {
		return StatusCompleted
	}
	return StatusActive
}
