package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DateLayout is the layout of date-only values.
	DateLayout = "2006-01-02"
	// DateTimeLayout is the layout of dates carrying a time of day.
	DateTimeLayout = "2006-01-02T15:04"
)

// Schedule labels suggested by the UI. Any other label is accepted.
const (
	ScheduleScreening    = "screening"
	ScheduleAnnouncement = "announcement"
	ScheduleOther        = "other"
)

// Schedule is a dated event in a company's hiring process, such as a
// document deadline or a coding test.
type Schedule struct {
	ID          string    `json:"id"`
	CompanyID   string    `json:"companyId"`
	Title       string    `json:"title"`
	Date        string    `json:"date"`
	Description string    `json:"description,omitempty"`
	Type        string    `json:"type"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ScheduleInput carries the fields used to create a schedule. Time is
// optional and formatted as HH:MM.
type ScheduleInput struct {
	Title       string `json:"title"`
	Date        string `json:"date"`
	Time        string `json:"time,omitempty"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
}

// DateString combines the date and the optional time of day.
func (in ScheduleInput) DateString() string {
	if in.Time == "" {
		return in.Date
	}
	return in.Date + "T" + in.Time
}

// Validate requires a title and a parseable date.
func (in ScheduleInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("schedule title is required")
	}
	if in.Date == "" {
		return fmt.Errorf("schedule date is required")
	}
	if _, err := ParseScheduleDate(in.DateString(), time.UTC); err != nil {
		return err
	}
	return nil
}

// ParseScheduleDate parses a date with an optional time of day in loc.
func ParseScheduleDate(value string, loc *time.Location) (time.Time, error) {
	layout := DateLayout
	if strings.Contains(value, "T") {
		layout = DateTimeLayout
	}
	t, err := time.ParseInLocation(layout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid schedule date %q: %w", value, err)
	}
	return t, nil
}

// HasTime reports whether the schedule was given a time of day.
func (s Schedule) HasTime() bool {
	return strings.Contains(s.Date, "T")
}

// GroupSchedules splits schedules into upcoming (today or later) and past
// events relative to now, preserving order. Schedules with unparseable dates
// belong to neither group.
func GroupSchedules(schedules []Schedule, now time.Time) (upcoming, past []Schedule) {
	today := midnight(now)
	for _, s := range schedules {
		when, err := ParseScheduleDate(s.Date, now.Location())
		if err != nil {
			continue
		}
		if when.Before(today) {
			past = append(past, s)
		} else {
			upcoming = append(upcoming, s)
		}
	}
	return upcoming, past
}

// DDay renders the distance in days between now and the schedule date as
// "D-Day", "D-n" (in the future) or "D+n" (in the past).
func DDay(date string, now time.Time) (string, error) {
	when, err := ParseScheduleDate(date, now.Location())
	if err != nil {
		return "", err
	}
	days := calendarDays(midnight(now), midnight(when))
	switch {
	case days == 0:
		return "D-Day", nil
	case days > 0:
		return fmt.Sprintf("D-%d", days), nil
	default:
		return fmt.Sprintf("D+%d", -days), nil
	}
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// calendarDays counts whole days from a to b, ignoring DST shifts.
func calendarDays(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}
