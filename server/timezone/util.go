// Package timezone resolves the reporting timezone and the calendar
// boundaries usage statistics are counted from.
package timezone

import (
	"fmt"
	"time"
)

// UTC is the default reporting timezone.
var UTC = time.UTC

// ParseTimezone parses an IANA timezone identifier (e.g., "America/Sao_Paulo").
// If the timezone is invalid, returns UTC and an error.
func ParseTimezone(tz string) (*time.Location, error) {
	if tz == "" || tz == "UTC" {
		return UTC, nil
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return UTC, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}

	return loc, nil
}

// IsValidTimezone checks if a timezone identifier is valid.
func IsValidTimezone(tz string) bool {
	_, err := ParseTimezone(tz)
	return err == nil
}

// StartOfDay returns midnight of t's day in tz.
func StartOfDay(t time.Time, tz *time.Location) time.Time {
	if tz == nil {
		tz = UTC
	}
	local := t.In(tz)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, tz)
}

// StartOfWeek returns midnight of the Monday on or before t in tz.
func StartOfWeek(t time.Time, tz *time.Location) time.Time {
	day := StartOfDay(t, tz)
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return day.AddDate(0, 0, -(weekday - 1))
}

// StartOfMonth returns midnight of the first day of t's month in tz.
func StartOfMonth(t time.Time, tz *time.Location) time.Time {
	day := StartOfDay(t, tz)
	return day.AddDate(0, 0, -(day.Day() - 1))
}

// NowInTimezone returns the current time in the given timezone.
func NowInTimezone(tz *time.Location) time.Time {
	if tz == nil {
		tz = UTC
	}
	return time.Now().In(tz)
}
