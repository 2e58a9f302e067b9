package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO calendar date layout used for reference dates and date columns.
const DateLayout = "2006-01-02"

var dateLayouts = []string{
	DateLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
}

// ParseDate parses an ISO date (optionally with a time part) into a calendar date.
// Any time-of-day component is discarded.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse date %q: want %s", s, DateLayout)
}

// DateOf returns the calendar date of t as UTC midnight. The date is taken from
// t's own wall clock, so no timezone conversion happens.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a calendar date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
