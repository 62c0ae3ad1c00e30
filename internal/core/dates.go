package core

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the business-date format used by transactions.
const DateLayout = "2006-01-02"

// TodayLocalDateString returns today's date in the local timezone as YYYY-MM-DD.
func TodayLocalDateString() string {
	return FormatLocalDateString(time.Now())
}

// FormatLocalDateString formats t in the local timezone as YYYY-MM-DD.
func FormatLocalDateString(t time.Time) string {
	return t.In(time.Local).Format(DateLayout)
}

// ParseLocalDate parses a YYYY-MM-DD string as midnight in the local timezone.
func ParseLocalDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	t, err := time.ParseInLocation(DateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// IsDateInMonth reports whether the YYYY-MM-DD string falls in the given year and month.
func IsDateInMonth(s string, year, month int) bool {
	t, err := ParseLocalDate(s)
	if err != nil {
		return false
	}
	return t.Year() == year && int(t.Month()) == month
}

// IsDateInYear reports whether the YYYY-MM-DD string falls in the given year.
func IsDateInYear(s string, year int) bool {
	t, err := ParseLocalDate(s)
	if err != nil {
		return false
	}
	return t.Year() == year
}

// CompareDateStrings orders two YYYY-MM-DD strings: -1, 0 or 1.
func CompareDateStrings(a, b string) int {
	return strings.Compare(a, b)
}
