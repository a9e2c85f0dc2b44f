// Package format holds presentation helpers for dates, deadlines and priorities.
package format

import (
	"fmt"
	"math"
	"time"
)

// Now returns the current time. Tests replace it to pin "today".
var Now = time.Now

const (
	dateLayout     = "Jan 2, 2006"
	longDateLayout = "January 2, 2006"
	dateTimeLayout = "Jan 2, 2006, 03:04 PM"

	// DateInput is the layout accepted for deadlines and cutoff dates.
	DateInput = "2006-01-02"
)

// ParseDate parses a YYYY-MM-DD string, falling back to RFC 3339.
// An empty string yields a nil time.
func ParseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.ParseInLocation(DateInput, s, time.Local); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return &t, nil
}

func withUser(s, userName string) string {
	if userName == "" {
		return s
	}
	return fmt.Sprintf("%s (%s)", s, userName)
}

// FormatDate renders t as "Jan 15, 2025", optionally followed by "(userName)".
func FormatDate(t *time.Time, userName string) string {
	if t == nil || t.IsZero() {
		return "N/A"
	}
	return withUser(t.Local().Format(dateLayout), userName)
}

// FormatDateTime renders t as "Jan 15, 2025, 02:30 PM".
func FormatDateTime(t *time.Time, userName string) string {
	if t == nil || t.IsZero() {
		return "N/A"
	}
	return withUser(t.Local().Format(dateTimeLayout), userName)
}

// FormatDeadline renders a deadline as "Jan 15, 2025". Deadlines are
// calendar dates, so the day is read from d's own fields whatever its zone.
func FormatDeadline(d *time.Time) string {
	if d == nil || d.IsZero() {
		return "N/A"
	}
	return d.Format(dateLayout)
}

// LongDate renders t as "January 15, 2025".
func LongDate(t time.Time) string {
	return t.Local().Format(longDateLayout)
}

// calendarDay returns local midnight of the calendar date carried in t's
// own fields. A Postgres DATE arrives as midnight UTC and must keep its day.
func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

// today returns local midnight of the current day.
func today() time.Time {
	return calendarDay(Now().Local())
}

// IsOverdue reports whether the deadline falls on a day before today.
func IsOverdue(deadline *time.Time) bool {
	if deadline == nil {
		return false
	}
	return calendarDay(*deadline).Before(today())
}

// DaysUntilDeadline returns the number of whole days from today to the
// deadline, negative when overdue. It returns nil when no deadline is set.
func DaysUntilDeadline(deadline *time.Time) *int {
	if deadline == nil {
		return nil
	}
	d := calendarDay(*deadline).Sub(today())
	// Round to absorb DST shifts between the two midnights.
	days := int(math.Round(d.Hours() / 24))
	return &days
}

// RelativeTime describes how long ago t was ("just now", "5m ago", "3h ago",
// "2d ago"), falling back to FormatDate after a week.
func RelativeTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "N/A"
	}
	diff := Now().Sub(*t)
	mins := int(diff.Minutes())
	hours := int(diff.Hours())
	days := hours / 24

	switch {
	case mins < 1:
		return "just now"
	case mins < 60:
		return fmt.Sprintf("%dm ago", mins)
	case hours < 24:
		return fmt.Sprintf("%dh ago", hours)
	case days < 7:
		return fmt.Sprintf("%dd ago", days)
	default:
		return FormatDate(t, "")
	}
}
