// Package timeslot provides wall-clock interval arithmetic for the scheduling
// engine. Times are HH:MM strings converted to minutes since midnight;
// intervals are half-open, so a slot ending at 10:00 does not collide with one
// starting at 10:00.
package timeslot

import (
	"fmt"
	"strings"

	appErrors "github.com/tutorbase/tutorbase-api/pkg/errors"
)

// Minutes parses an HH:MM 24-hour time into minutes since midnight.
func Minutes(value string) (int, error) {
	if len(value) != 5 || value[2] != ':' {
		return 0, appErrors.Clone(appErrors.ErrInvalidTimeFormat, fmt.Sprintf("invalid time %q", value))
	}
	hour, ok1 := twoDigits(value[:2])
	minute, ok2 := twoDigits(value[3:])
	if !ok1 || !ok2 || hour > 23 || minute > 59 {
		return 0, appErrors.Clone(appErrors.ErrInvalidTimeFormat, fmt.Sprintf("invalid time %q", value))
	}
	return hour*60 + minute, nil
}

// Overlaps reports whether two half-open minute intervals intersect.
func Overlaps(aStart, aEnd, bStart, bEnd int) bool {
	lo := aStart
	if bStart > lo {
		lo = bStart
	}
	hi := aEnd
	if bEnd < hi {
		hi = bEnd
	}
	return lo < hi
}

// ParseInterval converts a start/end pair into minutes, requiring start < end.
func ParseInterval(start, end string) (int, int, error) {
	startMin, err := Minutes(start)
	if err != nil {
		return 0, 0, err
	}
	endMin, err := Minutes(end)
	if err != nil {
		return 0, 0, err
	}
	if endMin <= startMin {
		return 0, 0, appErrors.Clone(appErrors.ErrInvalidTimeFormat, fmt.Sprintf("interval %s-%s must end after it starts", start, end))
	}
	return startMin, endMin, nil
}

// ParseSpan parses a session time span such as "10:00 - 11:00". The dash may
// be surrounded by any amount of whitespace, including none.
func ParseSpan(span string) (int, int, error) {
	parts := strings.SplitN(span, "-", 2)
	if len(parts) != 2 {
		return 0, 0, appErrors.Clone(appErrors.ErrInvalidTimeFormat, fmt.Sprintf("invalid time span %q", span))
	}
	return ParseInterval(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
}

// FormatSpan renders the canonical span form used on sessions.
func FormatSpan(start, end string) string {
	return start + " - " + end
}

func twoDigits(s string) (int, bool) {
	if s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, false
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), true
}
