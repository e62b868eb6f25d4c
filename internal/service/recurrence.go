package service

import (
	"fmt"
	"time"

	appErrors "github.com/tutorbase/tutorbase-api/pkg/errors"
)

// RecurrenceUnit is the calendar step of a recurrence rule.
type RecurrenceUnit string

const (
	RecurrenceDay   RecurrenceUnit = "day"
	RecurrenceWeek  RecurrenceUnit = "week"
	RecurrenceMonth RecurrenceUnit = "month"
)

const dateLayout = "2006-01-02"

// ExpandDates produces the sequence of calendar dates for a recurring batch.
// Date i (0-indexed) is startDate advanced by i*frequency units; month steps
// use native date arithmetic, so day-of-month may shift at month end.
func ExpandDates(startDate string, unit RecurrenceUnit, frequency, count int) ([]string, error) {
	start, err := time.Parse(dateLayout, startDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid start date %q", startDate))
	}
	if frequency < 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "recurrence frequency must be positive")
	}
	if count < 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "recurrence count must be positive")
	}

	dates := make([]string, 0, count)
	for i := 0; i < count; i++ {
		step := i * frequency
		var next time.Time
		switch unit {
		case RecurrenceDay:
			next = start.AddDate(0, 0, step)
		case RecurrenceWeek:
			next = start.AddDate(0, 0, step*7)
		case RecurrenceMonth:
			next = start.AddDate(0, step, 0)
		default:
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid recurrence unit %q", unit))
		}
		dates = append(dates, next.Format(dateLayout))
	}
	return dates, nil
}
