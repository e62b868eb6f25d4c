package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandDatesDaily(t *testing.T) {
	dates, err := ExpandDates("2026-09-07", RecurrenceDay, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-09-07", "2026-09-08", "2026-09-09"}, dates)
}

func TestExpandDatesEveryOtherDay(t *testing.T) {
	dates, err := ExpandDates("2026-09-28", RecurrenceDay, 2, 3)
	require.NoError(t, err)
	// Crosses the month boundary.
	assert.Equal(t, []string{"2026-09-28", "2026-09-30", "2026-10-02"}, dates)
}

func TestExpandDatesWeekly(t *testing.T) {
	dates, err := ExpandDates("2026-09-07", RecurrenceWeek, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-09-07", "2026-09-14", "2026-09-21", "2026-09-28"}, dates)
}

func TestExpandDatesBiweekly(t *testing.T) {
	dates, err := ExpandDates("2026-09-07", RecurrenceWeek, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-09-07", "2026-09-21", "2026-10-05"}, dates)
}

func TestExpandDatesMonthlyNormalizesShortMonths(t *testing.T) {
	dates, err := ExpandDates("2026-01-31", RecurrenceMonth, 1, 4)
	require.NoError(t, err)
	// Jan 31 + 1 month rolls through February into March 3.
	assert.Equal(t, []string{"2026-01-31", "2026-03-03", "2026-03-31", "2026-05-01"}, dates)
}

func TestExpandDatesMonthlyLeapYear(t *testing.T) {
	dates, err := ExpandDates("2028-01-31", RecurrenceMonth, 1, 2)
	require.NoError(t, err)
	// 2028 is a leap year, so Jan 31 + 1 month lands on Mar 2.
	assert.Equal(t, []string{"2028-01-31", "2028-03-02"}, dates)
}

func TestExpandDatesCountOne(t *testing.T) {
	dates, err := ExpandDates("2026-09-07", RecurrenceMonth, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-09-07"}, dates)
}

func TestExpandDatesRejectsBadInputs(t *testing.T) {
	_, err := ExpandDates("07-09-2026", RecurrenceDay, 1, 3)
	assert.Error(t, err)

	_, err = ExpandDates("2026-09-07", RecurrenceDay, 0, 3)
	assert.Error(t, err)

	_, err = ExpandDates("2026-09-07", RecurrenceDay, 1, 0)
	assert.Error(t, err)

	_, err = ExpandDates("2026-09-07", RecurrenceUnit("year"), 1, 3)
	assert.Error(t, err)
}
