package trigger

import (
	"testing"
	"time"

	"oss.nandlabs.io/cirrusd/testing/assert"
)

func mustParseWallClock(t *testing.T, s string) *WallClock {
	t.Helper()
	w, err := ParseWallClock(s)
	assert.NoError(t, err)
	return w
}

func TestWallClockFiresOnMatchingDayAndTime(t *testing.T) {
	w := mustParseWallClock(t, "12:00 every monday")
	after := time.Date(2024, 3, 4, 11, 59, 59, 0, time.UTC) // a monday
	next := w.NextSchedule(after)
	assert.Equal(t, time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC), next)
}

func TestWallClockSkipsToNextMatchingDayWhenTimePassed(t *testing.T) {
	w := mustParseWallClock(t, "12:00 every monday")
	after := time.Date(2024, 3, 4, 12, 0, 1, 0, time.UTC) // just past noon monday
	next := w.NextSchedule(after)
	assert.Equal(t, time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC), next)
}

func TestWallClockMultipleTimesAndExceptDay(t *testing.T) {
	w := mustParseWallClock(t, "6am and 18:00 every weekday except wednesday")
	// Tuesday 2024-03-05 at 7am: next fire is 18:00 same day.
	after := time.Date(2024, 3, 5, 7, 0, 0, 0, time.UTC)
	next := w.NextSchedule(after)
	assert.Equal(t, time.Date(2024, 3, 5, 18, 0, 0, 0, time.UTC), next)

	// Wednesday is excluded: from Tuesday 19:00, next fire skips Wednesday to Thursday 6am.
	after = time.Date(2024, 3, 5, 19, 0, 0, 0, time.UTC)
	next = w.NextSchedule(after)
	assert.Equal(t, time.Date(2024, 3, 7, 6, 0, 0, 0, time.UTC), next)
}

func TestWallClockRejectsMissingEvery(t *testing.T) {
	_, err := ParseWallClock("6am")
	assert.Error(t, err)
}

func TestWallClockRejectsUnknownDay(t *testing.T) {
	_, err := ParseWallClock("6am every someday")
	assert.Error(t, err)
}

func TestParseWallClockFieldsCombinesAtAndEvery(t *testing.T) {
	w, err := ParseWallClockFields("6am and 18:00", "weekday except Wednesday")
	assert.NoError(t, err)
	assert.Equal(t, 2, len(w.times))
}

func TestCronNextScheduleHonorsTimezone(t *testing.T) {
	c, err := ParseCron("0 12 * * *", "utc")
	assert.NoError(t, err)
	assert.NoError(t, c.Err())

	after := time.Date(2024, 3, 4, 11, 0, 0, 0, time.UTC)
	next := c.NextSchedule(after)
	assert.Equal(t, time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC), next)
}

func TestCronUnknownNamedZoneErrorsAtEvaluation(t *testing.T) {
	c, err := ParseCron("0 12 * * *", "Mars/Olympus_Mons")
	assert.NoError(t, err) // parses fine
	assert.Error(t, c.Err())

	next := c.NextSchedule(time.Now())
	assert.True(t, next.IsZero())
}

func TestCronRejectsMalformedExpression(t *testing.T) {
	_, err := ParseCron("not a cron expr", "utc")
	assert.Error(t, err)
}
