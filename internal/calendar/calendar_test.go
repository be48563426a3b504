package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"peoplecal/internal/model"
)

func d(y int, m time.Month, dd int) model.Date { return model.NewDate(y, m, dd) }

func TestDaysUntilNextOccurrence(t *testing.T) {
	today := d(2024, time.June, 1)

	assert.Equal(t, 0, DaysUntilNextOccurrence(d(1990, time.June, 1), today))
	assert.Equal(t, 1, DaysUntilNextOccurrence(d(1990, time.June, 2), today))
	// 2025 is not a leap year, so May 31 is 364 days away.
	assert.Equal(t, 364, DaysUntilNextOccurrence(d(1990, time.May, 31), today))

	// Across a leap day: from 2023-06-01 to 2024-05-31 is 365 days.
	assert.Equal(t, 365, DaysUntilNextOccurrence(d(1990, time.May, 31), d(2023, time.June, 1)))
}

func TestDaysUntilNextOccurrenceYearEnd(t *testing.T) {
	assert.Equal(t, 1, DaysUntilNextOccurrence(d(2000, time.January, 1), d(2024, time.December, 31)))
}

func TestDaysUntilLeapDayBirthday(t *testing.T) {
	// Feb 29 in 2025 normalizes to Mar 1.
	assert.Equal(t, 1, DaysUntilNextOccurrence(d(2000, time.February, 29), d(2025, time.February, 28)))
}

func TestDaysSince(t *testing.T) {
	today := d(2024, time.March, 1)
	assert.Equal(t, 0, DaysSince(today, today))
	assert.Equal(t, 1, DaysSince(d(2024, time.February, 29), today))
	assert.Equal(t, 366, DaysSince(d(2023, time.March, 1), today))
}

func TestAge(t *testing.T) {
	birth := d(1990, time.June, 2)
	assert.Equal(t, 33, Age(birth, d(2024, time.June, 1)))
	assert.Equal(t, 34, Age(birth, d(2024, time.June, 2)))
	assert.Equal(t, 34, Age(birth, d(2024, time.December, 31)))
}

func TestNextOccurrenceDate(t *testing.T) {
	today := d(2024, time.June, 1)

	assert.Equal(t, d(2025, time.June, 1), NextOccurrenceDate(d(1990, time.June, 1), today))
	assert.Equal(t, d(2024, time.June, 2), NextOccurrenceDate(d(1990, time.June, 2), today))
	assert.Equal(t, d(2025, time.May, 31), NextOccurrenceDate(d(1990, time.May, 31), today))
}

func TestOccurrenceInYear(t *testing.T) {
	assert.Equal(t, d(2024, time.February, 29), OccurrenceInYear(d(2000, time.February, 29), 2024))
	assert.Equal(t, d(2025, time.March, 1), OccurrenceInYear(d(2000, time.February, 29), 2025))
}

func TestFixedClock(t *testing.T) {
	c := FixedClock(d(2024, time.June, 1))
	assert.Equal(t, d(2024, time.June, 1), c.Today())
}

func TestClockUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+14", 14*3600)
	c := Clock{loc: loc, now: func() time.Time {
		return time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	}}
	assert.Equal(t, d(2024, time.June, 2), c.Today())
}
