// Package calendar implements day arithmetic on timezone-naive calendar dates.
//
// All computations are done on UTC midnights so that daylight-saving
// transitions in the display zone never shift a day count.
package calendar

import (
	"time"

	"peoplecal/internal/model"
)

const day = 24 * time.Hour

// Clock supplies "today" as a calendar date in a fixed location.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// NewClock returns a Clock reading the wall clock in loc (time.Local if nil).
func NewClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.Local
	}
	return Clock{loc: loc, now: time.Now}
}

// FixedClock always reports the given date. Intended for tests and replays.
func FixedClock(today model.Date) Clock {
	t := today.Time(time.UTC)
	return Clock{loc: time.UTC, now: func() time.Time { return t }}
}

// Today returns the current calendar date in the clock's location.
func (c Clock) Today() model.Date {
	now := c.now
	if now == nil {
		now = time.Now
	}
	loc := c.loc
	if loc == nil {
		loc = time.Local
	}
	return model.DateOf(now().In(loc))
}

// Location returns the clock's location.
func (c Clock) Location() *time.Location {
	if c.loc == nil {
		return time.Local
	}
	return c.loc
}

// OccurrenceInYear places d's month and day in the given year. A Feb 29
// date in a non-leap year normalizes to Mar 1.
func OccurrenceInYear(d model.Date, year int) model.Date {
	return model.DateOf(time.Date(year, d.Month, d.Day, 0, 0, 0, 0, time.UTC))
}

// DaysBetween returns b - a in whole calendar days.
func DaysBetween(a, b model.Date) int {
	return int(b.Time(time.UTC).Sub(a.Time(time.UTC)) / day)
}

// DaysUntilNextOccurrence returns the days until the next (month, day)
// occurrence of d, counting today as 0.
func DaysUntilNextOccurrence(d, today model.Date) int {
	occ := OccurrenceInYear(d, today.Year)
	if occ.Before(today) {
		occ = OccurrenceInYear(d, today.Year+1)
	}
	return DaysBetween(today, occ)
}

// DaysSince returns the days elapsed from d to today. d is expected not to
// lie in the future; if it does the result is negative.
func DaysSince(d, today model.Date) int {
	return DaysBetween(d, today)
}

// Age returns the full years elapsed between birth and today.
func Age(birth, today model.Date) int {
	age := today.Year - birth.Year
	if today.Month < birth.Month || (today.Month == birth.Month && today.Day < birth.Day) {
		age--
	}
	return age
}

// NextOccurrenceDate returns the first occurrence of d's month and day that
// is strictly after today. Unlike DaysUntilNextOccurrence, an occurrence on
// today rolls over to next year.
func NextOccurrenceDate(d, today model.Date) model.Date {
	occ := OccurrenceInYear(d, today.Year)
	if occ.After(today) {
		return occ
	}
	return OccurrenceInYear(d, today.Year+1)
}
