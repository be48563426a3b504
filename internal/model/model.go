package model

import (
	"fmt"
	"time"
)

// Date is a timezone-naive calendar date. Two dates are compared only by
// (Year, Month, Day); there is no time-of-day component.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate builds a Date without validating it. Use Valid to check.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Valid reports whether d names a real Gregorian date in years 1..9999.
func (d Date) Valid() bool {
	if d.Year < 1 || d.Year > 9999 {
		return false
	}
	if d.Month < time.January || d.Month > time.December {
		return false
	}
	return d.Day >= 1 && d.Day <= DaysIn(d.Year, d.Month)
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d == Date{}
}

// Time returns midnight of d in loc (UTC when loc is nil).
func (d Date) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// JournalDay encodes d as a YYYYMMDD integer.
func (d Date) JournalDay() int {
	return d.Year*10000 + int(d.Month)*100 + d.Day
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Compare returns -1, 0 or +1.
func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return cmpInt(d.Year, o.Year)
	case d.Month != o.Month:
		return cmpInt(int(d.Month), int(o.Month))
	default:
		return cmpInt(d.Day, o.Day)
	}
}

func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }
func (d Date) After(o Date) bool  { return d.Compare(o) > 0 }

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// DaysIn returns the number of days in month m of year y.
func DaysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Person is a normalized person record. It is built fresh on every
// derivation pass from the host's records and never mutated afterwards.
type Person struct {
	ID   string
	Name string

	Birthday    *Date
	LastContact *Date

	// ContactFrequencyDays is the desired cadence between contacts.
	// When set it is always > 0.
	ContactFrequencyDays *int

	Relationship string
	Email        string
}

// BirthdayReminder is derived per pass and never persisted.
type BirthdayReminder struct {
	Person    Person
	DaysUntil int
	// Age is the age the person turns on the occurrence, when known.
	Age *int
}

// ContactReminder is derived per pass and never persisted.
type ContactReminder struct {
	Person Person
	// DaysSinceContact is -1 when NeverContacted is set.
	DaysSinceContact int
	NeverContacted   bool
	DaysOverdue      int
}

// BirthdayTask identifies one scheduled birthday follow-up.
type BirthdayTask struct {
	PersonName string
	Occurrence Date
}

// Text is the task body written into the date container.
func (t BirthdayTask) Text() string {
	return "[[" + t.PersonName + "]]'s Birthday"
}
