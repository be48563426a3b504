package ics

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"peoplecal/internal/model"
)

// ExportOptions controls BuildCalendar.
type ExportOptions struct {
	// Name is the calendar display name (X-WR-CALNAME).
	Name string
	// Now stamps DTSTAMP; zero means time.Now().
	Now time.Time
}

// BuildCalendar renders one all-day, yearly-recurring VEVENT per person
// with a known birthday.
func BuildCalendar(people []model.Person, opts ExportOptions) *ical.Calendar {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	name := opts.Name
	if name == "" {
		name = "Birthdays"
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//peoplecal//birthdays//EN")
	cal.SetXWRCalName(name)

	for _, p := range people {
		if p.Birthday == nil || !p.Birthday.Valid() {
			continue
		}
		b := *p.Birthday
		start := b.Time(time.UTC)

		ev := cal.AddEvent(eventUID(p))
		ev.SetDtStampTime(now.UTC())
		ev.SetSummary(p.Name + "'s Birthday")
		ev.SetAllDayStartAt(start)
		ev.SetAllDayEndAt(start.AddDate(0, 0, 1))
		rule := yearlyRule(b)
		ev.AddRrule(rule.RRuleString())
		if desc := describe(p); desc != "" {
			ev.SetDescription(desc)
		}
	}
	return cal
}

// Export serializes BuildCalendar's output.
func Export(people []model.Person, opts ExportOptions) string {
	return BuildCalendar(people, opts).Serialize()
}

// yearlyRule recurs every year on the birth month/day. Feb 29 birthdays
// fall on the last day of February so non-leap years are not skipped.
func yearlyRule(b model.Date) rrule.ROption {
	opt := rrule.ROption{
		Freq:    rrule.YEARLY,
		Dtstart: b.Time(time.UTC),
	}
	if b.Month == time.February && b.Day == 29 {
		opt.Bymonth = []int{2}
		opt.Bymonthday = []int{-1}
	}
	return opt
}

func eventUID(p model.Person) string {
	id := p.ID
	if id == "" {
		id = strings.ToLower(strings.ReplaceAll(p.Name, " ", "-"))
	}
	return fmt.Sprintf("birthday-%s@peoplecal", id)
}

func describe(p model.Person) string {
	var parts []string
	if p.Relationship != "" {
		parts = append(parts, "Relationship: "+p.Relationship)
	}
	if p.Email != "" {
		parts = append(parts, "Email: "+p.Email)
	}
	return strings.Join(parts, "\n")
}
