// Package reminder derives ranked birthday and contact reminder lists from
// a snapshot of people.
package reminder

import (
	"sort"

	"peoplecal/internal/calendar"
	"peoplecal/internal/model"
)

// Policy controls which reminders are produced.
type Policy struct {
	// WindowDays is the birthday lookahead, inclusive.
	WindowDays int
	// OverdueThresholdDays is the minimum DaysOverdue for a contact
	// reminder. Never-contacted people are included regardless.
	OverdueThresholdDays int
}

// DefaultPolicy matches the config defaults.
func DefaultPolicy() Policy {
	return Policy{WindowDays: 30, OverdueThresholdDays: 0}
}

// DeriveBirthdayReminders returns people whose next birthday falls within
// windowDays of today, soonest first. Ties keep input order.
func DeriveBirthdayReminders(people []model.Person, windowDays int, today model.Date) []model.BirthdayReminder {
	out := make([]model.BirthdayReminder, 0)
	for _, p := range people {
		if p.Birthday == nil {
			continue
		}
		daysUntil := calendar.DaysUntilNextOccurrence(*p.Birthday, today)
		if daysUntil > windowDays {
			continue
		}
		out = append(out, model.BirthdayReminder{
			Person:    p,
			DaysUntil: daysUntil,
			Age:       turningAge(*p.Birthday, today, daysUntil),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DaysUntil < out[j].DaysUntil
	})
	return out
}

// turningAge is the age reached on the occurrence: the current age when the
// birthday is today, one more otherwise. Unknown when the birth year is not
// in the past.
func turningAge(birth, today model.Date, daysUntil int) *int {
	age := calendar.Age(birth, today)
	if daysUntil != 0 {
		age++
	}
	if age <= 0 {
		return nil
	}
	return &age
}

// DerivePeopleToContact returns people with a contact cadence who are due,
// most overdue first. Ties keep input order.
func DerivePeopleToContact(people []model.Person, policy Policy, today model.Date) []model.ContactReminder {
	out := make([]model.ContactReminder, 0)
	for _, p := range people {
		if p.ContactFrequencyDays == nil || *p.ContactFrequencyDays <= 0 {
			continue
		}
		cadence := *p.ContactFrequencyDays

		r := model.ContactReminder{Person: p}
		if p.LastContact == nil {
			r.NeverContacted = true
			r.DaysSinceContact = -1
			r.DaysOverdue = cadence
		} else {
			r.DaysSinceContact = calendar.DaysSince(*p.LastContact, today)
			r.DaysOverdue = r.DaysSinceContact - cadence
		}

		if r.NeverContacted || r.DaysOverdue >= policy.OverdueThresholdDays {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DaysOverdue > out[j].DaysOverdue
	})
	return out
}
