package ics

import (
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "peoplecal/internal/log"
	"peoplecal/internal/model"
)

const maxOccurrencesPerPerson = 200

// Occurrence is one birthday instance inside a date range.
type Occurrence struct {
	Person model.Person
	Date   model.Date
	// Age is the age turned on Date; nil when it would not be positive.
	Age *int
}

// Occurrences expands every birthday between from and to (inclusive) with
// the same yearly rule the exported feed carries, ordered by date. People
// sharing a date keep their input order.
func Occurrences(people []model.Person, from, to model.Date) []Occurrence {
	out := make([]Occurrence, 0)
	if to.Before(from) {
		return out
	}
	start := from.Time(time.UTC)
	end := to.Time(time.UTC)

	for _, p := range people {
		if p.Birthday == nil || !p.Birthday.Valid() {
			continue
		}
		r, err := rrule.NewRRule(yearlyRule(*p.Birthday))
		if err != nil {
			appLog.Error("ics: building yearly rule failed", err, "person", p.Name)
			continue
		}
		times := r.Between(start, end, true)
		if len(times) > maxOccurrencesPerPerson {
			appLog.Warn("ics: expansion truncated", "person", p.Name, "count", len(times))
			times = times[:maxOccurrencesPerPerson]
		}
		for _, t := range times {
			d := model.DateOf(t)
			occ := Occurrence{Person: p, Date: d}
			if age := d.Year - p.Birthday.Year; age > 0 {
				occ.Age = &age
			}
			out = append(out, occ)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}
