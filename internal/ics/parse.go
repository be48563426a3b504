package ics

import (
	"bytes"
	"errors"
	"regexp"
	"strings"

	ical "github.com/arran4/golang-ical"

	"peoplecal/internal/dateparse"
	appLog "peoplecal/internal/log"
	"peoplecal/internal/model"
)

// ImportedBirthday is a birthday recovered from a VEVENT.
type ImportedBirthday struct {
	Source   Source
	UID      string
	Name     string
	Birthday model.Date
}

var summaryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(?:\[\[)?(.+?)(?:\]\])?['’]s? [Bb]irthday$`),
	regexp.MustCompile(`^[Bb]irthday(?::|\s+of)?\s+(.+)$`),
	regexp.MustCompile(`^(.+?)\s*\([Bb]irthday\)$`),
}

// ParseBirthdays reads every VEVENT whose summary names a birthday.
// Events that are not birthdays, or that lack a readable DTSTART, are
// skipped.
func ParseBirthdays(src Source, body []byte) ([]ImportedBirthday, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return nil, err
	}

	out := make([]ImportedBirthday, 0)
	for _, ev := range cal.Events() {
		b, ok := parseVEvent(src, ev)
		if !ok {
			continue
		}
		out = append(out, b)
	}

	appLog.Info("ics parse completed", "id", src.ID, "url", redactURL(src.URL), "events", len(cal.Events()), "birthdays", len(out))
	return out, nil
}

func parseVEvent(src Source, ve *ical.VEvent) (ImportedBirthday, bool) {
	var out ImportedBirthday
	out.Source = src

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		out.UID = p.Value
	}

	p := ve.GetProperty(ical.ComponentPropertySummary)
	if p == nil {
		return out, false
	}
	name, ok := nameFromSummary(p.Value)
	if !ok {
		return out, false
	}
	out.Name = name

	dt := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dt == nil {
		appLog.Debug("ics: birthday without DTSTART", "uid", out.UID, "name", name)
		return out, false
	}
	d, ok := parseDateValue(dt.Value)
	if !ok {
		appLog.Debug("ics: unreadable DTSTART", "uid", out.UID, "value", dt.Value)
		return out, false
	}
	out.Birthday = d
	return out, true
}

// nameFromSummary extracts the person from summaries such as
// "Alice's Birthday", "Birthday: Alice" or "Alice (birthday)".
func nameFromSummary(summary string) (string, bool) {
	s := strings.TrimSpace(unescapeText(summary))
	for _, re := range summaryPatterns {
		if m := re.FindStringSubmatch(s); m != nil {
			name := strings.TrimSpace(m[1])
			if name != "" {
				return name, true
			}
		}
	}
	return "", false
}

// parseDateValue reads the date part of a DATE or DATE-TIME value. The
// time portion is dropped; birthdays are calendar days.
func parseDateValue(v string) (model.Date, bool) {
	v = strings.TrimSpace(v)
	if i := strings.IndexByte(v, 'T'); i >= 0 {
		v = v[:i]
	}
	if len(v) != 8 {
		return dateparse.ParseString(v)
	}
	n := 0
	for _, r := range v {
		if r < '0' || r > '9' {
			return model.Date{}, false
		}
		n = n*10 + int(r-'0')
	}
	return dateparse.ParseJournalDay(n)
}

func unescapeText(s string) string {
	r := strings.NewReplacer(`\,`, ",", `\;`, ";", `\n`, " ", `\\`, `\`)
	return r.Replace(s)
}
