// Package dateparse turns loosely formatted date values into calendar dates.
//
// Nothing in this package returns an error: an input that cannot be read as a
// valid Gregorian date yields ok == false.
package dateparse

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"peoplecal/internal/model"
)

var monthNames = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

var (
	reISO       = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})(?:[T ].*)?$`)
	reDMY       = regexp.MustCompile(`^(\d{1,2})[/\-.](\d{1,2})[/\-.](\d{4})$`)
	reAmbiguous = regexp.MustCompile(`^(\d{1,2})[/\-](\d{1,2})[/\-](\d{4})$`)
	reDayMonth  = regexp.MustCompile(`^(\d{1,2})(?:st|nd|rd|th)?\s+([A-Za-z]{3,})\.?,?\s+(\d{4})$`)
	reMonthDay  = regexp.MustCompile(`^([A-Za-z]{3,})\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})$`)
	reYearFirst = regexp.MustCompile(`^(\d{4})\s+([A-Za-z]{3,})\.?\s+(\d{1,2})$`)
)

// fallbackLayouts are tried last, in order. time.Parse rejects out-of-range
// days and months, so anything it accepts is a real date.
var fallbackLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006/01/02",
	"2006/1/2",
	"2006.01.02",
	"20060102",
	"Mon Jan 2 2006",
	"Mon, Jan 2, 2006",
	"Monday, January 2, 2006",
	"Mon, 02 Jan 2006",
	time.RFC1123,
	time.RFC1123Z,
	time.RFC850,
	time.ANSIC,
}

type rule func(s string) (model.Date, bool)

// rules is the ordered list applied by ParseString. The first rule that
// yields a valid date wins; rules that match textually but produce an
// invalid date fall through to the next one.
var rules = []rule{
	parseISO,
	parseDMY,
	parseAmbiguous,
	parseDayMonthName,
	parseMonthNameDay,
	parseYearMonthName,
	parseFallback,
}

// Parse accepts strings, numbers (epoch milliseconds), time.Time and
// model.Date. Any other kind of value, including unresolved reference
// objects, is reported as unparseable.
func Parse(v any) (model.Date, bool) {
	switch x := v.(type) {
	case nil:
		return model.Date{}, false
	case string:
		return ParseString(x)
	case model.Date:
		return x, x.Valid()
	case *model.Date:
		if x == nil {
			return model.Date{}, false
		}
		return *x, x.Valid()
	case time.Time:
		if x.IsZero() {
			return model.Date{}, false
		}
		return validOrZero(model.DateOf(x))
	case int:
		return validOrZero(ParseTimestamp(int64(x), time.Local))
	case int64:
		return validOrZero(ParseTimestamp(x, time.Local))
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return model.Date{}, false
		}
		return validOrZero(ParseTimestamp(int64(x), time.Local))
	default:
		return model.Date{}, false
	}
}

// ParseString parses a textual date.
func ParseString(s string) (model.Date, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.Date{}, false
	}
	for _, r := range rules {
		if d, ok := r(s); ok {
			return d, true
		}
	}
	return model.Date{}, false
}

// ParseJournalDay decodes a YYYYMMDD integer such as 20090416.
func ParseJournalDay(n int) (model.Date, bool) {
	if n <= 0 {
		return model.Date{}, false
	}
	d := model.NewDate(n/10000, time.Month((n/100)%100), n%100)
	return validOrZero(d)
}

// ParseTimestamp converts epoch milliseconds into the calendar date seen in loc.
func ParseTimestamp(ms int64, loc *time.Location) model.Date {
	if loc == nil {
		loc = time.Local
	}
	return model.DateOf(time.UnixMilli(ms).In(loc))
}

// MonthByName looks a month up by full name or standard abbreviation.
func MonthByName(name string) (time.Month, bool) {
	name = strings.ToLower(strings.TrimSuffix(name, "."))
	if len(name) < 3 {
		return 0, false
	}
	m, ok := monthNames[name]
	return m, ok
}

func parseISO(s string) (model.Date, bool) {
	m := reISO.FindStringSubmatch(s)
	if m == nil {
		return model.Date{}, false
	}
	return build(atoi(m[1]), atoi(m[2]), atoi(m[3]))
}

func parseDMY(s string) (model.Date, bool) {
	m := reDMY.FindStringSubmatch(s)
	if m == nil {
		return model.Date{}, false
	}
	return build(atoi(m[3]), atoi(m[2]), atoi(m[1]))
}

func parseAmbiguous(s string) (model.Date, bool) {
	m := reAmbiguous.FindStringSubmatch(s)
	if m == nil {
		return model.Date{}, false
	}
	a, b, year := atoi(m[1]), atoi(m[2]), atoi(m[3])
	switch {
	case a > 12:
		return build(year, b, a)
	case b > 12:
		return build(year, a, b)
	default:
		return build(year, b, a)
	}
}

func parseDayMonthName(s string) (model.Date, bool) {
	m := reDayMonth.FindStringSubmatch(s)
	if m == nil {
		return model.Date{}, false
	}
	month, ok := MonthByName(m[2])
	if !ok {
		return model.Date{}, false
	}
	return build(atoi(m[3]), int(month), atoi(m[1]))
}

func parseMonthNameDay(s string) (model.Date, bool) {
	m := reMonthDay.FindStringSubmatch(s)
	if m == nil {
		return model.Date{}, false
	}
	month, ok := MonthByName(m[1])
	if !ok {
		return model.Date{}, false
	}
	return build(atoi(m[3]), int(month), atoi(m[2]))
}

func parseYearMonthName(s string) (model.Date, bool) {
	m := reYearFirst.FindStringSubmatch(s)
	if m == nil {
		return model.Date{}, false
	}
	month, ok := MonthByName(m[2])
	if !ok {
		return model.Date{}, false
	}
	return build(atoi(m[1]), int(month), atoi(m[3]))
}

func parseFallback(s string) (model.Date, bool) {
	for _, layout := range fallbackLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return validOrZero(model.DateOf(t))
	}
	return model.Date{}, false
}

func build(year, month, day int) (model.Date, bool) {
	return validOrZero(model.NewDate(year, time.Month(month), day))
}

func validOrZero(d model.Date) (model.Date, bool) {
	if !d.Valid() {
		return model.Date{}, false
	}
	return d, true
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}
