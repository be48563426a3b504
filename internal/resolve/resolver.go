// Package resolve maps loosely typed host records onto model.Person.
//
// Property keys may be plain, namespaced, or carry a generated suffix, and
// values may be references to other records. Every lookup is best-effort:
// a missing key or a failed dereference leaves the field unknown.
package resolve

import (
	"context"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"peoplecal/internal/dateparse"
	"peoplecal/internal/host"
	appLog "peoplecal/internal/log"
	"peoplecal/internal/model"
)

// journalDayKeys are tried in order on a referenced record.
var journalDayKeys = []string{host.AttrJournalDay, "journal-day", "block/journal-day", ":block/journal-day"}

var leadingInt = regexp.MustCompile(`^\s*(-?\d+)`)

// Resolver dereferences record properties through the host.
type Resolver struct {
	host       host.Host
	strategies []KeyStrategy
	loc        *time.Location
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithStrategies overrides the key-matching table.
func WithStrategies(s []KeyStrategy) Option {
	return func(r *Resolver) { r.strategies = s }
}

// WithLocation sets the zone used to turn epoch timestamps into dates.
func WithLocation(loc *time.Location) Option {
	return func(r *Resolver) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// New builds a Resolver. h may be nil, in which case references never resolve.
func New(h host.Host, opts ...Option) *Resolver {
	r := &Resolver{host: h, strategies: DefaultStrategies, loc: time.Local}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Person builds a Person from rec. It reports false only when rec has no name.
func (r *Resolver) Person(ctx context.Context, rec host.Record) (model.Person, bool) {
	name := rec.Title()
	if name == "" {
		appLog.Debug("resolve: record without name skipped", "record_id", rec.ID)
		return model.Person{}, false
	}
	p := model.Person{ID: rec.ID, Name: name}

	if d, ok := r.Date(ctx, rec.Properties, FieldBirthday); ok {
		p.Birthday = &d
	}
	if d, ok := r.Date(ctx, rec.Properties, FieldLastContact); ok {
		p.LastContact = &d
	}
	if n, ok := r.Int(ctx, rec.Properties, FieldFrequency); ok {
		if n > 0 {
			p.ContactFrequencyDays = &n
		} else {
			appLog.Debug("resolve: non-positive contact frequency ignored", "person", name, "value", n)
		}
	}
	if s, ok := r.String(ctx, rec.Properties, FieldRelationship); ok {
		p.Relationship = s
	}
	if s, ok := r.String(ctx, rec.Properties, FieldEmail); ok {
		p.Email = s
	}
	return p, true
}

// Date resolves a date-valued field.
func (r *Resolver) Date(ctx context.Context, props map[string]any, f Field) (model.Date, bool) {
	raw, key, ok := Lookup(props, f, r.strategies)
	if !ok {
		return model.Date{}, false
	}
	v := Classify(raw)
	if !v.IsReference() {
		d, ok := r.directDate(v.Raw())
		if !ok {
			appLog.Debug("resolve: unparseable date", "key", key, "value", v.Raw())
		}
		return d, ok
	}

	rec := r.deref(ctx, v, key)
	if rec == nil {
		return model.Date{}, false
	}
	for _, k := range journalDayKeys {
		if n, ok := asInt(rec.Attrs[k]); ok {
			if d, ok := dateparse.ParseJournalDay(n); ok {
				return d, true
			}
		}
	}
	for _, k := range []string{host.AttrTitle, host.AttrOriginalName, host.AttrName} {
		if s, ok := rec.Attrs[k].(string); ok {
			if d, ok := dateparse.ParseString(s); ok {
				return d, true
			}
		}
	}
	appLog.Debug("resolve: referenced record is not a date", "key", key, "ref", v.RefID())
	return model.Date{}, false
}

// Int resolves an integer-valued field.
func (r *Resolver) Int(ctx context.Context, props map[string]any, f Field) (int, bool) {
	raw, key, ok := Lookup(props, f, r.strategies)
	if !ok {
		return 0, false
	}
	v := Classify(raw)
	if !v.IsReference() {
		return asInt(v.Raw())
	}

	rec := r.deref(ctx, v, key)
	if rec == nil {
		return 0, false
	}
	if n, ok := asInt(rec.Attrs[host.AttrValue]); ok {
		return n, true
	}
	for _, s := range []string{rec.Title(), rec.Content()} {
		if n, ok := asInt(s); ok {
			return n, true
		}
	}
	appLog.Debug("resolve: referenced record is not a number", "key", key, "ref", v.RefID())
	return 0, false
}

// String resolves a string-valued field. Empty strings count as unknown.
func (r *Resolver) String(ctx context.Context, props map[string]any, f Field) (string, bool) {
	raw, key, ok := Lookup(props, f, r.strategies)
	if !ok {
		return "", false
	}
	v := Classify(raw)
	if !v.IsReference() {
		switch x := v.Raw().(type) {
		case string:
			s := strings.TrimSpace(x)
			return s, s != ""
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64), true
		case int:
			return strconv.Itoa(x), true
		}
		return "", false
	}

	rec := r.deref(ctx, v, key)
	if rec == nil {
		return "", false
	}
	if s := rec.Title(); s != "" {
		return s, true
	}
	if s := strings.TrimSpace(rec.Content()); s != "" {
		return s, true
	}
	return "", false
}

func (r *Resolver) directDate(v any) (model.Date, bool) {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return model.Date{}, false
		}
		d := dateparse.ParseTimestamp(int64(x), r.loc)
		return d, d.Valid()
	case int64:
		d := dateparse.ParseTimestamp(x, r.loc)
		return d, d.Valid()
	case int:
		d := dateparse.ParseTimestamp(int64(x), r.loc)
		return d, d.Valid()
	}
	return dateparse.Parse(v)
}

// deref fetches the referenced record. Failures are logged and yield nil.
func (r *Resolver) deref(ctx context.Context, v Value, key string) *host.Record {
	if r.host == nil {
		return nil
	}
	rec, err := r.host.ResolveReference(ctx, v.RefID())
	if err != nil || rec == nil {
		appLog.Debug("resolve: reference lookup failed", "key", key, "ref", v.RefID(), "err", err)
		return nil
	}
	return rec
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return int(x), true
	case string:
		m := leadingInt.FindStringSubmatch(x)
		if m == nil {
			return 0, false
		}
		n, err := strconv.Atoi(m[1])
		return n, err == nil
	}
	return 0, false
}
