package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peoplecal/internal/calendar"
	"peoplecal/internal/model"
	"peoplecal/internal/people"
	"peoplecal/internal/resolve"
	"peoplecal/internal/store"
)

func date(y int, m time.Month, d int) *model.Date {
	v := model.NewDate(y, m, d)
	return &v
}

func TestExportBirthdays(t *testing.T) {
	ps := []model.Person{
		{ID: "p1", Name: "Alice", Birthday: date(1990, time.June, 2), Relationship: "friend"},
		{ID: "p2", Name: "Bob"},
		{ID: "p3", Name: "Leap", Birthday: date(1992, time.February, 29)},
	}
	out := Export(ps, ExportOptions{Now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)})
	out = strings.ReplaceAll(out, "\r\n", "\n")

	assert.Contains(t, out, "X-WR-CALNAME:Birthdays")
	assert.Contains(t, out, "UID:birthday-p1@peoplecal")
	assert.Contains(t, out, "SUMMARY:Alice's Birthday")
	assert.Contains(t, out, "DTSTART;VALUE=DATE:19900602")
	assert.Contains(t, out, "DTEND;VALUE=DATE:19900603")
	assert.Contains(t, out, "RRULE:FREQ=YEARLY\n")
	assert.Contains(t, out, "RRULE:FREQ=YEARLY;BYMONTH=2;BYMONTHDAY=-1")
	assert.NotContains(t, out, "Bob")
	assert.Equal(t, 2, strings.Count(out, "BEGIN:VEVENT"))
}

func TestExportRoundTrip(t *testing.T) {
	ps := []model.Person{
		{ID: "p1", Name: "Alice", Birthday: date(1990, time.June, 2)},
		{ID: "p2", Name: "Carol Smith", Birthday: date(1975, time.December, 31)},
	}
	body := Export(ps, ExportOptions{})

	got, err := ParseBirthdays(Source{ID: "self"}, []byte(body))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Alice", got[0].Name)
	assert.Equal(t, model.NewDate(1990, time.June, 2), got[0].Birthday)
	assert.Equal(t, "Carol Smith", got[1].Name)
	assert.Equal(t, model.NewDate(1975, time.December, 31), got[1].Birthday)
}

const feed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:a
DTSTART;VALUE=DATE:19880315
SUMMARY:Birthday: Dana
END:VEVENT
BEGIN:VEVENT
UID:b
DTSTART:20000704T090000Z
SUMMARY:Erin (birthday)
END:VEVENT
BEGIN:VEVENT
UID:c
DTSTART;VALUE=DATE:20240101
SUMMARY:Team offsite
END:VEVENT
BEGIN:VEVENT
UID:d
SUMMARY:Frank's birthday
END:VEVENT
END:VCALENDAR
`

func TestParseBirthdays(t *testing.T) {
	got, err := ParseBirthdays(Source{ID: "feed"}, []byte(feed))
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "Dana", got[0].Name)
	assert.Equal(t, "a", got[0].UID)
	assert.Equal(t, model.NewDate(1988, time.March, 15), got[0].Birthday)
	assert.Equal(t, "Erin", got[1].Name)
	assert.Equal(t, model.NewDate(2000, time.July, 4), got[1].Birthday)

	_, err = ParseBirthdays(Source{}, nil)
	assert.Error(t, err)
}

func TestNameFromSummary(t *testing.T) {
	cases := map[string]string{
		"Alice's Birthday":     "Alice",
		"[[Alice]]'s Birthday": "Alice",
		"Bob’s birthday":       "Bob",
		"Birthday of Carol":    "Carol",
		"Dan (Birthday)":       "Dan",
	}
	for in, want := range cases {
		got, ok := nameFromSummary(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := nameFromSummary("Lunch with Alice")
	assert.False(t, ok)
}

func TestOccurrences(t *testing.T) {
	ps := []model.Person{
		{Name: "Alice", Birthday: date(1990, time.June, 2)},
		{Name: "Leap", Birthday: date(1992, time.February, 29)},
		{Name: "NoBirthday"},
	}
	occ := Occurrences(ps, model.NewDate(2023, time.January, 1), model.NewDate(2024, time.December, 31))
	require.Len(t, occ, 4)

	assert.Equal(t, "Leap", occ[0].Person.Name)
	assert.Equal(t, model.NewDate(2023, time.February, 28), occ[0].Date)
	assert.Equal(t, "Alice", occ[1].Person.Name)
	assert.Equal(t, model.NewDate(2023, time.June, 2), occ[1].Date)
	require.NotNil(t, occ[1].Age)
	assert.Equal(t, 33, *occ[1].Age)
	assert.Equal(t, model.NewDate(2024, time.February, 29), occ[2].Date)
	assert.Equal(t, 32, *occ[2].Age)

	assert.Empty(t, Occurrences(ps, model.NewDate(2024, time.January, 2), model.NewDate(2024, time.January, 1)))
}

func TestFetchLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "b.ics")
	require.NoError(t, os.WriteFile(path, []byte(feed), 0o600))

	f := NewFetcher(t.TempDir())
	for _, u := range []string{path, "file://" + path} {
		res, err := f.FetchOne(context.Background(), Source{ID: "local", URL: u})
		require.NoError(t, err)
		assert.Equal(t, feed, string(res.Body))
		assert.False(t, res.FromCache)
	}
}

func TestFetchUsesCacheOnNotModified(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(feed))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	src := Source{ID: "remote", URL: srv.URL + "/private.ics?token=x"}

	first, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, int32(2), hits.Load())
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://example.com/...(redacted)", redactURL("https://example.com/a/b.ics?token=x"))
	assert.Equal(t, "b.ics", redactURL("/home/me/b.ics"))
}

func TestImporterRun(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	svc := people.NewService(s, resolve.New(s), nil, calendar.FixedClock(model.NewDate(2024, time.June, 1)), "person")
	ctx := context.Background()

	require.True(t, svc.Create(ctx, people.Input{Name: "Dana", Birthday: "1988-03-15"}).Success)
	require.True(t, svc.Create(ctx, people.Input{Name: "Erin", Birthday: "1999-01-01"}).Success)

	path := filepath.Join(t.TempDir(), "b.ics")
	require.NoError(t, os.WriteFile(path, []byte(feed), 0o600))

	im := NewImporter(NewFetcher(t.TempDir()), svc)
	rep, err := im.Run(ctx, []Source{
		{ID: "local", URL: path},
		{ID: "missing", URL: filepath.Join(t.TempDir(), "nope.ics")},
	})
	assert.Error(t, err)
	assert.Equal(t, []string{"Dana"}, rep.Unchanged)
	assert.Equal(t, []string{"Erin"}, rep.Updated)
	assert.Empty(t, rep.Created)
	assert.Empty(t, rep.Failed)

	p, res := svc.Get(ctx, "Erin")
	require.True(t, res.Success)
	assert.Equal(t, model.NewDate(2000, time.July, 4), *p.Birthday)
}

func TestApplyCreatesUnknownPeople(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	svc := people.NewService(s, resolve.New(s), nil, calendar.FixedClock(model.NewDate(2024, time.June, 1)), "person")

	rep := Apply(context.Background(), svc, []ImportedBirthday{
		{Name: "Gina", Birthday: model.NewDate(1970, time.May, 5)},
	})
	assert.Equal(t, []string{"Gina"}, rep.Created)

	recs, err := s.FetchTaggedRecords(context.Background(), "person")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
