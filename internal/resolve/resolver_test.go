package resolve

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peoplecal/internal/host"
	"peoplecal/internal/model"
)

// refHost serves ResolveReference from a map; other methods are unused.
type refHost struct {
	host.Host
	records map[string]*host.Record
	calls   []string
}

func (h *refHost) ResolveReference(_ context.Context, id string) (*host.Record, error) {
	h.calls = append(h.calls, id)
	rec, ok := h.records[id]
	if !ok {
		return nil, host.ErrNotFound
	}
	return rec, nil
}

func TestFindKeyStrategyOrder(t *testing.T) {
	cases := []struct {
		name  string
		props map[string]any
		want  string
	}{
		{"exact", map[string]any{"birthday": 1, "user.property/birthday-x1": 2}, "birthday"},
		{"user namespace before plugin", map[string]any{
			":plugin.property.people/birthday-a": 1,
			":user.property/birthday-Zq9": 2,
		}, ":user.property/birthday-Zq9"},
		{"plugin namespace", map[string]any{"plugin.property.people/birthday": 1}, "plugin.property.people/birthday"},
		{"suffixed", map[string]any{"birthday-8fJx": 1}, "birthday-8fJx"},
		{"no substring false positive", map[string]any{"birthdays-list": 1, "user.property/birthdayx": 2}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := FindKey(tc.props, "birthday", DefaultStrategies)
			if tc.want == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestClassify(t *testing.T) {
	assert.True(t, Classify(map[string]any{"id": float64(42)}).IsReference())
	assert.Equal(t, "42", Classify(map[string]any{"id": float64(42)}).RefID())
	assert.True(t, Classify(host.Ref{ID: "x"}).IsReference())
	assert.True(t, Classify([]any{map[string]any{"id": "y"}}).IsReference())
	assert.False(t, Classify("1990-06-02").IsReference())
	assert.False(t, Classify(map[string]any{"title": "no id"}).IsReference())
}

func TestPersonDirectValues(t *testing.T) {
	r := New(nil)
	rec := host.Record{
		ID:    "p1",
		Attrs: map[string]any{host.AttrOriginalName: "Alice"},
		Properties: map[string]any{
			"birthday":                          "15 Apr 1988",
			":user.property/last-contact-Ab12":  "2024-05-12",
			"contact-frequency":                 float64(14),
			"relationship":                      " friend ",
			"plugin.property.people/email-9981": "alice@example.com",
		},
	}

	p, ok := r.Person(context.Background(), rec)
	require.True(t, ok)
	assert.Equal(t, "Alice", p.Name)
	require.NotNil(t, p.Birthday)
	assert.Equal(t, model.NewDate(1988, time.April, 15), *p.Birthday)
	require.NotNil(t, p.LastContact)
	assert.Equal(t, model.NewDate(2024, time.May, 12), *p.LastContact)
	require.NotNil(t, p.ContactFrequencyDays)
	assert.Equal(t, 14, *p.ContactFrequencyDays)
	assert.Equal(t, "friend", p.Relationship)
	assert.Equal(t, "alice@example.com", p.Email)
}

func TestPersonWithoutNameIsSkipped(t *testing.T) {
	_, ok := New(nil).Person(context.Background(), host.Record{ID: "x"})
	assert.False(t, ok)
}

func TestPersonDegradesBadFields(t *testing.T) {
	r := New(&refHost{records: map[string]*host.Record{}})
	rec := host.Record{
		ID:    "p2",
		Attrs: map[string]any{host.AttrTitle: "Bob"},
		Properties: map[string]any{
			"birthday":          "13/13/2020",
			"last-contact":      map[string]any{"id": "missing"},
			"contact-frequency": "0",
		},
	}
	p, ok := r.Person(context.Background(), rec)
	require.True(t, ok)
	assert.Nil(t, p.Birthday)
	assert.Nil(t, p.LastContact)
	assert.Nil(t, p.ContactFrequencyDays)
}

func TestDateReferenceResolutionOrder(t *testing.T) {
	h := &refHost{records: map[string]*host.Record{
		"journal":   {ID: "journal", Attrs: map[string]any{host.AttrJournalDay: float64(20090416), host.AttrTitle: "Apr 1st, 2001"}},
		"alt":       {ID: "alt", Attrs: map[string]any{"journal-day": 20100101}},
		"namespace": {ID: "namespace", Attrs: map[string]any{":block/journal-day": "20110202"}},
		"title":     {ID: "title", Attrs: map[string]any{host.AttrTitle: "June 2, 1990"}},
		"name":      {ID: "name", Attrs: map[string]any{host.AttrName: "1990-06-03"}},
		"junk":      {ID: "junk", Attrs: map[string]any{host.AttrName: "groceries"}},
	}}
	r := New(h)
	ctx := context.Background()

	cases := map[string]model.Date{
		"journal":   model.NewDate(2009, time.April, 16),
		"alt":       model.NewDate(2010, time.January, 1),
		"namespace": model.NewDate(2011, time.February, 2),
		"title":     model.NewDate(1990, time.June, 2),
		"name":      model.NewDate(1990, time.June, 3),
	}
	for id, want := range cases {
		got, ok := r.Date(ctx, map[string]any{"birthday": map[string]any{"id": id}}, FieldBirthday)
		require.True(t, ok, id)
		assert.Equal(t, want, got, id)
	}

	_, ok := r.Date(ctx, map[string]any{"birthday": host.Ref{ID: "junk"}}, FieldBirthday)
	assert.False(t, ok)
}

func TestIntAndStringReferences(t *testing.T) {
	h := &refHost{records: map[string]*host.Record{
		"typed":   {ID: "typed", Attrs: map[string]any{host.AttrValue: float64(30)}},
		"titled":  {ID: "titled", Attrs: map[string]any{host.AttrTitle: "21 days"}},
		"content": {ID: "content", Attrs: map[string]any{host.AttrContent: "7"}},
		"rel":     {ID: "rel", Attrs: map[string]any{host.AttrOriginalName: "Family"}},
	}}
	r := New(h)
	ctx := context.Background()

	for id, want := range map[string]int{"typed": 30, "titled": 21, "content": 7} {
		n, ok := r.Int(ctx, map[string]any{"frequency": host.Ref{ID: id}}, FieldFrequency)
		require.True(t, ok, id)
		assert.Equal(t, want, n, id)
	}

	s, ok := r.String(ctx, map[string]any{"relationship": host.Ref{ID: "rel"}}, FieldRelationship)
	require.True(t, ok)
	assert.Equal(t, "Family", s)
}

func TestResolutionIsSequentialPerReference(t *testing.T) {
	h := &refHost{records: map[string]*host.Record{
		"d": {ID: "d", Attrs: map[string]any{host.AttrJournalDay: 20240101}},
	}}
	r := New(h)
	rec := host.Record{
		ID:    "p",
		Attrs: map[string]any{host.AttrTitle: "Carol"},
		Properties: map[string]any{
			"birthday":     host.Ref{ID: "d"},
			"last-contact": host.Ref{ID: "d"},
		},
	}
	_, ok := r.Person(context.Background(), rec)
	require.True(t, ok)
	assert.Equal(t, []string{"d", "d"}, h.calls)
}

func TestDirectTimestamp(t *testing.T) {
	loc := time.FixedZone("X", 0)
	r := New(nil, WithLocation(loc))
	ms := time.Date(1990, time.June, 2, 9, 0, 0, 0, loc).UnixMilli()

	got, ok := r.Date(context.Background(), map[string]any{"birthday": float64(ms)}, FieldBirthday)
	require.True(t, ok)
	assert.Equal(t, model.NewDate(1990, time.June, 2), got)
}

func TestRefHostErrorsAreSwallowed(t *testing.T) {
	r := New(&refHost{})
	_, ok := r.Int(context.Background(), map[string]any{"frequency": host.Ref{ID: "x"}}, FieldFrequency)
	assert.False(t, ok)
}
