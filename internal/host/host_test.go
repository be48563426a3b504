package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordTitlePrefersOriginalName(t *testing.T) {
	r := &Record{Attrs: map[string]any{
		AttrName:         "alice",
		AttrOriginalName: "Alice",
	}}
	assert.Equal(t, "Alice", r.Title())

	r = &Record{Attrs: map[string]any{AttrTitle: "  Bob "}}
	assert.Equal(t, "Bob", r.Title())

	var nilRec *Record
	assert.Equal(t, "", nilRec.Title())
}

func TestRecordJournalDay(t *testing.T) {
	for _, v := range []any{20240601, int64(20240601), float64(20240601), "20240601"} {
		r := &Record{Attrs: map[string]any{AttrJournalDay: v}}
		assert.Equal(t, 20240601, r.JournalDay())
	}
	assert.Equal(t, 0, (&Record{}).JournalDay())
}

func TestSplitMarker(t *testing.T) {
	m, rest := SplitMarker("DONE [[Alice]]'s Birthday")
	assert.Equal(t, MarkerDone, m)
	assert.Equal(t, "[[Alice]]'s Birthday", rest)

	m, rest = SplitMarker("TODOS are fun")
	assert.Equal(t, "", m)
	assert.Equal(t, "TODOS are fun", rest)
}
