package reminder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peoplecal/internal/calendar"
	"peoplecal/internal/host"
	"peoplecal/internal/model"
	"peoplecal/internal/resolve"
	"peoplecal/internal/store"
)

var today = model.NewDate(2024, time.June, 1)

func date(y int, m time.Month, d int) *model.Date {
	v := model.NewDate(y, m, d)
	return &v
}

func days(n int) *int { return &n }

func ago(n int) *model.Date {
	v := model.DateOf(today.Time(time.UTC).AddDate(0, 0, -n))
	return &v
}

func TestDeriveBirthdayReminders(t *testing.T) {
	people := []model.Person{
		{ID: "1", Name: "Later", Birthday: date(1990, time.June, 20)},
		{ID: "2", Name: "NoBirthday"},
		{ID: "3", Name: "Today", Birthday: date(1990, time.June, 1)},
		{ID: "4", Name: "Tomorrow", Birthday: date(1990, time.June, 2)},
		{ID: "5", Name: "Yesterday", Birthday: date(1990, time.May, 31)},
		{ID: "6", Name: "AlsoLater", Birthday: date(2000, time.June, 20)},
	}

	got := DeriveBirthdayReminders(people, 30, today)

	names := make([]string, 0, len(got))
	for _, r := range got {
		names = append(names, r.Person.Name)
		assert.LessOrEqual(t, r.DaysUntil, 30)
		assert.NotNil(t, r.Person.Birthday)
	}
	assert.Equal(t, []string{"Today", "Tomorrow", "Later", "AlsoLater"}, names)

	require.NotNil(t, got[0].Age)
	assert.Equal(t, 34, *got[0].Age)
	require.NotNil(t, got[1].Age)
	assert.Equal(t, 34, *got[1].Age)
	assert.Equal(t, 19, got[2].DaysUntil)
	assert.Equal(t, 24, *got[3].Age)
}

func TestDeriveBirthdayRemindersSortedAscending(t *testing.T) {
	var people []model.Person
	for i := 0; i < 40; i++ {
		b := model.DateOf(today.Time(time.UTC).AddDate(-30, 0, (i*37)%365))
		people = append(people, model.Person{Name: b.String(), Birthday: &b})
	}
	got := DeriveBirthdayReminders(people, 60, today)
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].DaysUntil, got[i].DaysUntil)
	}
}

func TestDeriveBirthdayReminderUnknownAgeForFutureBirthYear(t *testing.T) {
	people := []model.Person{{Name: "Typo", Birthday: date(2030, time.June, 5)}}
	got := DeriveBirthdayReminders(people, 30, today)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Age)
}

func TestDerivePeopleToContact(t *testing.T) {
	people := []model.Person{
		{Name: "Never", ContactFrequencyDays: days(14)},
		{Name: "Overdue", ContactFrequencyDays: days(14), LastContact: ago(20)},
		{Name: "Recent", ContactFrequencyDays: days(14), LastContact: ago(5)},
		{Name: "NoCadence", LastContact: ago(400)},
		{Name: "Exactly", ContactFrequencyDays: days(7), LastContact: ago(7)},
		{Name: "WayOverdue", ContactFrequencyDays: days(30), LastContact: ago(100)},
	}

	got := DerivePeopleToContact(people, DefaultPolicy(), today)

	byName := map[string]model.ContactReminder{}
	var order []string
	for _, r := range got {
		byName[r.Person.Name] = r
		order = append(order, r.Person.Name)
	}

	assert.Equal(t, []string{"WayOverdue", "Never", "Overdue", "Exactly"}, order)

	assert.True(t, byName["Never"].NeverContacted)
	assert.Equal(t, 14, byName["Never"].DaysOverdue)
	assert.Equal(t, 6, byName["Overdue"].DaysOverdue)
	assert.Equal(t, 20, byName["Overdue"].DaysSinceContact)
	assert.Equal(t, 0, byName["Exactly"].DaysOverdue)
	assert.NotContains(t, byName, "Recent")
	assert.NotContains(t, byName, "NoCadence")
}

func TestDerivePeopleToContactThresholdKeepsNeverContacted(t *testing.T) {
	people := []model.Person{
		{Name: "Never", ContactFrequencyDays: days(3)},
		{Name: "Slightly", ContactFrequencyDays: days(14), LastContact: ago(16)},
	}
	got := DerivePeopleToContact(people, Policy{OverdueThresholdDays: 5}, today)
	require.Len(t, got, 1)
	assert.Equal(t, "Never", got[0].Person.Name)
}

func TestDerivePeopleToContactStableTies(t *testing.T) {
	people := []model.Person{
		{Name: "A", ContactFrequencyDays: days(10)},
		{Name: "B", ContactFrequencyDays: days(5), LastContact: ago(15)},
		{Name: "C", ContactFrequencyDays: days(10)},
	}
	got := DerivePeopleToContact(people, DefaultPolicy(), today)
	require.Len(t, got, 3)
	assert.Equal(t, "A", got[0].Person.Name)
	assert.Equal(t, "B", got[1].Person.Name)
	assert.Equal(t, "C", got[2].Person.Name)
}

func TestServiceSnapshotIsIdempotent(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	add := func(name string, props map[string]any) {
		rec, err := s.CreateRecord(ctx, name, host.CreateOptions{Tags: []string{"person"}})
		require.NoError(t, err)
		for k, v := range props {
			require.NoError(t, s.SetProperty(ctx, rec.ID, k, v))
		}
	}
	day, err := s.CreateRecord(ctx, "2024-05-12", host.CreateOptions{JournalDay: 20240512})
	require.NoError(t, err)

	add("Alice", map[string]any{"birthday": "1990-06-02", "contact-frequency": 10})
	add("Bob", map[string]any{"user.property/last-contact-x1": host.Ref{ID: day.ID}, "frequency": "7"})
	add("Carol", map[string]any{"birthday": "not a date"})
	_, err = s.CreateRecord(ctx, "Unrelated", host.CreateOptions{})
	require.NoError(t, err)

	svc := NewService(s, resolve.New(s), calendar.FixedClock(today), "person", DefaultPolicy())

	first, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	second, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Len(t, first.People, 3)
	require.Len(t, first.Birthdays, 1)
	assert.Equal(t, "Alice", first.Birthdays[0].Person.Name)
	assert.Equal(t, 1, first.Birthdays[0].DaysUntil)

	require.Len(t, first.Contacts, 2)
	assert.Equal(t, "Bob", first.Contacts[0].Person.Name)
	assert.Equal(t, 20, first.Contacts[0].DaysSinceContact)
	assert.Equal(t, 13, first.Contacts[0].DaysOverdue)
	assert.Equal(t, "Alice", first.Contacts[1].Person.Name)
	assert.True(t, first.Contacts[1].NeverContacted)
}
