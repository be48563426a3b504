package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"peoplecal/internal/model"
	"peoplecal/internal/task"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestAddRejectsBadSchedules(t *testing.T) {
	s := New(time.UTC)
	assert.Error(t, s.Add("empty", "", func(context.Context) error { return nil }))
	assert.Error(t, s.Add("bad", "not a cron", func(context.Context) error { return nil }))

	require.NoError(t, s.Add("daily", "0 8 * * *", func(context.Context) error { return nil }))
	assert.Error(t, s.Add("daily", "0 9 * * *", func(context.Context) error { return nil }))
}

func TestNextUsesLocation(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	s := New(loc)
	require.NoError(t, s.Add("daily", "0 8 * * *", func(context.Context) error { return nil }))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		_, ok := s.Next("daily")
		return ok
	}, time.Second, 10*time.Millisecond)
	next, _ := s.Next("daily")
	assert.Equal(t, 8, next.In(loc).Hour())
	assert.Equal(t, 0, next.In(loc).Minute())

	_, ok := s.Next("missing")
	assert.False(t, ok)

	cancel()
	<-done
}

func TestRunExecutesJobsAndStops(t *testing.T) {
	s := New(time.UTC)
	var runs atomic.Int32
	require.NoError(t, s.Add("tick", "@every 1s", func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("logged, not fatal")
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

type fakePeople struct {
	people []model.Person
	err    error
}

func (f fakePeople) People(context.Context) ([]model.Person, error) {
	return f.people, f.err
}

type fakeChecker struct {
	mu     sync.Mutex
	window int
	seen   []model.Person
}

func (f *fakeChecker) CheckReminders(_ context.Context, people []model.Person, windowDays int) task.Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.window = windowDays
	f.seen = people
	return task.Report{Created: []task.Result{{EntryID: "e1", Created: true}}}
}

func TestCheckJob(t *testing.T) {
	ps := []model.Person{{Name: "Alice"}, {Name: "Bob"}}
	checker := &fakeChecker{}

	require.NoError(t, CheckJob(fakePeople{people: ps}, checker, 14)(context.Background()))
	assert.Equal(t, 14, checker.window)
	assert.Equal(t, ps, checker.seen)

	err := CheckJob(fakePeople{err: errors.New("db down")}, checker, 14)(context.Background())
	assert.ErrorContains(t, err, "db down")
}
