// Package scheduler runs periodic jobs, chiefly the birthday reminder check,
// on cron expressions evaluated in the configured timezone.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "peoplecal/internal/log"
	"peoplecal/internal/model"
	"peoplecal/internal/task"
)

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

// Scheduler wraps a cron runner. Jobs run with the context passed to Run.
type Scheduler struct {
	cron *cron.Cron

	mu      sync.Mutex
	ctx     context.Context
	entries map[string]cron.EntryID
}

// New builds a scheduler whose expressions are read in loc. Overlapping
// runs of the same job are skipped.
func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	logger := cronLogger{}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		ctx:     context.Background(),
		entries: make(map[string]cron.EntryID),
	}
}

// Add registers job under name. Registering a name twice is an error.
func (s *Scheduler) Add(name, spec string, job Job) error {
	if spec == "" {
		return fmt.Errorf("job %q has no schedule", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("job %q already registered", name)
	}
	id, err := s.cron.AddFunc(spec, func() { s.run(name, job) })
	if err != nil {
		return fmt.Errorf("invalid cron expression for %q: %w", name, err)
	}
	s.entries[name] = id
	appLog.Info("scheduler: job registered", "job", name, "schedule", spec)
	return nil
}

// Next reports when the named job fires next.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	next := s.cron.Entry(id).Next
	return next, !next.IsZero()
}

// Run starts the cron loop and blocks until ctx is done, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	n := len(s.entries)
	s.mu.Unlock()

	s.cron.Start()
	appLog.Info("scheduler started", "jobs", n)

	<-ctx.Done()
	<-s.cron.Stop().Done()
	appLog.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) run(name string, job Job) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	start := time.Now()
	if err := job(ctx); err != nil && !errors.Is(err, context.Canceled) {
		appLog.Error("scheduler: job failed", err, "job", name)
		return
	}
	appLog.Debug("scheduler: job finished", "job", name, "elapsed", time.Since(start))
}

// PeopleSource lists every person record.
type PeopleSource interface {
	People(ctx context.Context) ([]model.Person, error)
}

// TaskChecker creates birthday tasks for a window.
type TaskChecker interface {
	CheckReminders(ctx context.Context, people []model.Person, windowDays int) task.Report
}

// CheckJob loads people and creates the birthday tasks due within
// windowDays.
func CheckJob(src PeopleSource, checker TaskChecker, windowDays int) Job {
	return func(ctx context.Context) error {
		people, err := src.People(ctx)
		if err != nil {
			return fmt.Errorf("loading people: %w", err)
		}
		rep := checker.CheckReminders(ctx, people, windowDays)
		appLog.Info("scheduler: reminder check done",
			"people", len(people),
			"created", len(rep.Created),
			"existing", len(rep.Existed),
			"failed", len(rep.Failed),
		)
		return nil
	}
}

// cronLogger forwards cron's own logging to appLog.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}
