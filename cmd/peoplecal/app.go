package main

import (
	"context"
	"path/filepath"
	"time"

	"peoplecal/internal/calendar"
	"peoplecal/internal/config"
	"peoplecal/internal/ics"
	appLog "peoplecal/internal/log"
	"peoplecal/internal/people"
	"peoplecal/internal/reminder"
	"peoplecal/internal/resolve"
	"peoplecal/internal/scheduler"
	"peoplecal/internal/store"
	"peoplecal/internal/task"
)

// app is the wired object graph shared by every subcommand.
type app struct {
	cfg       *config.Config
	store     *store.Store
	clock     calendar.Clock
	resolver  *resolve.Resolver
	reminders *reminder.Service
	people    *people.Service
	tasks     *task.Lifecycle
	importer  *ics.Importer
}

func (st *state) open() (*app, error) {
	return newApp(st.cfg)
}

func newApp(cfg *config.Config) (*app, error) {
	s, err := store.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	loc := resolveLocationOrLocal(cfg)
	clock := calendar.NewClock(loc)
	r := resolve.New(s, resolve.WithLocation(loc))

	lc := task.New(s, r, clock, task.Config{
		TaskTag:     cfg.Tasks.TaskTag,
		DateFormat:  cfg.Tasks.DateFormat,
		SettleDelay: cfg.Tasks.SettleDelay,
		Dedupe:      cfg.Tasks.DedupeEnabled(),
	})
	policy := reminder.Policy{
		WindowDays:           cfg.Reminders.WindowDays,
		OverdueThresholdDays: cfg.Reminders.OverdueThresholdDays,
	}
	ps := people.NewService(s, r, lc, clock, cfg.PersonTag)

	return &app{
		cfg:       cfg,
		store:     s,
		clock:     clock,
		resolver:  r,
		reminders: reminder.NewService(s, r, clock, cfg.PersonTag, policy),
		people:    ps,
		tasks:     lc,
		importer:  ics.NewImporter(ics.NewFetcher(filepath.Join(cfg.DataDir, "ics-cache")), ps),
	}, nil
}

// Close waits for pending completion handling, then closes the store.
func (a *app) Close() error {
	a.tasks.Wait()
	return a.store.Close()
}

// sources turns CLI arguments, or the configured imports when there are
// none, into feed sources.
func (a *app) sources(args []string) []ics.Source {
	out := make([]ics.Source, 0)
	if len(args) > 0 {
		for _, arg := range args {
			out = append(out, ics.Source{ID: filepath.Base(arg), URL: arg})
		}
		return out
	}
	for _, c := range a.cfg.Imports {
		if c.URL == "" {
			continue
		}
		id := c.ID
		if id == "" {
			if c.Name != "" {
				id = c.Name
			} else {
				id = c.URL
			}
		}
		out = append(out, ics.Source{ID: id, URL: c.URL})
	}
	return out
}

// refresh imports the configured feeds, then creates the birthday tasks
// due within the window.
func (a *app) refresh(ctx context.Context) error {
	if srcs := a.sources(nil); len(srcs) > 0 {
		if _, err := a.importer.Run(ctx, srcs); err != nil {
			appLog.Error("refresh: import had failures", err, "sources", len(srcs))
		}
	}
	return scheduler.CheckJob(a.reminders, a.tasks, a.cfg.Reminders.WindowDays)(ctx)
}

func resolveLocationOrLocal(cfg *config.Config) *time.Location {
	loc, err := cfg.Location()
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", cfg.Timezone)
	}
	return loc
}
