// Package task runs the recurring birthday-task lifecycle:
//
//	NoTask -> Scheduled -> Completed -> Scheduled (next year) -> ...
//
// All state lives in the host as dated task entries; nothing is kept in
// memory between runs.
package task

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"peoplecal/internal/calendar"
	"peoplecal/internal/dateparse"
	"peoplecal/internal/host"
	appLog "peoplecal/internal/log"
	"peoplecal/internal/model"
	"peoplecal/internal/resolve"
)

// State of one person/occurrence pair as observed in the host.
type State int

const (
	StateNoTask State = iota
	StateScheduled
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateScheduled:
		return "scheduled"
	case StateCompleted:
		return "completed"
	default:
		return "no-task"
	}
}

// birthdayTaskPattern matches "[[Name]]'s Birthday" with a straight or
// curly apostrophe anywhere in the content.
var birthdayTaskPattern = regexp.MustCompile(`\[\[([^\[\]]+)\]\]['’]s Birthday`)

// ParseBirthdayTask extracts the person name from a birthday task's content.
func ParseBirthdayTask(content string) (string, bool) {
	m := birthdayTaskPattern.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	name := strings.TrimSpace(m[1])
	return name, name != ""
}

// StateOf classifies an entry. Entries that are not birthday tasks, and a
// nil entry, report StateNoTask.
func StateOf(e *host.Entry) State {
	if e == nil {
		return StateNoTask
	}
	if _, ok := ParseBirthdayTask(e.Content); !ok {
		return StateNoTask
	}
	if IsDone(*e) {
		return StateCompleted
	}
	return StateScheduled
}

// IsDone reports whether the entry's task marker is DONE.
func IsDone(e host.Entry) bool {
	if e.Marker != "" {
		return strings.EqualFold(e.Marker, host.MarkerDone)
	}
	marker, _ := host.SplitMarker(e.Content)
	return marker == host.MarkerDone
}

// Config tunes a Lifecycle.
type Config struct {
	// TaskTag classifies created entries as tasks.
	TaskTag string
	// DateFormat is the Go layout used to name date containers.
	DateFormat string
	// SettleDelay postpones completion handling so the triggering write can
	// settle. Zero handles completions inline.
	SettleDelay time.Duration
	// Dedupe skips creation when the container already holds a birthday
	// task for the same person.
	Dedupe bool
}

// DefaultConfig matches the config file defaults.
func DefaultConfig() Config {
	return Config{
		TaskTag:     "task",
		DateFormat:  "2006-01-02",
		SettleDelay: 500 * time.Millisecond,
		Dedupe:      true,
	}
}

// Result describes one creation attempt.
type Result struct {
	Task    model.BirthdayTask
	EntryID string
	// Created is false when an existing task was found.
	Created bool
}

// Lifecycle creates birthday tasks and reacts to their completion.
type Lifecycle struct {
	host     host.Host
	resolver *resolve.Resolver
	clock    calendar.Clock
	cfg      Config

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

// New builds a Lifecycle.
func New(h host.Host, r *resolve.Resolver, clock calendar.Clock, cfg Config) *Lifecycle {
	if cfg.TaskTag == "" {
		cfg.TaskTag = DefaultConfig().TaskTag
	}
	if cfg.DateFormat == "" {
		cfg.DateFormat = DefaultConfig().DateFormat
	}
	return &Lifecycle{
		host:     h,
		resolver: r,
		clock:    clock,
		cfg:      cfg,
		pending:  make(map[string]*time.Timer),
	}
}

// ContainerName is the name of the date container for d.
func (l *Lifecycle) ContainerName(d model.Date) string {
	return d.Time(time.UTC).Format(l.cfg.DateFormat)
}

// Schedule moves a person from NoTask to Scheduled: a task is created on
// the next occurrence of birthday strictly after today.
func (l *Lifecycle) Schedule(ctx context.Context, name string, birthday model.Date) (Result, error) {
	occ := calendar.NextOccurrenceDate(birthday, l.clock.Today())
	return l.ScheduleAt(ctx, name, occ)
}

// ScheduleAt creates the birthday task for name in the container of occ.
func (l *Lifecycle) ScheduleAt(ctx context.Context, name string, occ model.Date) (Result, error) {
	t := model.BirthdayTask{PersonName: strings.TrimSpace(name), Occurrence: occ}
	res := Result{Task: t}
	if t.PersonName == "" {
		return res, errors.New("task: person name is empty")
	}
	if !occ.Valid() {
		return res, fmt.Errorf("task: invalid occurrence %s", occ)
	}

	container, err := l.ensureContainer(ctx, occ)
	if err != nil {
		return res, fmt.Errorf("locating container for %s: %w", occ, err)
	}

	if l.cfg.Dedupe {
		if existing, ok := l.findExisting(ctx, container.ID, t.PersonName); ok {
			appLog.Debug("task: birthday task already exists", "person", t.PersonName, "date", occ.String(), "entry_id", existing.ID)
			res.EntryID = existing.ID
			return res, nil
		}
	}

	entry, err := l.host.AppendEntry(ctx, container.ID, host.MarkerTodo+" "+t.Text())
	if err != nil {
		return res, fmt.Errorf("appending task for %q: %w", t.PersonName, err)
	}
	res.EntryID = entry.ID
	if err := l.host.TagEntry(ctx, entry.ID, l.cfg.TaskTag); err != nil {
		return res, fmt.Errorf("tagging task for %q: %w", t.PersonName, err)
	}
	res.Created = true

	appLog.Info("task: birthday task scheduled", "person", t.PersonName, "date", occ.String(), "entry_id", entry.ID)
	return res, nil
}

func (l *Lifecycle) ensureContainer(ctx context.Context, d model.Date) (*host.Record, error) {
	name := l.ContainerName(d)
	rec, err := l.host.FindRecordByName(ctx, name)
	if err == nil && rec != nil {
		return rec, nil
	}
	if err != nil && !errors.Is(err, host.ErrNotFound) {
		return nil, err
	}
	return l.host.CreateRecord(ctx, name, host.CreateOptions{JournalDay: d.JournalDay()})
}

func (l *Lifecycle) findExisting(ctx context.Context, containerID, name string) (host.Entry, bool) {
	lister, ok := l.host.(host.EntryLister)
	if !ok {
		return host.Entry{}, false
	}
	entries, err := lister.ListEntries(ctx, containerID)
	if err != nil {
		appLog.Error("task: listing entries failed; creating anyway", err, "container_id", containerID)
		return host.Entry{}, false
	}
	for _, e := range entries {
		if n, ok := ParseBirthdayTask(e.Content); ok && strings.EqualFold(n, name) {
			return e, true
		}
	}
	return host.Entry{}, false
}

// Report summarizes a CheckReminders run.
type Report struct {
	Created []Result
	Existed []Result
	Failed  []string
}

// CheckReminders creates tasks for every birthday inside the window. The
// task goes on the upcoming occurrence, today included. A failure for one
// person is logged and the run continues.
func (l *Lifecycle) CheckReminders(ctx context.Context, people []model.Person, windowDays int) Report {
	var rep Report
	today := l.clock.Today()
	for _, p := range people {
		if p.Birthday == nil {
			continue
		}
		daysUntil := calendar.DaysUntilNextOccurrence(*p.Birthday, today)
		if daysUntil > windowDays {
			continue
		}
		occ := model.DateOf(today.Time(time.UTC).AddDate(0, 0, daysUntil))
		res, err := l.ScheduleAt(ctx, p.Name, occ)
		if err != nil {
			appLog.Error("task: scheduling failed", err, "person", p.Name)
			rep.Failed = append(rep.Failed, p.Name)
			continue
		}
		if res.Created {
			rep.Created = append(rep.Created, res)
		} else {
			rep.Existed = append(rep.Existed, res)
		}
	}
	appLog.Info("task: reminder check finished",
		"created", len(rep.Created), "existed", len(rep.Existed), "failed", len(rep.Failed))
	return rep
}

// Subscribe attaches HandleChanges to the host's change notifications.
func (l *Lifecycle) Subscribe() (unsubscribe func()) {
	return l.host.OnChange(l.HandleChanges)
}

// HandleChanges reacts to completed birthday tasks by scheduling the
// following year's task. Other entries are ignored.
func (l *Lifecycle) HandleChanges(ctx context.Context, changed []host.Entry) {
	for _, e := range changed {
		if StateOf(&e) != StateCompleted {
			continue
		}
		name, _ := ParseBirthdayTask(e.Content)
		if l.cfg.SettleDelay <= 0 {
			l.complete(ctx, e, name)
			continue
		}
		l.debounce(context.WithoutCancel(ctx), e, name)
	}
}

// debounce delays handling per entry: a repeated notification for the same entry
// restarts its timer.
func (l *Lifecycle) debounce(ctx context.Context, e host.Entry, name string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if t, ok := l.pending[e.ID]; ok && t.Stop() {
		l.wg.Done()
	}
	l.wg.Add(1)
	l.pending[e.ID] = time.AfterFunc(l.cfg.SettleDelay, func() {
		defer l.wg.Done()
		l.mu.Lock()
		delete(l.pending, e.ID)
		l.mu.Unlock()
		l.complete(ctx, e, name)
	})
}

// Wait blocks until all debounced completions have been handled.
func (l *Lifecycle) Wait() {
	l.wg.Wait()
}

// complete schedules the task one year after the completed occurrence.
func (l *Lifecycle) complete(ctx context.Context, e host.Entry, name string) {
	year := l.completedYear(ctx, e)

	rec, err := l.host.FindRecordByName(ctx, name)
	if err != nil {
		appLog.Error("task: person for completed task not found", err, "person", name, "entry_id", e.ID)
		return
	}
	birthday, ok := l.resolver.Date(ctx, rec.Properties, resolve.FieldBirthday)
	if !ok {
		appLog.Error("task: person has no birthday", errors.New("birthday unknown"), "person", name)
		return
	}

	next := calendar.OccurrenceInYear(birthday, year+1)
	if _, err := l.ScheduleAt(ctx, rec.Title(), next); err != nil {
		appLog.Error("task: rescheduling failed", err, "person", name, "date", next.String())
	}
}

// completedYear is the year of the completed task's container, or the
// current year when the container carries no date.
func (l *Lifecycle) completedYear(ctx context.Context, e host.Entry) int {
	if e.ContainerID != "" {
		rec, err := l.host.ResolveReference(ctx, e.ContainerID)
		if err == nil && rec != nil {
			if d, ok := dateparse.ParseJournalDay(rec.JournalDay()); ok {
				return d.Year
			}
			if d, ok := dateparse.ParseString(rec.Title()); ok {
				return d.Year
			}
		} else {
			appLog.Debug("task: container lookup failed", "container_id", e.ContainerID, "err", err)
		}
	}
	return l.clock.Today().Year
}
