// Package people implements the user-facing write operations on person
// records: creating a person, logging a contact, and setting a birthday.
//
// Validation problems are reported as a Result rather than an error so that
// callers can show the message directly.
package people

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"peoplecal/internal/calendar"
	"peoplecal/internal/dateparse"
	"peoplecal/internal/host"
	appLog "peoplecal/internal/log"
	"peoplecal/internal/model"
	"peoplecal/internal/resolve"
	"peoplecal/internal/task"
)

var (
	ErrNameRequired   = errors.New("name is required")
	ErrDuplicateName  = errors.New("a person with this name already exists")
	ErrUnknownPerson  = errors.New("person not found")
	ErrInvalidDate    = errors.New("date not recognised")
	ErrInvalidCadence = errors.New("contact frequency must be a positive number of days")
)

// Result is returned by every write operation.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	// Err is the underlying cause on failure; it is not serialized.
	Err error `json:"-"`
	// Person is the record name the operation applied to.
	Person string `json:"person,omitempty"`
}

func succeeded(name, msg string) Result {
	return Result{Success: true, Person: name, Message: msg}
}

func failed(err error) Result {
	return Result{Success: false, Message: err.Error(), Err: err}
}

// Input describes a new person. Date fields accept anything dateparse reads.
type Input struct {
	Name                 string `json:"name"`
	Birthday             string `json:"birthday,omitempty"`
	LastContact          string `json:"last_contact,omitempty"`
	ContactFrequencyDays int    `json:"contact_frequency,omitempty"`
	Relationship         string `json:"relationship,omitempty"`
	Email                string `json:"email,omitempty"`
}

// Service performs writes against the host.
type Service struct {
	host      host.Host
	resolver  *resolve.Resolver
	tasks     *task.Lifecycle
	clock     calendar.Clock
	personTag string
}

// NewService wires a Service. tasks may be nil to skip task scheduling.
func NewService(h host.Host, r *resolve.Resolver, tasks *task.Lifecycle, clock calendar.Clock, personTag string) *Service {
	return &Service{host: h, resolver: r, tasks: tasks, clock: clock, personTag: personTag}
}

// Create validates in, creates the person record with its properties and,
// when a birthday is given, schedules the first birthday task.
func (s *Service) Create(ctx context.Context, in Input) Result {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return failed(ErrNameRequired)
	}

	var birthday, lastContact *model.Date
	if in.Birthday != "" {
		d, ok := dateparse.ParseString(in.Birthday)
		if !ok {
			return failed(fmt.Errorf("birthday %q: %w", in.Birthday, ErrInvalidDate))
		}
		birthday = &d
	}
	if in.LastContact != "" {
		d, ok := dateparse.ParseString(in.LastContact)
		if !ok {
			return failed(fmt.Errorf("last contact %q: %w", in.LastContact, ErrInvalidDate))
		}
		lastContact = &d
	}
	if in.ContactFrequencyDays < 0 {
		return failed(ErrInvalidCadence)
	}

	if _, err := s.host.FindRecordByName(ctx, name); err == nil {
		return failed(fmt.Errorf("%q: %w", name, ErrDuplicateName))
	} else if !errors.Is(err, host.ErrNotFound) {
		appLog.Error("people: lookup failed", err, "person", name)
		return failed(err)
	}

	rec, err := s.host.CreateRecord(ctx, name, host.CreateOptions{Tags: []string{s.personTag}})
	if err != nil {
		appLog.Error("people: create failed", err, "person", name)
		return failed(err)
	}

	props := []struct {
		key   string
		value any
		set   bool
	}{
		{resolve.FieldBirthday.Name, dateString(birthday), birthday != nil},
		{resolve.FieldLastContact.Name, dateString(lastContact), lastContact != nil},
		{resolve.FieldFrequency.Name, in.ContactFrequencyDays, in.ContactFrequencyDays > 0},
		{resolve.FieldRelationship.Name, strings.TrimSpace(in.Relationship), strings.TrimSpace(in.Relationship) != ""},
		{resolve.FieldEmail.Name, strings.TrimSpace(in.Email), strings.TrimSpace(in.Email) != ""},
	}
	for _, p := range props {
		if !p.set {
			continue
		}
		if err := s.host.SetProperty(ctx, rec.ID, p.key, p.value); err != nil {
			appLog.Error("people: setting property failed", err, "person", name, "key", p.key)
			return failed(fmt.Errorf("setting %s: %w", p.key, err))
		}
	}

	appLog.Info("people: person created", "person", name, "id", rec.ID)
	if birthday != nil {
		s.schedule(ctx, name, *birthday)
	}
	return succeeded(name, fmt.Sprintf("Added %s", name))
}

// LogContact records that the person was contacted on the given date
// (today when date is empty).
func (s *Service) LogContact(ctx context.Context, name, date string) Result {
	rec, res := s.find(ctx, name)
	if rec == nil {
		return res
	}
	when := s.clock.Today()
	if strings.TrimSpace(date) != "" {
		d, ok := dateparse.ParseString(date)
		if !ok {
			return failed(fmt.Errorf("contact date %q: %w", date, ErrInvalidDate))
		}
		when = d
	}
	if err := s.host.SetProperty(ctx, rec.ID, resolve.FieldLastContact.Name, when.String()); err != nil {
		appLog.Error("people: logging contact failed", err, "person", rec.Title())
		return failed(err)
	}
	return succeeded(rec.Title(), fmt.Sprintf("Logged contact with %s on %s", rec.Title(), when))
}

// SetBirthday updates the birthday and schedules the next birthday task.
func (s *Service) SetBirthday(ctx context.Context, name, birthday string) Result {
	rec, res := s.find(ctx, name)
	if rec == nil {
		return res
	}
	d, ok := dateparse.ParseString(birthday)
	if !ok {
		return failed(fmt.Errorf("birthday %q: %w", birthday, ErrInvalidDate))
	}
	if err := s.host.SetProperty(ctx, rec.ID, resolve.FieldBirthday.Name, d.String()); err != nil {
		appLog.Error("people: setting birthday failed", err, "person", rec.Title())
		return failed(err)
	}
	s.schedule(ctx, rec.Title(), d)
	return succeeded(rec.Title(), fmt.Sprintf("Birthday of %s set to %s", rec.Title(), d))
}

// SetContactFrequency updates the contact cadence.
func (s *Service) SetContactFrequency(ctx context.Context, name string, days int) Result {
	if days <= 0 {
		return failed(ErrInvalidCadence)
	}
	rec, res := s.find(ctx, name)
	if rec == nil {
		return res
	}
	if err := s.host.SetProperty(ctx, rec.ID, resolve.FieldFrequency.Name, days); err != nil {
		appLog.Error("people: setting frequency failed", err, "person", rec.Title())
		return failed(err)
	}
	return succeeded(rec.Title(), fmt.Sprintf("Contact %s every %d days", rec.Title(), days))
}

// Get resolves one person by name.
func (s *Service) Get(ctx context.Context, name string) (model.Person, Result) {
	rec, res := s.find(ctx, name)
	if rec == nil {
		return model.Person{}, res
	}
	p, ok := s.resolver.Person(ctx, *rec)
	if !ok {
		return model.Person{}, failed(fmt.Errorf("%q: %w", name, ErrUnknownPerson))
	}
	return p, succeeded(p.Name, "")
}

func (s *Service) find(ctx context.Context, name string) (*host.Record, Result) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, failed(ErrNameRequired)
	}
	rec, err := s.host.FindRecordByName(ctx, name)
	if errors.Is(err, host.ErrNotFound) {
		return nil, failed(fmt.Errorf("%q: %w", name, ErrUnknownPerson))
	}
	if err != nil {
		appLog.Error("people: lookup failed", err, "person", name)
		return nil, failed(err)
	}
	return rec, Result{}
}

// schedule creates the birthday task; a failure is logged and does not
// undo the write that triggered it.
func (s *Service) schedule(ctx context.Context, name string, birthday model.Date) {
	if s.tasks == nil {
		return
	}
	if _, err := s.tasks.Schedule(ctx, name, birthday); err != nil {
		appLog.Error("people: scheduling birthday task failed", err, "person", name)
	}
}

func dateString(d *model.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}
