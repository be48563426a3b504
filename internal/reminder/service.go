package reminder

import (
	"context"
	"fmt"

	"peoplecal/internal/calendar"
	"peoplecal/internal/host"
	appLog "peoplecal/internal/log"
	"peoplecal/internal/model"
	"peoplecal/internal/resolve"
)

// Snapshot is the result of one derivation pass.
type Snapshot struct {
	Today     model.Date
	People    []model.Person
	Birthdays []model.BirthdayReminder
	Contacts  []model.ContactReminder
}

// Service loads people from the host and derives reminders. It keeps no
// state between passes.
type Service struct {
	host     host.Host
	resolver *resolve.Resolver
	clock    calendar.Clock
	tag      string
	policy   Policy
}

// NewService wires a Service. tag is the classification carried by person records.
func NewService(h host.Host, r *resolve.Resolver, clock calendar.Clock, tag string, policy Policy) *Service {
	return &Service{host: h, resolver: r, clock: clock, tag: tag, policy: policy}
}

// Policy returns the service's policy.
func (s *Service) Policy() Policy { return s.policy }

// Clock returns the service's clock.
func (s *Service) Clock() calendar.Clock { return s.clock }

// People fetches tagged records and resolves them one at a time. Records
// that cannot be turned into a person are skipped.
func (s *Service) People(ctx context.Context) ([]model.Person, error) {
	records, err := s.host.FetchTaggedRecords(ctx, s.tag)
	if err != nil {
		return nil, fmt.Errorf("fetching %q records: %w", s.tag, err)
	}

	people := make([]model.Person, 0, len(records))
	for _, rec := range records {
		p, ok := s.resolver.Person(ctx, rec)
		if !ok {
			continue
		}
		people = append(people, p)
	}
	appLog.Debug("reminder: people resolved", "records", len(records), "people", len(people))
	return people, nil
}

// Snapshot runs one full derivation pass.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	people, err := s.People(ctx)
	if err != nil {
		appLog.Error("reminder: snapshot failed", err, "tag", s.tag)
		return Snapshot{}, err
	}
	return s.Derive(people), nil
}

// Derive computes both reminder lists for an already-resolved snapshot.
func (s *Service) Derive(people []model.Person) Snapshot {
	today := s.clock.Today()
	return Snapshot{
		Today:     today,
		People:    people,
		Birthdays: DeriveBirthdayReminders(people, s.policy.WindowDays, today),
		Contacts:  DerivePeopleToContact(people, s.policy, today),
	}
}
