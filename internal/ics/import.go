package ics

import (
	"context"
	"errors"

	appLog "peoplecal/internal/log"
	"peoplecal/internal/model"
	"peoplecal/internal/people"
)

// PersonWriter is the subset of people.Service the importer needs.
type PersonWriter interface {
	Get(ctx context.Context, name string) (model.Person, people.Result)
	Create(ctx context.Context, in people.Input) people.Result
	SetBirthday(ctx context.Context, name, birthday string) people.Result
}

// ImportReport summarizes one import run.
type ImportReport struct {
	Created   []string `json:"created"`
	Updated   []string `json:"updated"`
	Unchanged []string `json:"unchanged"`
	Failed    []string `json:"failed"`
}

// Apply writes imported birthdays: unknown people are created, known people
// get their birthday set when it differs. Later entries for the same name
// win over earlier ones.
func Apply(ctx context.Context, w PersonWriter, births []ImportedBirthday) ImportReport {
	rep := ImportReport{
		Created:   []string{},
		Updated:   []string{},
		Unchanged: []string{},
		Failed:    []string{},
	}

	for _, b := range births {
		if err := ctx.Err(); err != nil {
			break
		}

		p, res := w.Get(ctx, b.Name)
		switch {
		case res.Success && p.Birthday != nil && *p.Birthday == b.Birthday:
			rep.Unchanged = append(rep.Unchanged, p.Name)

		case res.Success:
			if r := w.SetBirthday(ctx, p.Name, b.Birthday.String()); !r.Success {
				appLog.Error("ics import: update failed", r.Err, "person", p.Name, "source", b.Source.ID)
				rep.Failed = append(rep.Failed, b.Name)
				continue
			}
			rep.Updated = append(rep.Updated, p.Name)

		case errors.Is(res.Err, people.ErrUnknownPerson):
			if r := w.Create(ctx, people.Input{Name: b.Name, Birthday: b.Birthday.String()}); !r.Success {
				appLog.Error("ics import: create failed", r.Err, "person", b.Name, "source", b.Source.ID)
				rep.Failed = append(rep.Failed, b.Name)
				continue
			}
			rep.Created = append(rep.Created, b.Name)

		default:
			appLog.Error("ics import: lookup failed", res.Err, "person", b.Name, "source", b.Source.ID)
			rep.Failed = append(rep.Failed, b.Name)
		}
	}

	appLog.Info("ics import completed",
		"created", len(rep.Created),
		"updated", len(rep.Updated),
		"unchanged", len(rep.Unchanged),
		"failed", len(rep.Failed),
	)
	return rep
}

// Importer fetches configured feeds and applies their birthdays.
type Importer struct {
	fetcher *Fetcher
	writer  PersonWriter
}

func NewImporter(f *Fetcher, w PersonWriter) *Importer {
	return &Importer{fetcher: f, writer: w}
}

// Run imports every source. A source that fails to fetch or parse is logged
// and skipped; the returned error joins those failures.
func (im *Importer) Run(ctx context.Context, sources []Source) (ImportReport, error) {
	results, errs := im.fetcher.FetchAll(ctx, sources)

	var births []ImportedBirthday
	for _, res := range results {
		parsed, err := ParseBirthdays(res.Source, res.Body)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		births = append(births, parsed...)
	}
	return Apply(ctx, im.writer, births), errors.Join(errs...)
}
