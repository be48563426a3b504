package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"peoplecal/internal/host"
	"peoplecal/internal/ics"
	"peoplecal/internal/model"
	"peoplecal/internal/people"
	"peoplecal/internal/reminder"
	"peoplecal/internal/task"
	"peoplecal/internal/view"
)

// render derives a fresh snapshot and prints one screen.
func render(cmd *cobra.Command, st *state, screen view.Screen, window int) error {
	a, err := st.open()
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := a.reminders.Snapshot(cmd.Context())
	if err != nil {
		return err
	}
	if window < 0 {
		window = a.cfg.Reminders.WindowDays
	}
	data := view.Data{
		Today:      snap.Today,
		WindowDays: window,
		Birthdays:  snap.Birthdays,
		Contacts:   snap.Contacts,
	}
	if window != a.cfg.Reminders.WindowDays {
		data.Birthdays = reminder.DeriveBirthdayReminders(snap.People, window, snap.Today)
	}
	if screen == view.ScreenAgenda {
		to := model.DateOf(snap.Today.Time(time.UTC).AddDate(0, 0, window))
		data.Agenda = ics.Occurrences(snap.People, snap.Today, to)
	}
	fmt.Fprintln(cmd.OutOrStdout(), view.Render(screen, data))
	return nil
}

func birthdaysCmd(st *state) *cobra.Command {
	var window int
	cmd := &cobra.Command{
		Use:   "birthdays",
		Short: "List upcoming birthdays",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return render(cmd, st, view.ScreenBirthdays, window)
		},
	}
	cmd.Flags().IntVarP(&window, "window", "w", -1, "Days ahead to look (default from config)")
	return cmd
}

func contactsCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "contacts",
		Short: "List people due for contact, most overdue first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return render(cmd, st, view.ScreenContacts, -1)
		},
	}
}

func agendaCmd(st *state) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "agenda",
		Short: "Show birthdays by date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return render(cmd, st, view.ScreenAgenda, days)
		},
	}
	cmd.Flags().IntVarP(&days, "days", "d", 90, "Days ahead to show")
	return cmd
}

// report prints a people.Result and turns a failure into an error.
func report(cmd *cobra.Command, res people.Result) error {
	if !res.Success {
		if res.Err != nil {
			return res.Err
		}
		return errors.New(res.Message)
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Message)
	return nil
}

func addCmd(st *state) *cobra.Command {
	var in people.Input
	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Add a person",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := st.open()
			if err != nil {
				return err
			}
			defer a.Close()

			in.Name = strings.Join(args, " ")
			return report(cmd, a.people.Create(cmd.Context(), in))
		},
	}
	cmd.Flags().StringVarP(&in.Birthday, "birthday", "b", "", "Birthday, e.g. 1990-06-02 or \"June 2, 1990\"")
	cmd.Flags().StringVar(&in.LastContact, "last-contact", "", "Date of the last contact")
	cmd.Flags().IntVarP(&in.ContactFrequencyDays, "every", "e", 0, "Contact every N days")
	cmd.Flags().StringVarP(&in.Relationship, "relationship", "r", "", "Relationship, e.g. friend")
	cmd.Flags().StringVar(&in.Email, "email", "", "Email address")
	return cmd
}

func contactCmd(st *state) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "contact NAME",
		Short: "Record that you contacted someone (today unless --date)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := st.open()
			if err != nil {
				return err
			}
			defer a.Close()
			return report(cmd, a.people.LogContact(cmd.Context(), strings.Join(args, " "), date))
		},
	}
	cmd.Flags().StringVarP(&date, "date", "d", "", "Date of the contact")
	return cmd
}

func birthdayCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "birthday NAME DATE",
		Short: "Set someone's birthday and schedule the next birthday task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := st.open()
			if err != nil {
				return err
			}
			defer a.Close()
			return report(cmd, a.people.SetBirthday(cmd.Context(), args[0], args[1]))
		},
	}
}

func everyCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "every NAME DAYS",
		Short: "Set how often to contact someone",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			days, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("days must be a number: %w", err)
			}
			a, err := st.open()
			if err != nil {
				return err
			}
			defer a.Close()
			return report(cmd, a.people.SetContactFrequency(cmd.Context(), args[0], days))
		},
	}
}

func checkCmd(st *state) *cobra.Command {
	var window int
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Create birthday tasks for birthdays inside the window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := st.open()
			if err != nil {
				return err
			}
			defer a.Close()

			if window < 0 {
				window = a.cfg.Reminders.WindowDays
			}
			ps, err := a.reminders.People(cmd.Context())
			if err != nil {
				return err
			}
			rep := a.tasks.CheckReminders(cmd.Context(), ps, window)

			out := cmd.OutOrStdout()
			printTasks(out, "created", rep.Created)
			printTasks(out, "exists ", rep.Existed)
			for _, name := range rep.Failed {
				fmt.Fprintf(out, "failed   %s\n", name)
			}
			if len(rep.Failed) > 0 {
				return fmt.Errorf("%d task(s) could not be created", len(rep.Failed))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&window, "window", "w", -1, "Days ahead to look (default from config)")
	return cmd
}

func printTasks(w io.Writer, label string, results []task.Result) {
	for _, r := range results {
		fmt.Fprintf(w, "%s  %s  %s  %s\n", label, r.Task.Occurrence, r.EntryID, r.Task.Text())
	}
}

func doneCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "done ENTRY_ID",
		Short: "Complete a task; a birthday task is rescheduled for next year",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := st.open()
			if err != nil {
				return err
			}
			defer a.Close()

			unsubscribe := a.tasks.Subscribe()
			defer unsubscribe()

			e, err := a.store.SetMarker(cmd.Context(), args[0], host.MarkerDone)
			if err != nil {
				return fmt.Errorf("completing %s: %w", args[0], err)
			}
			a.tasks.Wait()
			fmt.Fprintln(cmd.OutOrStdout(), e.Content)
			return nil
		},
	}
}

func importCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "import [FILE|URL...]",
		Short: "Import birthdays from calendar feeds (configured imports when none given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := st.open()
			if err != nil {
				return err
			}
			defer a.Close()

			srcs := a.sources(args)
			if len(srcs) == 0 {
				return errors.New("no sources given and none configured")
			}
			rep, err := a.importer.Run(cmd.Context(), srcs)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "created %d, updated %d, unchanged %d, failed %d\n",
				len(rep.Created), len(rep.Updated), len(rep.Unchanged), len(rep.Failed))
			return err
		},
	}
}

func exportCmd(st *state) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a birthday calendar (ICS)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := st.open()
			if err != nil {
				return err
			}
			defer a.Close()

			ps, err := a.reminders.People(cmd.Context())
			if err != nil {
				return err
			}
			body := ics.Export(ps, ics.ExportOptions{})
			if output == "" || output == "-" {
				_, err = io.WriteString(cmd.OutOrStdout(), body)
				return err
			}
			return os.WriteFile(output, []byte(body), 0o600)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (stdout when empty)")
	return cmd
}
