// Package view renders reminder lists for the terminal. The screen shown is
// an explicit Screen value and Render is a pure function of it and Data.
package view

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"peoplecal/internal/ics"
	"peoplecal/internal/model"
)

// Screen selects what Render draws.
type Screen int

const (
	ScreenOverview Screen = iota
	ScreenBirthdays
	ScreenContacts
	ScreenAgenda
)

var screenNames = []string{"overview", "birthdays", "contacts", "agenda"}

func (s Screen) String() string {
	if s < 0 || int(s) >= len(screenNames) {
		return fmt.Sprintf("Screen(%d)", int(s))
	}
	return screenNames[s]
}

// Next cycles through the screens in display order.
func (s Screen) Next() Screen {
	return Screen((int(s) + 1) % len(screenNames))
}

// ParseScreen maps a name such as "contacts" to its Screen.
func ParseScreen(name string) (Screen, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ScreenOverview, nil
	}
	for i, n := range screenNames {
		if n == name {
			return Screen(i), nil
		}
	}
	return ScreenOverview, fmt.Errorf("unknown screen %q", name)
}

// Data is everything a screen may show.
type Data struct {
	Today      model.Date
	WindowDays int
	Birthdays  []model.BirthdayReminder
	Contacts   []model.ContactReminder
	Agenda     []ics.Occurrence
}

var (
	styleTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	styleName  = lipgloss.NewStyle().Bold(true)
	styleToday = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	styleWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	styleGray  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Render draws screen s.
func Render(s Screen, d Data) string {
	switch s {
	case ScreenBirthdays:
		return renderBirthdays(d)
	case ScreenContacts:
		return renderContacts(d)
	case ScreenAgenda:
		return renderAgenda(d)
	default:
		return lipgloss.JoinVertical(lipgloss.Left, renderBirthdays(d), "", renderContacts(d))
	}
}

func renderBirthdays(d Data) string {
	title := styleTitle.Render("Upcoming birthdays")
	if d.WindowDays > 0 {
		title += styleGray.Render(fmt.Sprintf(" (next %d days)", d.WindowDays))
	}
	if len(d.Birthdays) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, title, styleGray.Render("  none"))
	}

	width := 0
	for _, r := range d.Birthdays {
		width = max(width, lipgloss.Width(r.Person.Name))
	}

	lines := []string{title}
	for _, r := range d.Birthdays {
		name := styleName.Width(width).Render(r.Person.Name)
		when := styleGray.Render(daysLabel(r.DaysUntil))
		if r.DaysUntil == 0 {
			when = styleToday.Render("today")
		}
		line := "  " + name + "  " + when
		if r.Age != nil {
			line += styleGray.Render(fmt.Sprintf("  turns %d", *r.Age))
		}
		lines = append(lines, line)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderContacts(d Data) string {
	title := styleTitle.Render("People to contact")
	if len(d.Contacts) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, title, styleGray.Render("  all caught up"))
	}

	width := 0
	for _, r := range d.Contacts {
		width = max(width, lipgloss.Width(r.Person.Name))
	}

	lines := []string{title}
	for _, r := range d.Contacts {
		name := styleName.Width(width).Render(r.Person.Name)
		var status string
		switch {
		case r.NeverContacted:
			status = styleWarn.Render("never contacted")
		case r.DaysOverdue == 1:
			status = styleWarn.Render("1 day overdue")
		default:
			status = styleWarn.Render(fmt.Sprintf("%d days overdue", r.DaysOverdue))
		}
		line := "  " + name + "  " + status
		if !r.NeverContacted {
			line += styleGray.Render(fmt.Sprintf("  last contact %s", agoLabel(r.DaysSinceContact)))
		}
		lines = append(lines, line)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderAgenda(d Data) string {
	title := styleTitle.Render("Birthday agenda")
	if len(d.Agenda) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, title, styleGray.Render("  none"))
	}

	lines := []string{title}
	var last model.Date
	for _, o := range d.Agenda {
		if o.Date != last {
			lines = append(lines, styleGray.Render(o.Date.String()))
			last = o.Date
		}
		line := "  " + styleName.Render(o.Person.Name)
		if o.Age != nil {
			line += styleGray.Render(fmt.Sprintf("  turns %d", *o.Age))
		}
		if o.Date == d.Today {
			line += "  " + styleToday.Render("today")
		}
		lines = append(lines, line)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func daysLabel(n int) string {
	switch n {
	case 0:
		return "today"
	case 1:
		return "tomorrow"
	default:
		return fmt.Sprintf("in %d days", n)
	}
}

func agoLabel(n int) string {
	switch n {
	case 0:
		return "today"
	case 1:
		return "yesterday"
	default:
		return fmt.Sprintf("%d days ago", n)
	}
}
