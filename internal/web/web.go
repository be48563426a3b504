package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"peoplecal/internal/config"
	"peoplecal/internal/host"
	"peoplecal/internal/ics"
	appLog "peoplecal/internal/log"
	"peoplecal/internal/model"
	"peoplecal/internal/people"
	"peoplecal/internal/reminder"
	"peoplecal/internal/task"
	"peoplecal/internal/view"
)

const maxBodySize = 64 << 10

// MarkerSetter flips an entry's task marker. Setting DONE is how a client
// completes a birthday task.
type MarkerSetter interface {
	SetMarker(ctx context.Context, entryID, marker string) (*host.Entry, error)
}

// Deps are the services behind the API.
type Deps struct {
	Config    *config.Config
	Reminders *reminder.Service
	People    *people.Service
	Tasks     *task.Lifecycle
	Entries   MarkerSetter
}

// Server provides the HTTP API over reminders, people and tasks.
type Server struct {
	deps   Deps
	router chi.Router
}

// NewServer constructs a new Server.
func NewServer(deps Deps) *Server {
	s := &Server{deps: deps, router: chi.NewRouter()}
	s.registerRoutes()
	return s
}

// Handler returns the router, wrapped in basic auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.router)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.deps.Config.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured. Empty
// credentials count as disabled.
func (s *Server) basicAuthEnabled() bool {
	c := s.deps.Config
	if c == nil || c.BasicAuth == nil {
		return false
	}
	return c.BasicAuth.Username != "" && c.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.deps.Config.BasicAuth.Username
	password := s.deps.Config.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="peoplecal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Run serves on listen until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, listen string) error {
	srv := &http.Server{
		Addr:              listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", s.handleHealth)
	r.Get("/calendar.ics", s.handleCalendar)
	r.Get("/view", s.handleView)

	r.Route("/api", func(r chi.Router) {
		r.Get("/birthdays", s.handleBirthdays)
		r.Get("/contacts", s.handleContacts)
		r.Get("/agenda", s.handleAgenda)
		r.Post("/people", s.handleCreatePerson)
		r.Post("/people/{name}/contact", s.handleLogContact)
		r.Post("/check", s.handleCheck)
		r.Post("/entries/{id}/done", s.handleDone)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		appLog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type personDTO struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Birthday             string `json:"birthday,omitempty"`
	LastContact          string `json:"last_contact,omitempty"`
	ContactFrequencyDays *int   `json:"contact_frequency,omitempty"`
	Relationship         string `json:"relationship,omitempty"`
	Email                string `json:"email,omitempty"`
}

type birthdayDTO struct {
	Person    personDTO `json:"person"`
	DaysUntil int       `json:"days_until"`
	Age       *int      `json:"age,omitempty"`
}

type birthdaysResponse struct {
	Today      string        `json:"today"`
	WindowDays int           `json:"window_days"`
	Birthdays  []birthdayDTO `json:"birthdays"`
}

type contactDTO struct {
	Person           personDTO `json:"person"`
	DaysSinceContact int       `json:"days_since_contact"`
	NeverContacted   bool      `json:"never_contacted"`
	DaysOverdue      int       `json:"days_overdue"`
}

type contactsResponse struct {
	Today    string       `json:"today"`
	Contacts []contactDTO `json:"contacts"`
}

type occurrenceDTO struct {
	Person personDTO `json:"person"`
	Date   string    `json:"date"`
	Age    *int      `json:"age,omitempty"`
}

type agendaResponse struct {
	From        string          `json:"from"`
	To          string          `json:"to"`
	Occurrences []occurrenceDTO `json:"occurrences"`
}

type taskDTO struct {
	Person  string `json:"person"`
	Date    string `json:"date"`
	Text    string `json:"text"`
	EntryID string `json:"entry_id"`
}

type checkResponse struct {
	WindowDays int       `json:"window_days"`
	Created    []taskDTO `json:"created"`
	Existed    []taskDTO `json:"existed"`
	Failed     []string  `json:"failed"`
}

func toPersonDTO(p model.Person) personDTO {
	return personDTO{
		ID:                   p.ID,
		Name:                 p.Name,
		Birthday:             dateOrEmpty(p.Birthday),
		LastContact:          dateOrEmpty(p.LastContact),
		ContactFrequencyDays: p.ContactFrequencyDays,
		Relationship:         p.Relationship,
		Email:                p.Email,
	}
}

func toTaskDTOs(results []task.Result) []taskDTO {
	out := make([]taskDTO, 0, len(results))
	for _, r := range results {
		out = append(out, taskDTO{
			Person:  r.Task.PersonName,
			Date:    r.Task.Occurrence.String(),
			Text:    r.Task.Text(),
			EntryID: r.EntryID,
		})
	}
	return out
}

func dateOrEmpty(d *model.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}

// windowParam reads ?window=, falling back to the configured policy.
func (s *Server) windowParam(r *http.Request) int {
	window := parseIntDefault(r.URL.Query().Get("window"), s.deps.Reminders.Policy().WindowDays)
	if window < 0 {
		window = s.deps.Reminders.Policy().WindowDays
	}
	return window
}

func (s *Server) handleBirthdays(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Reminders.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load people")
		return
	}
	window := s.windowParam(r)
	reminders := snap.Birthdays
	if window != s.deps.Reminders.Policy().WindowDays {
		reminders = reminder.DeriveBirthdayReminders(snap.People, window, snap.Today)
	}

	resp := birthdaysResponse{
		Today:      snap.Today.String(),
		WindowDays: window,
		Birthdays:  make([]birthdayDTO, 0, len(reminders)),
	}
	for _, b := range reminders {
		resp.Birthdays = append(resp.Birthdays, birthdayDTO{
			Person:    toPersonDTO(b.Person),
			DaysUntil: b.DaysUntil,
			Age:       b.Age,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Reminders.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load people")
		return
	}
	resp := contactsResponse{
		Today:    snap.Today.String(),
		Contacts: make([]contactDTO, 0, len(snap.Contacts)),
	}
	for _, c := range snap.Contacts {
		resp.Contacts = append(resp.Contacts, contactDTO{
			Person:           toPersonDTO(c.Person),
			DaysSinceContact: c.DaysSinceContact,
			NeverContacted:   c.NeverContacted,
			DaysOverdue:      c.DaysOverdue,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAgenda(w http.ResponseWriter, r *http.Request) {
	days := parseIntDefault(r.URL.Query().Get("days"), 90)
	if days <= 0 {
		days = 90
	}
	ps, err := s.deps.Reminders.People(r.Context())
	if err != nil {
		appLog.Error("api agenda: loading people failed", err)
		writeError(w, http.StatusInternalServerError, "failed to load people")
		return
	}
	from := s.deps.Reminders.Clock().Today()
	to := model.DateOf(from.Time(time.UTC).AddDate(0, 0, days))

	occ := ics.Occurrences(ps, from, to)
	resp := agendaResponse{
		From:        from.String(),
		To:          to.String(),
		Occurrences: make([]occurrenceDTO, 0, len(occ)),
	}
	for _, o := range occ {
		resp.Occurrences = append(resp.Occurrences, occurrenceDTO{
			Person: toPersonDTO(o.Person),
			Date:   o.Date.String(),
			Age:    o.Age,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreatePerson(w http.ResponseWriter, r *http.Request) {
	var in people.Input
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	res := s.deps.People.Create(r.Context(), in)
	writeJSON(w, resultStatus(res, http.StatusCreated), res)
}

type contactRequest struct {
	Date string `json:"date"`
}

func (s *Server) handleLogContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	res := s.deps.People.LogContact(r.Context(), chi.URLParam(r, "name"), req.Date)
	writeJSON(w, resultStatus(res, http.StatusOK), res)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	ps, err := s.deps.Reminders.People(r.Context())
	if err != nil {
		appLog.Error("api check: loading people failed", err)
		writeError(w, http.StatusInternalServerError, "failed to load people")
		return
	}
	window := s.windowParam(r)
	rep := s.deps.Tasks.CheckReminders(r.Context(), ps, window)
	failed := rep.Failed
	if failed == nil {
		failed = []string{}
	}
	writeJSON(w, http.StatusOK, checkResponse{
		WindowDays: window,
		Created:    toTaskDTOs(rep.Created),
		Existed:    toTaskDTOs(rep.Existed),
		Failed:     failed,
	})
}

type entryDTO struct {
	ID          string `json:"id"`
	ContainerID string `json:"container_id"`
	Content     string `json:"content"`
	Marker      string `json:"marker"`
}

func (s *Server) handleDone(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	e, err := s.deps.Entries.SetMarker(r.Context(), id, host.MarkerDone)
	if errors.Is(err, host.ErrNotFound) {
		writeError(w, http.StatusNotFound, "entry not found")
		return
	}
	if err != nil {
		appLog.Error("api done: marking entry failed", err, "entry", id)
		writeError(w, http.StatusInternalServerError, "failed to update entry")
		return
	}
	writeJSON(w, http.StatusOK, entryDTO{ID: e.ID, ContainerID: e.ContainerID, Content: e.Content, Marker: e.Marker})
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	ps, err := s.deps.Reminders.People(r.Context())
	if err != nil {
		appLog.Error("api calendar: loading people failed", err)
		writeError(w, http.StatusInternalServerError, "failed to load people")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="birthdays.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, ics.Export(ps, ics.ExportOptions{}))
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	screen, err := view.ParseScreen(r.URL.Query().Get("screen"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := s.deps.Reminders.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load people")
		return
	}
	data := view.Data{
		Today:      snap.Today,
		WindowDays: s.deps.Reminders.Policy().WindowDays,
		Birthdays:  snap.Birthdays,
		Contacts:   snap.Contacts,
	}
	if screen == view.ScreenAgenda {
		to := model.DateOf(snap.Today.Time(time.UTC).AddDate(0, 0, data.WindowDays))
		data.Agenda = ics.Occurrences(snap.People, snap.Today, to)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, view.Render(screen, data)+"\n")
}

// resultStatus maps a people.Result to an HTTP status.
func resultStatus(res people.Result, ok int) int {
	switch {
	case res.Success:
		return ok
	case errors.Is(res.Err, people.ErrUnknownPerson):
		return http.StatusNotFound
	case errors.Is(res.Err, people.ErrDuplicateName):
		return http.StatusConflict
	case errors.Is(res.Err, people.ErrNameRequired),
		errors.Is(res.Err, people.ErrInvalidDate),
		errors.Is(res.Err, people.ErrInvalidCadence):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
