// Package store is a SQLite-backed host: it keeps person pages, date
// containers and task entries, and pushes change notifications the way the
// note-taking application does.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"peoplecal/internal/host"
	appLog "peoplecal/internal/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrExists is returned when creating a record whose name is already taken.
var ErrExists = errors.New("store: record already exists")

// Store implements host.Host on top of SQLite.
type Store struct {
	db *sql.DB

	mu       sync.RWMutex
	nextID   uint64
	handlers map[uint64]host.ChangeHandler
}

var _ host.Host = (*Store)(nil)
var _ host.EntryLister = (*Store)(nil)

// Open opens (or creates) the database in dataDir and runs pending migrations.
// Pass ":memory:" for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "peoplecal.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Single connection: keeps :memory: databases alive and avoids "database is locked".
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA foreign_keys = ON"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, handlers: make(map[uint64]host.ChangeHandler)}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies embedded SQL migrations that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

// --- Records ---

type recordRow struct {
	id         string
	name       string
	journalDay int
	content    string
}

func (r recordRow) toRecord() host.Record {
	attrs := map[string]any{
		host.AttrName:         strings.ToLower(r.name),
		host.AttrOriginalName: r.name,
	}
	if r.content != "" {
		attrs[host.AttrContent] = r.content
	}
	if r.journalDay != 0 {
		attrs[host.AttrJournalDay] = r.journalDay
	}
	return host.Record{ID: r.id, Attrs: attrs, Properties: map[string]any{}}
}

// FetchTaggedRecords returns every record carrying tag, ordered by creation.
func (s *Store) FetchTaggedRecords(ctx context.Context, tag string) ([]host.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.name, r.journal_day, r.content
		FROM records r JOIN record_tags t ON t.record_id = r.id
		WHERE t.tag = ?
		ORDER BY r.rowid ASC`, normalizeTag(tag))
	if err != nil {
		return nil, fmt.Errorf("querying tagged records: %w", err)
	}
	var found []recordRow
	for rows.Next() {
		var r recordRow
		if err := rows.Scan(&r.id, &r.name, &r.journalDay, &r.content); err != nil {
			rows.Close()
			return nil, err
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	out := make([]host.Record, 0, len(found))
	for _, r := range found {
		rec := r.toRecord()
		props, err := s.loadProperties(ctx, r.id)
		if err != nil {
			return nil, fmt.Errorf("loading properties of %s: %w", r.id, err)
		}
		rec.Properties = props
		out = append(out, rec)
	}
	return out, nil
}

// ResolveReference loads the record with the given id.
func (s *Store) ResolveReference(ctx context.Context, id string) (*host.Record, error) {
	return s.getRecord(ctx, "id = ?", id)
}

// FindRecordByName looks a record up by case-insensitive name.
func (s *Store) FindRecordByName(ctx context.Context, name string) (*host.Record, error) {
	return s.getRecord(ctx, "name_lower = ?", strings.ToLower(strings.TrimSpace(name)))
}

// FindJournal returns the container for the given YYYYMMDD day.
func (s *Store) FindJournal(ctx context.Context, journalDay int) (*host.Record, error) {
	return s.getRecord(ctx, "journal_day = ?", journalDay)
}

func (s *Store) getRecord(ctx context.Context, where string, arg any) (*host.Record, error) {
	var r recordRow
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, journal_day, content FROM records WHERE "+where+" LIMIT 1", arg,
	).Scan(&r.id, &r.name, &r.journalDay, &r.content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, host.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec := r.toRecord()
	props, err := s.loadProperties(ctx, r.id)
	if err != nil {
		return nil, fmt.Errorf("loading properties of %s: %w", r.id, err)
	}
	rec.Properties = props
	return &rec, nil
}

// CreateRecord creates a named record. Names are unique regardless of case.
func (s *Store) CreateRecord(ctx context.Context, name string, opts host.CreateOptions) (*host.Record, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("store: record name is empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM records WHERE name_lower = ?", strings.ToLower(name)).Scan(&exists); err != nil {
		return nil, err
	}
	if exists > 0 {
		return nil, fmt.Errorf("%w: %q", ErrExists, name)
	}

	id := uuid.New().String()
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO records (id, name, name_lower, journal_day) VALUES (?, ?, ?, ?)",
		id, name, strings.ToLower(name), opts.JournalDay,
	); err != nil {
		return nil, fmt.Errorf("inserting record: %w", err)
	}
	for _, tag := range opts.Tags {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO record_tags (record_id, tag) VALUES (?, ?)", id, normalizeTag(tag),
		); err != nil {
			return nil, fmt.Errorf("tagging record: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	rec := recordRow{id: id, name: name, journalDay: opts.JournalDay}.toRecord()
	return &rec, nil
}

// SetContent replaces a record's own textual content.
func (s *Store) SetContent(ctx context.Context, recordID, content string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE records SET content = ? WHERE id = ?", content, recordID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// SetProperty stores value as JSON under key. host.Ref values round-trip as
// {"id": ...} objects, which is how the host exposes references.
func (s *Store) SetProperty(ctx context.Context, recordID, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding property %q: %w", key, err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records WHERE id = ?", recordID).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return host.ErrNotFound
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO properties (record_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT(record_id, key) DO UPDATE SET value = excluded.value`,
		recordID, key, string(data),
	)
	return err
}

func (s *Store) loadProperties(ctx context.Context, recordID string) (map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM properties WHERE record_id = ?", recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	props := make(map[string]any)
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			// Keep the raw text; resolution downstream is best-effort anyway.
			appLog.Debug("store: property is not JSON", "record_id", recordID, "key", key)
			v = raw
		}
		props[key] = v
	}
	return props, rows.Err()
}

// --- Entries ---

// AppendEntry adds an entry at the end of a container.
func (s *Store) AppendEntry(ctx context.Context, containerID, text string) (*host.Entry, error) {
	marker, _ := host.SplitMarker(text)
	e := host.Entry{
		ID:          uuid.New().String(),
		ContainerID: containerID,
		Content:     text,
		Marker:      marker,
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (id, container_id, content, marker, position)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM entries WHERE container_id = ?))`,
		e.ID, containerID, text, marker, containerID,
	); err != nil {
		return nil, fmt.Errorf("appending entry: %w", err)
	}
	s.notify(ctx, []host.Entry{e})
	return &e, nil
}

// TagEntry classifies an entry.
func (s *Store) TagEntry(ctx context.Context, entryID, tag string) error {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries WHERE id = ?", entryID).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return host.ErrNotFound
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO entry_tags (entry_id, tag) VALUES (?, ?)", entryID, normalizeTag(tag))
	return err
}

// EntryTags lists the tags of an entry.
func (s *Store) EntryTags(ctx context.Context, entryID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT tag FROM entry_tags WHERE entry_id = ? ORDER BY tag", entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tags []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// ListEntries returns a container's entries in insertion order.
func (s *Store) ListEntries(ctx context.Context, containerID string) ([]host.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, container_id, content, marker FROM entries WHERE container_id = ? ORDER BY position ASC", containerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []host.Entry
	for rows.Next() {
		var e host.Entry
		if err := rows.Scan(&e.ID, &e.ContainerID, &e.Content, &e.Marker); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetEntry loads a single entry.
func (s *Store) GetEntry(ctx context.Context, entryID string) (*host.Entry, error) {
	var e host.Entry
	err := s.db.QueryRowContext(ctx,
		"SELECT id, container_id, content, marker FROM entries WHERE id = ?", entryID,
	).Scan(&e.ID, &e.ContainerID, &e.Content, &e.Marker)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, host.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// UpdateEntry rewrites an entry's content and notifies subscribers.
func (s *Store) UpdateEntry(ctx context.Context, entryID, content string) (*host.Entry, error) {
	marker, _ := host.SplitMarker(content)
	res, err := s.db.ExecContext(ctx,
		"UPDATE entries SET content = ?, marker = ? WHERE id = ?", content, marker, entryID)
	if err != nil {
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	e, err := s.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, []host.Entry{*e})
	return e, nil
}

// SetMarker swaps the entry's task marker, e.g. TODO -> DONE.
func (s *Store) SetMarker(ctx context.Context, entryID, marker string) (*host.Entry, error) {
	e, err := s.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	_, rest := host.SplitMarker(e.Content)
	content := rest
	if marker != "" {
		content = marker + " " + rest
	}
	return s.UpdateEntry(ctx, entryID, content)
}

// --- Notifications ---

// OnChange registers handler for entry change batches.
func (s *Store) OnChange(handler host.ChangeHandler) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.handlers[id] = handler
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.handlers, id)
		s.mu.Unlock()
	}
}

// notify runs handlers synchronously after the write has committed, so
// readers inside a handler always observe it.
func (s *Store) notify(ctx context.Context, changed []host.Entry) {
	s.mu.RLock()
	handlers := make([]host.ChangeHandler, 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, changed)
	}
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return host.ErrNotFound
	}
	return nil
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
}
