// Package host defines the narrow data-access contract the reminder engine
// needs from the note-taking application that owns the records.
package host

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

// ErrNotFound is returned by lookups that find nothing.
var ErrNotFound = errors.New("host: not found")

// Attribute keys understood on Record.Attrs.
const (
	AttrName         = "name"
	AttrOriginalName = "originalName"
	AttrTitle        = "title"
	AttrContent      = "content"
	AttrJournalDay   = "journalDay"
	AttrValue        = "value"
)

// Record is a loosely typed host record: a page, a journal day, or a
// property value node.
type Record struct {
	ID string
	// Attrs holds the record's own attributes (name, title, journalDay...).
	// Keys vary between host versions.
	Attrs map[string]any
	// Properties holds user-defined properties. Keys may be namespaced.
	Properties map[string]any
}

// Title returns the display name of the record, or "".
func (r *Record) Title() string {
	if r == nil {
		return ""
	}
	for _, k := range []string{AttrOriginalName, AttrTitle, AttrName} {
		if s, ok := r.Attrs[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// Content returns the record's textual content, or "".
func (r *Record) Content() string {
	if r == nil {
		return ""
	}
	s, _ := r.Attrs[AttrContent].(string)
	return s
}

// JournalDay returns the YYYYMMDD day for journal records, or 0.
func (r *Record) JournalDay() int {
	if r == nil {
		return 0
	}
	switch v := r.Attrs[AttrJournalDay].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

// Ref is an indirect reference to another record.
type Ref struct {
	ID string `json:"id"`
}

// Entry is one content block inside a container record.
type Entry struct {
	ID          string
	ContainerID string
	Content     string
	// Marker is the task state keyword, e.g. "TODO" or "DONE".
	Marker string
}

// CreateOptions tune CreateRecord.
type CreateOptions struct {
	// JournalDay marks the record as the container for that YYYYMMDD day.
	JournalDay int
	// Tags classify the new record.
	Tags []string
}

// ChangeHandler receives batches of changed entries.
type ChangeHandler func(ctx context.Context, changed []Entry)

// Host is implemented by the application that owns records. Every call may
// fail; callers treat failures as local to the item being processed.
type Host interface {
	FetchTaggedRecords(ctx context.Context, tag string) ([]Record, error)
	ResolveReference(ctx context.Context, id string) (*Record, error)
	FindRecordByName(ctx context.Context, name string) (*Record, error)
	CreateRecord(ctx context.Context, name string, opts CreateOptions) (*Record, error)
	AppendEntry(ctx context.Context, containerID, text string) (*Entry, error)
	TagEntry(ctx context.Context, entryID, tag string) error
	SetProperty(ctx context.Context, recordID, key string, value any) error
	// OnChange registers a handler for change notifications and returns a
	// function that removes it.
	OnChange(handler ChangeHandler) (unsubscribe func())
}

// EntryLister is optionally implemented by hosts that can list the entries
// of a container. It enables duplicate-task detection.
type EntryLister interface {
	ListEntries(ctx context.Context, containerID string) ([]Entry, error)
}

// Task markers recognised at the start of entry content.
const (
	MarkerTodo = "TODO"
	MarkerDone = "DONE"
)

var markers = []string{"TODO", "DOING", "DONE", "LATER", "NOW", "WAITING", "CANCELED", "CANCELLED"}

// SplitMarker separates a leading task marker from entry content.
func SplitMarker(content string) (marker, rest string) {
	trimmed := strings.TrimLeft(content, " \t")
	for _, m := range markers {
		if trimmed == m {
			return m, ""
		}
		if strings.HasPrefix(trimmed, m+" ") {
			return m, strings.TrimLeft(trimmed[len(m):], " ")
		}
	}
	return "", content
}
