// Package guestbook stores and lists guestbook entries.
package guestbook

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/guestbook/internal/database"
)

// ErrValidationFailed is returned by AddEntry when the name or message is missing.
var ErrValidationFailed = errors.New("validation failed")

// ValidationError lists the fields that were missing from a submission
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: missing %s", ErrValidationFailed, strings.Join(e.Missing, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// Entry is a single guestbook entry
type Entry struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Order is the direction entries are listed in, by id
type Order int

const (
	Ascending Order = iota
	Descending
)

func (o Order) String() string {
	if o == Descending {
		return "desc"
	}
	return "asc"
}

// ParseOrder parses asc/ascending and desc/descending. An empty string yields def.
func ParseOrder(s string, def Order) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return def, nil
	case "asc", "ascending":
		return Ascending, nil
	case "desc", "descending":
		return Descending, nil
	default:
		return def, fmt.Errorf("invalid order %q (expected asc or desc)", s)
	}
}

// Store is the unit-of-work surface the repository needs; *database.Pool implements it.
type Store interface {
	WithCursor(ctx context.Context, commit bool, fn func(*database.Cursor) error) error
}

// Repository implements the guestbook operations on top of a Store
type Repository struct {
	store Store
}

// NewRepository creates a new repository
func NewRepository(store Store) *Repository {
	return &Repository{store: store}
}

// ListEntries returns every entry ordered by id. An empty guestbook yields an empty slice.
func (r *Repository) ListEntries(ctx context.Context, order Order) ([]Entry, error) {
	query := "SELECT id, name, message FROM guest_list ORDER BY id ASC"
	if order == Descending {
		query = "SELECT id, name, message FROM guest_list ORDER BY id DESC"
	}

	entries := []Entry{}
	err := r.store.WithCursor(ctx, false, func(c *database.Cursor) error {
		rows, err := c.Query(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var e Entry
			if err := rows.Scan(&e.ID, &e.Name, &e.Message); err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, database.StorageError("list entries", err)
	}
	return entries, nil
}

// AddEntry validates and stores a new entry. An empty name or message is
// rejected with ErrValidationFailed before storage is touched. Accepted text
// is stored exactly as given.
func (r *Repository) AddEntry(ctx context.Context, name, message string) (Entry, error) {
	var missing []string
	if name == "" {
		missing = append(missing, "name")
	}
	if message == "" {
		missing = append(missing, "message")
	}
	if len(missing) > 0 {
		return Entry{}, &ValidationError{Missing: missing}
	}

	entry := Entry{Name: name, Message: message}
	err := r.store.WithCursor(ctx, true, func(c *database.Cursor) error {
		return c.QueryRow(ctx,
			"INSERT INTO guest_list (name, message) VALUES (?, ?) RETURNING id",
			name, message,
		).Scan(&entry.ID)
	})
	if err != nil {
		return Entry{}, database.StorageError("add entry", err)
	}

	log.Debug().Int64("id", entry.ID).Str("name", entry.Name).Msg("Guestbook entry added")
	return entry, nil
}
