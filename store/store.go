// Package store is the persistence layer for veil marks: per-domain,
// per-kind collections of CSS selectors with modification metadata, plus
// the extension-wide flags shared by every context.
//
// The store is the single source of truth. Every mutating operation
// broadcasts a change notification through the Hub, which is how the page
// sessions and popup clients converge without polling.
package store

import (
	"database/sql"
	"log/slog"

	"github.com/hazyhaar/veil/dbopen"
	"github.com/hazyhaar/veil/idgen"
)

// Store is the veil database handle.
type Store struct {
	DB     *sql.DB
	hub    *Hub
	logger *slog.Logger
	newID  idgen.Generator
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithEventIDGenerator sets a custom ID generator for audit event IDs.
func WithEventIDGenerator(gen idgen.Generator) Option {
	return func(s *Store) { s.newID = gen }
}

// Open opens (or creates) the veil SQLite database at path, applies the
// production pragmas and the veil schema.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := dbopen.Open(path,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	)
	if err != nil {
		return nil, err
	}
	return New(db, opts...), nil
}

// New wraps an already-opened database. The schema must be applied;
// tests combine dbopen.OpenMemory with store.Schema.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		DB:     db,
		hub:    NewHub(),
		logger: slog.Default(),
		newID:  idgen.Prefixed("evt_", idgen.Default),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Hub returns the change notification hub.
func (s *Store) Hub() *Hub {
	return s.hub
}

// Close closes the database and drops all hub subscribers.
func (s *Store) Close() error {
	s.hub.Close()
	return s.DB.Close()
}
