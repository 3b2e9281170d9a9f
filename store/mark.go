package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/veil/dbopen"
	"github.com/hazyhaar/veil/selector"
)

// Kind is a modification type. A selector lives in exactly one kind bucket
// per domain at a time.
type Kind string

const (
	KindBlur Kind = "blur"
	KindHide Kind = "hide"
	KindText Kind = "textReplace"
)

// Kinds is the fixed applicator processing order.
var Kinds = []Kind{KindBlur, KindHide, KindText}

// Valid reports whether k is a known modification kind.
func (k Kind) Valid() bool {
	return k == KindBlur || k == KindHide || k == KindText
}

// Mark is one modification record. Selector is its identity within the
// (domain, kind) bucket.
type Mark struct {
	Domain       string `json:"-"`
	Kind         Kind   `json:"-"`
	Selector     string `json:"selector"`
	Name         string `json:"name"`
	CustomText   string `json:"customText,omitempty"`
	OriginalText string `json:"originalText,omitempty"`
	Preset       bool   `json:"isPreset,omitempty"`
	CreatedAt    int64  `json:"-"`
	UpdatedAt    int64  `json:"-"`
}

// Buckets is a per-domain snapshot of all three kind buckets.
type Buckets struct {
	Blur []Mark `json:"blur"`
	Hide []Mark `json:"hide"`
	Text []Mark `json:"textReplace"`
}

// ForKind returns the bucket slice for k.
func (b *Buckets) ForKind(k Kind) []Mark {
	switch k {
	case KindBlur:
		return b.Blur
	case KindHide:
		return b.Hide
	case KindText:
		return b.Text
	}
	return nil
}

// Len returns the total number of marks across buckets.
func (b *Buckets) Len() int {
	return len(b.Blur) + len(b.Hide) + len(b.Text)
}

// Add upserts a mark. If the selector is already present in the same bucket,
// mutable fields (name, custom text) are updated without duplicating. The
// same selector is evicted from the other kind buckets of the domain first,
// inside the same transaction, so a selector is never in two buckets at once.
func (s *Store) Add(ctx context.Context, m Mark) error {
	if !m.Kind.Valid() {
		return fmt.Errorf("store: add: invalid kind %q", m.Kind)
	}
	if m.Domain == "" || m.Selector == "" {
		return fmt.Errorf("store: add: domain and selector required")
	}
	explicitName := m.Name != ""
	if !explicitName {
		m.Name = selector.DefaultName(m.Selector)
	}

	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		return addTx(ctx, tx, m, explicitName)
	})
	if err != nil {
		return err
	}

	s.hub.broadcast(Change{Type: ChangeMarks, Domain: m.Domain})
	s.logEvent(ctx, event{typ: "mark_added", domain: m.Domain, selector: m.Selector, detail: string(m.Kind)})
	return nil
}

// addTx upserts one mark. When the caller did not name the mark explicitly,
// an existing record keeps its stored name: a derived default must never
// clobber a user's rename.
func addTx(ctx context.Context, tx *sql.Tx, m Mark, explicitName bool) error {
	// Mutual exclusivity: evict from the other buckets first.
	_, err := tx.ExecContext(ctx,
		`DELETE FROM marks WHERE domain = ? AND selector = ? AND kind != ?`,
		m.Domain, m.Selector, string(m.Kind))
	if err != nil {
		return fmt.Errorf("store: evict conflicting kinds: %w", err)
	}

	now := time.Now().UnixMilli()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO marks (domain, kind, selector, name, custom_text, original_text, preset, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT (domain, kind, selector) DO UPDATE SET
			name        = CASE WHEN ? THEN excluded.name ELSE marks.name END,
			custom_text = excluded.custom_text,
			preset      = excluded.preset,
			updated_at  = excluded.updated_at`,
		m.Domain, string(m.Kind), m.Selector, m.Name, m.CustomText, m.OriginalText,
		boolInt(m.Preset), now, now, boolInt(explicitName))
	if err != nil {
		return fmt.Errorf("store: upsert mark: %w", err)
	}
	return nil
}

// Remove deletes a mark. Removing an absent selector is a no-op, not an
// error, and broadcasts nothing.
func (s *Store) Remove(ctx context.Context, domain string, kind Kind, sel string) error {
	res, err := dbopen.Exec(ctx, s.DB,
		`DELETE FROM marks WHERE domain = ? AND kind = ? AND selector = ?`,
		domain, string(kind), sel)
	if err != nil {
		return fmt.Errorf("store: remove mark: %w", err)
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		return nil
	}

	s.hub.broadcast(Change{Type: ChangeMarks, Domain: domain})
	s.logEvent(ctx, event{typ: "mark_removed", domain: domain, selector: sel, detail: string(kind)})
	return nil
}

// Rename updates a mark's display name in place. Unknown selectors are left
// untouched, silently.
func (s *Store) Rename(ctx context.Context, domain string, kind Kind, sel, newName string) error {
	res, err := dbopen.Exec(ctx, s.DB,
		`UPDATE marks SET name = ?, updated_at = ? WHERE domain = ? AND kind = ? AND selector = ?`,
		newName, time.Now().UnixMilli(), domain, string(kind), sel)
	if err != nil {
		return fmt.Errorf("store: rename mark: %w", err)
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		return nil
	}

	s.hub.broadcast(Change{Type: ChangeMarks, Domain: domain})
	s.logEvent(ctx, event{typ: "mark_renamed", domain: domain, selector: sel})
	return nil
}

// SetText updates the replacement text of an existing textReplace mark in
// place, keeping its stored original text. Unknown selectors are left
// untouched, silently.
func (s *Store) SetText(ctx context.Context, domain, sel, text string) error {
	res, err := dbopen.Exec(ctx, s.DB,
		`UPDATE marks SET custom_text = ?, updated_at = ? WHERE domain = ? AND kind = ? AND selector = ?`,
		text, time.Now().UnixMilli(), domain, string(KindText), sel)
	if err != nil {
		return fmt.Errorf("store: set text: %w", err)
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		return nil
	}

	s.hub.broadcast(Change{Type: ChangeMarks, Domain: domain})
	s.logEvent(ctx, event{typ: "mark_text_changed", domain: domain, selector: sel})
	return nil
}

// Get returns the mark for (domain, kind, selector), or nil if absent.
func (s *Store) Get(ctx context.Context, domain string, kind Kind, sel string) (*Mark, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT domain, kind, selector, name, custom_text, original_text, preset, created_at, updated_at
		FROM marks WHERE domain = ? AND kind = ? AND selector = ?`,
		domain, string(kind), sel)

	m, err := scanMark(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get mark: %w", err)
	}
	return &m, nil
}

// FindSelector reports which kind bucket (if any) holds sel for domain.
func (s *Store) FindSelector(ctx context.Context, domain, sel string) (Kind, bool, error) {
	var kind string
	err := s.DB.QueryRowContext(ctx,
		`SELECT kind FROM marks WHERE domain = ? AND selector = ?`,
		domain, sel).Scan(&kind)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: find selector: %w", err)
	}
	return Kind(kind), true, nil
}

// ListForDomain returns a fresh snapshot of all three buckets for domain.
// The result never contains marks from any other domain.
func (s *Store) ListForDomain(ctx context.Context, domain string) (Buckets, error) {
	var b Buckets

	rows, err := s.DB.QueryContext(ctx, `
		SELECT domain, kind, selector, name, custom_text, original_text, preset, created_at, updated_at
		FROM marks WHERE domain = ? ORDER BY created_at ASC, selector ASC`, domain)
	if err != nil {
		return b, fmt.Errorf("store: list marks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMark(rows)
		if err != nil {
			return b, fmt.Errorf("store: scan mark: %w", err)
		}
		switch m.Kind {
		case KindBlur:
			b.Blur = append(b.Blur, m)
		case KindHide:
			b.Hide = append(b.Hide, m)
		case KindText:
			b.Text = append(b.Text, m)
		}
	}
	return b, rows.Err()
}

// Domains returns every domain that has at least one mark.
func (s *Store) Domains(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT DISTINCT domain FROM marks ORDER BY domain ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: list domains: %w", err)
	}
	defer rows.Close()

	var domains []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("store: scan domain: %w", err)
		}
		domains = append(domains, d)
	}
	return domains, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMark(row scanner) (Mark, error) {
	var m Mark
	var kind string
	var preset int
	err := row.Scan(&m.Domain, &kind, &m.Selector, &m.Name,
		&m.CustomText, &m.OriginalText, &preset, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return m, err
	}
	m.Kind = Kind(kind)
	m.Preset = preset != 0
	return m, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
