package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hazyhaar/veil/dbopen"
)

// Flag keys in the settings table.
const (
	FlagActive   = "extensionActive"
	FlagEditMode = "editMode"
	FlagDelete   = "deleteMode"
	FlagEditText = "editTextMode"
)

// Flags is the extension-wide state shared by every context. Not per-domain.
type Flags struct {
	Active   bool `json:"extensionActive"`
	EditMode bool `json:"editMode"`
	Delete   bool `json:"deleteMode"`
	EditText bool `json:"editTextMode"`
}

// Kind returns the modification kind that new picker clicks target.
func (f Flags) Kind() Kind {
	switch {
	case f.EditText:
		return KindText
	case f.Delete:
		return KindHide
	default:
		return KindBlur
	}
}

// GetFlags reads the current flags. Unset keys default to false, so a fresh
// database starts deactivated.
func (s *Store) GetFlags(ctx context.Context) (Flags, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT key, value FROM settings WHERE key IN (?,?,?,?)`,
		FlagActive, FlagEditMode, FlagDelete, FlagEditText)
	if err != nil {
		return Flags{}, fmt.Errorf("store: get flags: %w", err)
	}
	defer rows.Close()

	var f Flags
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Flags{}, fmt.Errorf("store: scan flag: %w", err)
		}
		on := v == "1"
		switch k {
		case FlagActive:
			f.Active = on
		case FlagEditMode:
			f.EditMode = on
		case FlagDelete:
			f.Delete = on
		case FlagEditText:
			f.EditText = on
		}
	}
	return f, rows.Err()
}

// SetFlag writes one flag and repairs dependent flags in the same
// transaction, so no failure mode can leave editMode armed while the
// extension is off:
//
//   - editMode=true forces extensionActive=true (arming auto-activates).
//   - extensionActive=false forces editMode=false.
func (s *Store) SetFlag(ctx context.Context, key string, on bool) error {
	switch key {
	case FlagActive, FlagEditMode, FlagDelete, FlagEditText:
	default:
		return fmt.Errorf("store: set flag: unknown key %q", key)
	}

	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if err := setFlagTx(ctx, tx, key, on); err != nil {
			return err
		}
		if key == FlagEditMode && on {
			return setFlagTx(ctx, tx, FlagActive, true)
		}
		if key == FlagActive && !on {
			return setFlagTx(ctx, tx, FlagEditMode, false)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.hub.broadcast(Change{Type: ChangeFlags})
	if key == FlagActive {
		s.logEvent(ctx, event{typ: "extension_toggled", detail: fmt.Sprintf("%v", on)})
	}
	return nil
}

// SetMode selects the modification kind new picker clicks target, writing
// deleteMode and editTextMode together.
func (s *Store) SetMode(ctx context.Context, kind Kind) error {
	if !kind.Valid() {
		return fmt.Errorf("store: set mode: invalid kind %q", kind)
	}

	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if err := setFlagTx(ctx, tx, FlagDelete, kind == KindHide); err != nil {
			return err
		}
		return setFlagTx(ctx, tx, FlagEditText, kind == KindText)
	})
	if err != nil {
		return err
	}

	s.hub.broadcast(Change{Type: ChangeFlags})
	return nil
}

func setFlagTx(ctx context.Context, tx *sql.Tx, key string, on bool) error {
	v := "0"
	if on {
		v = "1"
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, v)
	if err != nil {
		return fmt.Errorf("store: set flag %s: %w", key, err)
	}
	return nil
}
