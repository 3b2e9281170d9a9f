package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/veil/dbopen"
	"github.com/hazyhaar/veil/selector"
)

// ExportConfig is the portable JSON shape of the whole store, matching the
// persisted-state keys. Bucket maps go domain → array of marks.
type ExportConfig struct {
	Active   *bool `json:"extensionActive,omitempty"`
	EditMode *bool `json:"editMode,omitempty"`
	Delete   *bool `json:"deleteMode,omitempty"`
	EditText *bool `json:"editTextMode,omitempty"`

	Blur map[string][]entry `json:"blurSelectors"`
	Hide map[string][]entry `json:"deleteSelectors,omitempty"`
	Text map[string][]entry `json:"editTextSelectors,omitempty"`
}

// entry is one bucket element. The legacy export format stored bare selector
// strings; those are normalized to full marks here, at the boundary, and
// never propagated further.
type entry struct {
	Mark
}

func (e *entry) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var sel string
		if err := json.Unmarshal(data, &sel); err != nil {
			return err
		}
		e.Mark = Mark{Selector: sel}
		return nil
	}
	return json.Unmarshal(data, &e.Mark)
}

func (e entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Mark)
}

// Export serialises the full store state as an import-compatible JSON object.
func (s *Store) Export(ctx context.Context) ([]byte, error) {
	flags, err := s.GetFlags(ctx)
	if err != nil {
		return nil, err
	}

	cfg := ExportConfig{
		Active:   &flags.Active,
		EditMode: &flags.EditMode,
		Delete:   &flags.Delete,
		EditText: &flags.EditText,
		Blur:     map[string][]entry{},
		Hide:     map[string][]entry{},
		Text:     map[string][]entry{},
	}

	domains, err := s.Domains(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range domains {
		b, err := s.ListForDomain(ctx, d)
		if err != nil {
			return nil, err
		}
		for _, m := range b.Blur {
			cfg.Blur[d] = append(cfg.Blur[d], entry{m})
		}
		for _, m := range b.Hide {
			cfg.Hide[d] = append(cfg.Hide[d], entry{m})
		}
		for _, m := range b.Text {
			cfg.Text[d] = append(cfg.Text[d], entry{m})
		}
	}

	return json.MarshalIndent(cfg, "", "  ")
}

// Import merges a configuration export into the store. The blurSelectors key
// is required; its absence (or malformed JSON) fails the whole import with
// the storage untouched. Existing marks for domains not mentioned in the
// import are left alone; mentioned domains get their arrays merged, with the
// usual cross-kind eviction per selector.
func (s *Store) Import(ctx context.Context, data []byte) error {
	var cfg ExportConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("store: import: parse: %w", err)
	}
	if cfg.Blur == nil {
		return fmt.Errorf("store: import: missing required key %q", "blurSelectors")
	}

	domains := map[string]bool{}

	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		merge := func(kind Kind, buckets map[string][]entry) error {
			for domain, entries := range buckets {
				for _, e := range entries {
					m := e.Mark
					m.Domain = domain
					m.Kind = kind
					if m.Selector == "" {
						return fmt.Errorf("store: import: entry without selector for %s", domain)
					}
					explicitName := m.Name != ""
					if !explicitName {
						m.Name = selector.DefaultName(m.Selector)
					}
					if err := addTx(ctx, tx, m, explicitName); err != nil {
						return err
					}
					domains[domain] = true
				}
			}
			return nil
		}

		if err := merge(KindBlur, cfg.Blur); err != nil {
			return err
		}
		if err := merge(KindHide, cfg.Hide); err != nil {
			return err
		}
		if err := merge(KindText, cfg.Text); err != nil {
			return err
		}

		// Flags ride along when present. Active first so the editMode
		// implication lands on the imported value.
		if cfg.Active != nil {
			if err := setFlagTx(ctx, tx, FlagActive, *cfg.Active); err != nil {
				return err
			}
		}
		if cfg.EditMode != nil {
			on := *cfg.EditMode
			if err := setFlagTx(ctx, tx, FlagEditMode, on); err != nil {
				return err
			}
			if on {
				if err := setFlagTx(ctx, tx, FlagActive, true); err != nil {
					return err
				}
			}
		}
		if cfg.Delete != nil {
			if err := setFlagTx(ctx, tx, FlagDelete, *cfg.Delete); err != nil {
				return err
			}
		}
		if cfg.EditText != nil {
			if err := setFlagTx(ctx, tx, FlagEditText, *cfg.EditText); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for d := range domains {
		s.hub.broadcast(Change{Type: ChangeMarks, Domain: d})
	}
	s.hub.broadcast(Change{Type: ChangeFlags})
	s.logEvent(ctx, event{typ: "config_imported", detail: fmt.Sprintf("%d domains", len(domains))})
	return nil
}
