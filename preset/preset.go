// Package preset ships the bundled suggestion list: per-domain selectors a
// user can accept with one action instead of picking elements by hand. An
// accepted suggestion becomes an ordinary store record, distinguished only by
// its origin flag.
package preset

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/veil/store"
)

//go:embed presets.json
var presetsJSON []byte

// Suggestion is one bundled entry.
type Suggestion struct {
	Name     string     `json:"name"`
	Selector string     `json:"selector"`
	IsPreset bool       `json:"isPreset"`
	Type     store.Kind `json:"type"`
}

// Catalog is the read-only domain → suggestions mapping.
type Catalog struct {
	byDomain map[string][]Suggestion
}

// Load parses the embedded catalog. Entries with no selector or an unknown
// kind are rejected so a bad bundle fails at startup, not at accept time.
func Load() (*Catalog, error) {
	return Parse(presetsJSON)
}

// Parse builds a catalog from raw JSON.
func Parse(data []byte) (*Catalog, error) {
	byDomain := make(map[string][]Suggestion)
	if err := json.Unmarshal(data, &byDomain); err != nil {
		return nil, fmt.Errorf("preset: parse catalog: %w", err)
	}

	for domain, suggestions := range byDomain {
		for i := range suggestions {
			s := &suggestions[i]
			if s.Type == "" {
				s.Type = store.KindBlur
			}
			if s.Selector == "" {
				return nil, fmt.Errorf("preset: %s[%d]: empty selector", domain, i)
			}
			if !s.Type.Valid() {
				return nil, fmt.Errorf("preset: %s[%d]: unknown kind %q", domain, i, s.Type)
			}
			s.IsPreset = true
		}
	}
	return &Catalog{byDomain: byDomain}, nil
}

// For returns the suggestions bundled for domain. Nil when there are none.
func (c *Catalog) For(domain string) []Suggestion {
	return c.byDomain[domain]
}

// Domains lists every domain the catalog covers.
func (c *Catalog) Domains() []string {
	out := make([]string, 0, len(c.byDomain))
	for d := range c.byDomain {
		out = append(out, d)
	}
	return out
}

// Accept turns a suggestion into a stored record for domain.
func (c *Catalog) Accept(ctx context.Context, st *store.Store, domain string, sug Suggestion) error {
	if sug.Selector == "" {
		return fmt.Errorf("preset: accept: empty selector")
	}
	return st.Add(ctx, store.Mark{
		Domain:   domain,
		Kind:     sug.Type,
		Selector: sug.Selector,
		Name:     sug.Name,
		Preset:   true,
	})
}
