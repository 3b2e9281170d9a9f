package redact

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/veil/store"
)

//go:embed apply.js
var applyJS string

// applyState is the payload handed to the injected apply script.
type applyState struct {
	Active   bool        `json:"active"`
	Markers  []string    `json:"markers"`
	Guard    string      `json:"guard"`
	AttrText string      `json:"attrText"`
	StyleID  string      `json:"styleId"`
	CSS      string      `json:"css"`
	Passes   []applyPass `json:"passes"`
}

type applyPass struct {
	Marker  string        `json:"marker"`
	Text    bool          `json:"text"`
	Records []applyRecord `json:"records"`
}

type applyRecord struct {
	Selector string `json:"selector"`
	Text     string `json:"text,omitempty"`
}

// Applicator applies a domain's marks to one live page.
type Applicator struct {
	page   *rod.Page
	st     *store.Store
	domain string
	logger *slog.Logger
}

// NewApplicator binds an applicator to a page and its domain.
func NewApplicator(page *rod.Page, st *store.Store, domain string, logger *slog.Logger) *Applicator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applicator{page: page, st: st, domain: domain, logger: logger}
}

// ApplyAll reads the current flags and buckets and applies them to the page.
// Idempotent: running it twice in a row leaves the page in the same state as
// running it once. When the extension is off it strips every marker instead.
func (a *Applicator) ApplyAll(ctx context.Context) (Result, error) {
	flags, err := a.st.GetFlags(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("redact: read flags: %w", err)
	}

	state := applyState{
		Active:   flags.Active,
		Markers:  MarkerClasses(),
		Guard:    ClassGuard,
		AttrText: AttrText,
		StyleID:  StyleID,
		CSS:      StyleCSS,
	}

	if flags.Active {
		buckets, err := a.st.ListForDomain(ctx, a.domain)
		if err != nil {
			return Result{}, fmt.Errorf("redact: list marks: %w", err)
		}
		for _, kind := range store.Kinds {
			pass := applyPass{Marker: MarkerClass(kind), Text: kind == store.KindText}
			for _, m := range buckets.ForKind(kind) {
				pass.Records = append(pass.Records, applyRecord{Selector: m.Selector, Text: m.CustomText})
			}
			state.Passes = append(state.Passes, pass)
		}
	}

	return a.eval(ctx, state)
}

// StripPage removes every marker from the page regardless of flags.
func (a *Applicator) StripPage(ctx context.Context) error {
	_, err := a.eval(ctx, applyState{
		Active:   false,
		Markers:  MarkerClasses(),
		AttrText: AttrText,
		StyleID:  StyleID,
	})
	return err
}

func (a *Applicator) eval(ctx context.Context, state applyState) (Result, error) {
	obj, err := a.page.Context(ctx).Eval(applyJS, state)
	if err != nil {
		return Result{}, fmt.Errorf("redact: eval apply: %w", err)
	}

	var res Result
	raw, err := json.Marshal(obj.Value.Val())
	if err == nil {
		err = json.Unmarshal(raw, &res)
	}
	if err != nil {
		return Result{}, fmt.Errorf("redact: decode apply result: %w", err)
	}

	for _, f := range res.Failures {
		a.logger.Warn("redact: selector failed",
			"domain", a.domain, "selector", f.Selector, "error", f.Err)
	}
	return res, nil
}
