// Package picker implements the in-page selection mode: while armed, hovering
// highlights one element at a time and a click turns the element's synthesized
// selector into a stored modification for the page's domain.
//
// The state machine (armed/disarmed plus the active kind) lives on the Go
// side; the injected JS only captures events and reports element descriptors
// through a CDP binding.
package picker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/veil/redact"
	"github.com/hazyhaar/veil/selector"
	"github.com/hazyhaar/veil/store"
)

// PromptFunc asks the user for replacement text, seeded with the element's
// original text. ok is false when the prompt was dismissed.
type PromptFunc func(ctx context.Context, current string) (text string, ok bool, err error)

// Config for creating a Controller.
type Config struct {
	Store  *store.Store
	Domain string
	// Prompt collects replacement text for textReplace clicks. Required when
	// the text kind can be armed.
	Prompt PromptFunc
	// ToggleGuard rejects arm/disarm flips that arrive within this window of
	// the previous one, absorbing double-fired toggle events. Default: 300ms.
	ToggleGuard time.Duration
	Logger      *slog.Logger
}

// Controller is the selection-mode state machine for one page.
type Controller struct {
	st     *store.Store
	domain string
	prompt PromptFunc
	synth  selector.Synthesizer
	guard  time.Duration
	logger *slog.Logger

	mu         sync.Mutex
	armed      bool
	kind       store.Kind
	lastToggle time.Time
	now        func() time.Time
}

// NewController creates a disarmed controller defaulting to the blur kind.
func NewController(cfg Config) *Controller {
	if cfg.ToggleGuard <= 0 {
		cfg.ToggleGuard = 300 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{
		st:     cfg.Store,
		domain: cfg.Domain,
		prompt: cfg.Prompt,
		synth:  selector.Synthesizer{Ignore: redact.EphemeralClasses()},
		guard:  cfg.ToggleGuard,
		logger: cfg.Logger,
		kind:   store.KindBlur,
		now:    time.Now,
	}
}

// Armed returns the current state and active kind.
func (c *Controller) Armed() (bool, store.Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed, c.kind
}

// Arm enters selection mode for kind. Switching the kind while already armed
// is always accepted; an actual disarmed-to-armed flip inside the toggle
// guard window is rejected. Returns whether the state changed.
func (c *Controller) Arm(kind store.Kind) bool {
	if !kind.Valid() {
		kind = store.KindBlur
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.armed {
		if c.kind == kind {
			return false
		}
		c.kind = kind
		return true
	}

	now := c.now()
	if now.Sub(c.lastToggle) < c.guard {
		return false
	}
	c.armed = true
	c.kind = kind
	c.lastToggle = now
	return true
}

// Disarm leaves selection mode, subject to the toggle guard.
func (c *Controller) Disarm() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.armed {
		return false
	}
	now := c.now()
	if now.Sub(c.lastToggle) < c.guard {
		return false
	}
	c.armed = false
	c.lastToggle = now
	return true
}

// ForceDisarm leaves selection mode unconditionally. Used when the master
// toggle goes off: deactivation must never be debounced away.
func (c *Controller) ForceDisarm() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.armed {
		return false
	}
	c.armed = false
	c.lastToggle = c.now()
	return true
}

// HandleClick processes one captured click. Ignored while disarmed. For the
// blur and hide kinds the click toggles the selector's membership in the
// active bucket; for textReplace it prompts and upserts. Either way the
// selector ends up in at most one bucket.
func (c *Controller) HandleClick(ctx context.Context, el selector.ElementInfo) error {
	c.mu.Lock()
	armed, kind := c.armed, c.kind
	c.mu.Unlock()
	if !armed {
		return nil
	}

	sel := c.synth.Synthesize(el)
	if sel == "" {
		return fmt.Errorf("picker: no selector for <%s> element", el.Tag)
	}

	if kind == store.KindText {
		return c.editText(ctx, sel, el)
	}
	return c.toggle(ctx, kind, sel)
}

func (c *Controller) toggle(ctx context.Context, kind store.Kind, sel string) error {
	existing, found, err := c.st.FindSelector(ctx, c.domain, sel)
	if err != nil {
		return fmt.Errorf("picker: lookup %q: %w", sel, err)
	}
	if found && existing == kind {
		return c.st.Remove(ctx, c.domain, kind, sel)
	}
	return c.st.Add(ctx, store.Mark{Domain: c.domain, Kind: kind, Selector: sel})
}

func (c *Controller) editText(ctx context.Context, sel string, el selector.ElementInfo) error {
	if c.prompt == nil {
		return fmt.Errorf("picker: text kind armed without a prompt")
	}

	existing, err := c.st.Get(ctx, c.domain, store.KindText, sel)
	if err != nil {
		return fmt.Errorf("picker: lookup %q: %w", sel, err)
	}
	original := el.Text
	if existing != nil {
		original = existing.OriginalText
	}

	text, ok, err := c.prompt(ctx, original)
	if err != nil {
		return fmt.Errorf("picker: prompt: %w", err)
	}
	if !ok {
		return nil
	}
	text = strings.TrimSpace(text)

	// Empty input, or typing the original back, restores the element.
	if text == "" || text == original {
		if existing == nil {
			return nil
		}
		return c.st.Remove(ctx, c.domain, store.KindText, sel)
	}
	if existing != nil {
		if text == existing.CustomText {
			return nil
		}
		return c.st.SetText(ctx, c.domain, sel, text)
	}

	return c.st.Add(ctx, store.Mark{
		Domain:       c.domain,
		Kind:         store.KindText,
		Selector:     sel,
		CustomText:   text,
		OriginalText: el.Text,
	})
}
