package picker

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/veil/redact"
	"github.com/hazyhaar/veil/selector"
	"github.com/hazyhaar/veil/store"
)

//go:embed picker.js
var pickerJS string

const bindingName = "__veil_pick"

// nonVisualTags never receive the hover highlight or capture clicks.
var nonVisualTags = []string{"html", "body", "head", "script", "style", "link", "meta", "title"}

type injectConfig struct {
	Binding     string   `json:"binding"`
	Hover       string   `json:"hover"`
	Guard       string   `json:"guard"`
	ClassPrefix string   `json:"classPrefix"`
	Excluded    []string `json:"excluded"`
}

// Picker wires a Controller to one live page: injects the capture script,
// listens on the CDP binding, and flips the in-page armed flag alongside the
// Go state machine.
type Picker struct {
	page   *rod.Page
	ctrl   *Controller
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPicker binds a controller to a page. When the controller has no prompt,
// replacement text is collected with window.prompt in the page itself.
func NewPicker(page *rod.Page, ctrl *Controller, logger *slog.Logger) *Picker {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Picker{page: page, ctrl: ctrl, logger: logger, ctx: ctx, cancel: cancel}
	if ctrl.prompt == nil {
		ctrl.prompt = p.pagePrompt
	}
	return p
}

// Start injects the capture script and begins listening for clicks.
func (p *Picker) Start() error {
	err := proto.RuntimeAddBinding{Name: bindingName}.Call(p.page)
	if err != nil {
		p.logger.Warn("picker: addBinding failed (may already exist)", "error", err)
	}

	go p.listenBinding()

	cfg := injectConfig{
		Binding:     bindingName,
		Hover:       redact.ClassHover,
		Guard:       redact.ClassGuard,
		ClassPrefix: "veil-",
		Excluded:    nonVisualTags,
	}
	if _, err := p.page.Eval(pickerJS, cfg); err != nil {
		return fmt.Errorf("picker: inject picker.js: %w", err)
	}
	return nil
}

// Stop disarms the page and stops listening.
func (p *Picker) Stop() {
	p.setPageArmed(context.Background(), false)
	p.cancel()
}

// Arm enters selection mode for kind on both sides.
func (p *Picker) Arm(ctx context.Context, kind store.Kind) {
	if !p.ctrl.Arm(kind) {
		return
	}
	p.setPageArmed(ctx, true)
}

// Disarm leaves selection mode. force bypasses the toggle guard and is used
// when the master toggle goes off.
func (p *Picker) Disarm(ctx context.Context, force bool) {
	changed := false
	if force {
		changed = p.ctrl.ForceDisarm()
	} else {
		changed = p.ctrl.Disarm()
	}
	if !changed {
		return
	}
	p.setPageArmed(ctx, false)
}

func (p *Picker) setPageArmed(ctx context.Context, armed bool) {
	js := `() => { if (window.__veil_picker) window.__veil_picker.disarm(); }`
	if armed {
		js = `() => { if (window.__veil_picker) window.__veil_picker.arm(); }`
	}
	if _, err := p.page.Context(ctx).Eval(js); err != nil {
		p.logger.Warn("picker: set page armed state", "armed", armed, "error", err)
	}
}

// listenBinding receives element descriptors from captured clicks.
func (p *Picker) listenBinding() {
	p.page.Context(p.ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		var el selector.ElementInfo
		if err := json.Unmarshal([]byte(e.Payload), &el); err != nil {
			p.logger.Warn("picker: parse click payload", "error", err)
			return
		}
		if err := p.ctrl.HandleClick(p.ctx, el); err != nil {
			p.logger.Error("picker: handle click", "error", err)
		}
	})()
}

// pagePrompt collects replacement text with window.prompt, the way a browser
// extension would. Returns ok=false when the prompt is dismissed.
func (p *Picker) pagePrompt(ctx context.Context, current string) (string, bool, error) {
	obj, err := p.page.Context(ctx).Eval(
		`(cur) => window.prompt('Replacement text', cur)`, current)
	if err != nil {
		return "", false, fmt.Errorf("picker: page prompt: %w", err)
	}
	if obj.Value.Nil() {
		return "", false, nil
	}
	return obj.Value.Str(), true, nil
}
