// Package session owns the per-tab page context: one live page, its
// applicator, mutation observer, and selection-mode picker, kept in sync with
// the store through change notifications. Every reaction to a notification is
// idempotent, so redundant or replayed notifications are harmless.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/veil/bridge"
	"github.com/hazyhaar/veil/observe"
	"github.com/hazyhaar/veil/picker"
	"github.com/hazyhaar/veil/redact"
	"github.com/hazyhaar/veil/store"
)

// Config for creating a Session.
type Config struct {
	Page  *rod.Page
	Store *store.Store
	URL   string

	// DebounceWindow and DebounceMax tune the mutation observer.
	DebounceWindow time.Duration
	DebounceMax    int

	Logger *slog.Logger
}

// Session is one attached page.
type Session struct {
	id     string
	page   *rod.Page
	st     *store.Store
	domain string
	logger *slog.Logger

	applicator *redact.Applicator
	observer   *observe.Observer
	picker     *picker.Picker
	router     *bridge.Router

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	done        chan struct{}
}

// New creates a session for an already-navigated page. Start must be called
// before the session reacts to anything.
func New(id string, cfg Config) (*Session, error) {
	if cfg.Page == nil || cfg.Store == nil {
		return nil, fmt.Errorf("session: page and store required")
	}
	domain := DomainOf(cfg.URL)
	if domain == "" {
		return nil, fmt.Errorf("session: no domain in url %q", cfg.URL)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With("session", id, "domain", domain)

	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		id:     id,
		page:   cfg.Page,
		st:     cfg.Store,
		domain: domain,
		logger: logger,
		router: bridge.New(bridge.WithLogger(logger)),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	s.applicator = redact.NewApplicator(cfg.Page, cfg.Store, domain, logger)
	s.observer = observe.New(observe.Config{
		Page:        cfg.Page,
		Window:      cfg.DebounceWindow,
		MaxBuffer:   cfg.DebounceMax,
		OnReconcile: s.reconcile,
		Logger:      logger,
	})
	ctrl := picker.NewController(picker.Config{
		Store:  cfg.Store,
		Domain: domain,
		Logger: logger,
	})
	s.picker = picker.NewPicker(cfg.Page, ctrl, logger)

	s.registerHandlers()
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Domain returns the domain this session redacts.
func (s *Session) Domain() string { return s.domain }

// Router returns the session's message router, for control surfaces.
func (s *Session) Router() *bridge.Router { return s.router }

// URL returns the page's current URL, falling back to the domain when the
// page cannot answer.
func (s *Session) URL() string {
	info, err := s.page.Info()
	if err != nil {
		return s.domain
	}
	return info.URL
}

// Start applies the stored state to the page, injects the observer and
// picker, and begins reacting to store changes.
func (s *Session) Start(ctx context.Context) error {
	if _, err := s.applicator.ApplyAll(ctx); err != nil {
		return fmt.Errorf("session: initial apply: %w", err)
	}
	if err := s.observer.Start(); err != nil {
		return fmt.Errorf("session: start observer: %w", err)
	}
	if err := s.picker.Start(); err != nil {
		s.observer.Stop()
		return fmt.Errorf("session: start picker: %w", err)
	}

	// Pick up the persisted edit-mode state, e.g. after a reattach. A failure
	// here must unwind the injected components or their binding listeners
	// and debounce loop leak.
	flags, err := s.st.GetFlags(ctx)
	if err != nil {
		s.observer.Stop()
		s.picker.Stop()
		return fmt.Errorf("session: read flags: %w", err)
	}
	s.reactToFlags(ctx, flags)

	ch, cancel := s.st.Hub().Subscribe()
	s.unsubscribe = cancel
	go s.watchChanges(ch)

	s.logger.Info("session: started")
	return nil
}

// Close tears the session down: observer stopped, picker disarmed, page
// markers left as they are (the page may outlive the session).
func (s *Session) Close() {
	started := s.unsubscribe != nil
	if started {
		s.unsubscribe()
		s.observer.Stop()
		s.picker.Stop()
	}
	s.cancel()
	if started {
		<-s.done
	}
	s.logger.Info("session: closed")
}

// reconcile is the observer's debounced callback.
func (s *Session) reconcile(ctx context.Context) {
	if _, err := s.applicator.ApplyAll(ctx); err != nil {
		s.logger.Warn("session: reconcile apply", "error", err)
	}
}

// watchChanges reacts to store notifications until the session closes.
func (s *Session) watchChanges(ch <-chan store.Change) {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case c, ok := <-ch:
			if !ok {
				return
			}
			s.handleChange(c)
		}
	}
}

func (s *Session) handleChange(c store.Change) {
	// Mark changes for other domains do not concern this page. An empty
	// domain means a bulk change (import), which may.
	if c.Type == store.ChangeMarks && c.Domain != "" && c.Domain != s.domain {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()

	switch c.Type {
	case store.ChangeMarks:
		if _, err := s.applicator.ApplyAll(ctx); err != nil {
			s.logger.Warn("session: re-apply after mark change", "error", err)
		}
	case store.ChangeFlags:
		flags, err := s.st.GetFlags(ctx)
		if err != nil {
			s.logger.Warn("session: read flags", "error", err)
			return
		}
		if _, err := s.applicator.ApplyAll(ctx); err != nil {
			s.logger.Warn("session: re-apply after flag change", "error", err)
		}
		s.reactToFlags(ctx, flags)
	}
}

// reactToFlags arms or disarms the picker to match the stored flags.
// Deactivation always wins over the toggle guard.
func (s *Session) reactToFlags(ctx context.Context, flags store.Flags) {
	switch {
	case !flags.Active:
		s.picker.Disarm(ctx, true)
	case flags.EditMode:
		s.picker.Arm(ctx, flags.Kind())
	default:
		s.picker.Disarm(ctx, false)
	}
}

// Snapshot serializes the live DOM with the domain's redactions applied.
func (s *Session) Snapshot(ctx context.Context) ([]byte, error) {
	raw, err := s.page.Context(ctx).HTML()
	if err != nil {
		return nil, fmt.Errorf("session: read page html: %w", err)
	}
	out, res, err := redact.RenderRedacted(ctx, s.st, s.domain, strings.NewReader(raw))
	if err != nil {
		return nil, err
	}
	s.logger.Info("session: snapshot exported",
		"applied", res.Applied, "failures", len(res.Failures), "bytes", len(out))
	return out, nil
}

// DomainOf extracts the hostname from a URL, the key under which marks are
// stored. Bare hostnames are accepted too.
func DomainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	// "example.com" parses as a path; treat it as a host.
	if rawURL != "" && !strings.ContainsAny(rawURL, "/ ") {
		return rawURL
	}
	return ""
}
