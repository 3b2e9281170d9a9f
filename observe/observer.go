// Package observe watches a live page for DOM mutations and schedules
// redaction re-application. An injected MutationObserver reports relevant
// changes through a CDP binding; the Go side debounces the signals so rapid
// mutation bursts collapse into a single reconcile.
package observe

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

//go:embed observer.js
var observerJS string

const bindingName = "__veil_mutations"

// disconnectJS tears the injected observer down so no binding calls arrive
// after Stop.
const disconnectJS = `() => {
	if (window.__veil_mo) {
		window.__veil_mo.disconnect();
		delete window.__veil_mo;
	}
}`

// Config for creating an Observer.
type Config struct {
	Page *rod.Page
	// OnReconcile runs after a quiet window with no further mutations, or
	// immediately when MaxBuffer signals pile up.
	OnReconcile func(ctx context.Context)
	Window      time.Duration
	MaxBuffer   int
	Logger      *slog.Logger
}

// Observer manages mutation observation for a single page.
type Observer struct {
	page      *rod.Page
	reconcile func(ctx context.Context)
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc

	sigCh     chan int
	debouncer *debouncer
	done      chan struct{}
}

// New creates an Observer for the given page.
func New(cfg Config) *Observer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.OnReconcile == nil {
		cfg.OnReconcile = func(context.Context) {}
	}

	ctx, cancel := context.WithCancel(context.Background())

	o := &Observer{
		page:      cfg.Page,
		reconcile: cfg.OnReconcile,
		logger:    cfg.Logger,
		ctx:       ctx,
		cancel:    cancel,
		sigCh:     make(chan int, 256),
		done:      make(chan struct{}),
	}
	o.debouncer = newDebouncer(debounceConfig{
		Window:    cfg.Window,
		MaxBuffer: cfg.MaxBuffer,
	}, o.onFlush)
	return o
}

// Start injects the MutationObserver and runs the debounce loop.
func (o *Observer) Start() error {
	err := proto.RuntimeAddBinding{Name: bindingName}.Call(o.page)
	if err != nil {
		o.logger.Warn("observe: addBinding failed (may already exist)", "error", err)
	}

	go o.listenBinding()

	if _, err := o.page.Eval(observerJS, map[string]string{"binding": bindingName}); err != nil {
		return fmt.Errorf("observe: inject observer.js: %w", err)
	}

	go o.loop()

	o.logger.Debug("observe: started")
	return nil
}

// Stop disconnects the injected observer and cancels any pending reconcile.
// No reconcile callback runs after Stop returns.
func (o *Observer) Stop() {
	if _, err := o.page.Eval(disconnectJS); err != nil {
		o.logger.Debug("observe: disconnect eval failed", "error", err)
	}
	o.cancel()
	<-o.done
}

// listenBinding receives mutation signals from the injected observer.
func (o *Observer) listenBinding() {
	o.page.Context(o.ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		n, err := strconv.Atoi(e.Payload)
		if err != nil || n <= 0 {
			n = 1
		}
		select {
		case o.sigCh <- n:
		default:
			// Loop is saturated; the pending flush will catch up anyway.
		}
	})()
}

func (o *Observer) loop() {
	defer close(o.done)
	for {
		select {
		case <-o.ctx.Done():
			o.debouncer.cancel()
			return
		case n := <-o.sigCh:
			o.debouncer.add(n)
		case <-o.debouncer.timerC():
			o.debouncer.flush()
		}
	}
}

func (o *Observer) onFlush() {
	o.reconcile(o.ctx)
}
