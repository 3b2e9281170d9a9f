package observe

import "time"

// debounceConfig controls reconcile batching.
type debounceConfig struct {
	// Window is the quiet period after the last mutation signal before a
	// reconcile fires. Default: 500ms.
	Window time.Duration
	// MaxBuffer forces an immediate reconcile when this many signals
	// accumulate, so a page mutating continuously still converges. Default: 200.
	MaxBuffer int
}

func (dc *debounceConfig) defaults() {
	if dc.Window <= 0 {
		dc.Window = 500 * time.Millisecond
	}
	if dc.MaxBuffer <= 0 {
		dc.MaxBuffer = 200
	}
}

// debouncer coalesces mutation signals into single reconcile calls. It is a
// cancellable scheduled task: cancel on teardown stops the pending timer so
// no reconcile fires after the observer is gone.
type debouncer struct {
	cfg     debounceConfig
	pending int
	timer   *time.Timer
	timerCh <-chan time.Time
	flushFn func()
}

func newDebouncer(cfg debounceConfig, flushFn func()) *debouncer {
	cfg.defaults()
	return &debouncer{cfg: cfg, flushFn: flushFn}
}

// add registers n mutation signals. Returns true if the buffer filled and an
// immediate flush was triggered.
func (d *debouncer) add(n int) bool {
	d.pending += n

	if d.pending >= d.cfg.MaxBuffer {
		d.flush()
		return true
	}

	// (Re)start the quiet-window timer.
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.NewTimer(d.cfg.Window)
	d.timerCh = d.timer.C
	return false
}

// timerC returns the channel that fires when the quiet window expires.
// Nil (blocking forever) while nothing is pending.
func (d *debouncer) timerC() <-chan time.Time {
	return d.timerCh
}

// flush runs the reconcile callback if anything is pending, then resets.
func (d *debouncer) flush() {
	if d.pending == 0 {
		return
	}
	d.pending = 0
	d.cancel()
	d.flushFn()
}

// cancel stops the pending timer without flushing.
func (d *debouncer) cancel() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
		d.timerCh = nil
	}
}
