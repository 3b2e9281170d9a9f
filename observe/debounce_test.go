package observe

import (
	"testing"
	"time"
)

func TestDebouncer_QuietWindow(t *testing.T) {
	flushes := 0
	d := newDebouncer(debounceConfig{Window: 10 * time.Millisecond, MaxBuffer: 100}, func() {
		flushes++
	})

	d.add(1)
	d.add(1)
	if flushes != 0 {
		t.Fatalf("flushed before quiet window: %d", flushes)
	}

	select {
	case <-d.timerC():
		d.flush()
	case <-time.After(time.Second):
		t.Fatal("quiet-window timer never fired")
	}
	if flushes != 1 {
		t.Fatalf("flushes: got %d, want 1", flushes)
	}
}

func TestDebouncer_BurstCoalesced(t *testing.T) {
	flushes := 0
	d := newDebouncer(debounceConfig{Window: 20 * time.Millisecond, MaxBuffer: 100}, func() {
		flushes++
	})

	// Signals inside the window keep pushing the deadline out.
	for i := 0; i < 10; i++ {
		if d.add(1) {
			t.Fatal("buffer flush triggered below MaxBuffer")
		}
	}
	<-d.timerC()
	d.flush()

	if flushes != 1 {
		t.Fatalf("flushes: got %d, want 1 (burst must coalesce)", flushes)
	}
}

func TestDebouncer_MaxBufferForcesFlush(t *testing.T) {
	flushes := 0
	d := newDebouncer(debounceConfig{Window: time.Hour, MaxBuffer: 5}, func() {
		flushes++
	})

	d.add(2)
	d.add(2)
	if flushes != 0 {
		t.Fatalf("flushed below the cap: %d", flushes)
	}
	if !d.add(1) {
		t.Fatal("expected immediate flush at MaxBuffer")
	}
	if flushes != 1 {
		t.Fatalf("flushes: got %d, want 1", flushes)
	}
	if d.timerC() != nil {
		t.Fatal("timer must be cleared after a forced flush")
	}
}

func TestDebouncer_CancelSuppressesFlush(t *testing.T) {
	flushes := 0
	d := newDebouncer(debounceConfig{Window: 5 * time.Millisecond, MaxBuffer: 100}, func() {
		flushes++
	})

	d.add(1)
	d.cancel()

	time.Sleep(20 * time.Millisecond)
	if d.timerC() != nil {
		t.Fatal("timer channel still set after cancel")
	}
	if flushes != 0 {
		t.Fatalf("reconcile ran after cancel: %d", flushes)
	}
}

func TestDebouncer_FlushWithoutPendingIsNoop(t *testing.T) {
	flushes := 0
	d := newDebouncer(debounceConfig{}, func() { flushes++ })

	d.flush()
	if flushes != 0 {
		t.Fatalf("empty flush invoked the callback %d times", flushes)
	}
}

func TestDebounceConfig_Defaults(t *testing.T) {
	var dc debounceConfig
	dc.defaults()
	if dc.Window != 500*time.Millisecond {
		t.Errorf("Window: got %v, want 500ms", dc.Window)
	}
	if dc.MaxBuffer != 200 {
		t.Errorf("MaxBuffer: got %d, want 200", dc.MaxBuffer)
	}
}
