package hotkey

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeClock advances only when told to.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestDebouncer(t *testing.T) {
	t.Run("within_window_registers_once", func(t *testing.T) {
		clk := &fakeClock{now: time.Unix(1000, 0)}
		d := NewDebouncer(300 * time.Millisecond)
		d.now = clk.Now

		if !d.Allow() {
			t.Fatal("first trigger should be allowed")
		}
		clk.Advance(100 * time.Millisecond)
		if d.Allow() {
			t.Error("second trigger within window should be rejected")
		}
	})

	t.Run("after_window_registers_twice", func(t *testing.T) {
		clk := &fakeClock{now: time.Unix(1000, 0)}
		d := NewDebouncer(300 * time.Millisecond)
		d.now = clk.Now

		d.Allow()
		clk.Advance(301 * time.Millisecond)
		if !d.Allow() {
			t.Error("trigger after window should be allowed")
		}
	})

	t.Run("rejected_trigger_does_not_extend_window", func(t *testing.T) {
		clk := &fakeClock{now: time.Unix(1000, 0)}
		d := NewDebouncer(300 * time.Millisecond)
		d.now = clk.Now

		d.Allow()
		clk.Advance(200 * time.Millisecond)
		d.Allow()
		clk.Advance(150 * time.Millisecond)
		if !d.Allow() {
			t.Error("window should be measured from the last accepted trigger")
		}
	})
}

func newTestManager(t *testing.T) (*Manager, *fakeClock, map[Action]int) {
	t.Helper()
	m, err := NewManager(Bindings{
		RecordToggle: "*",
		Cancel:       "-",
		EnableToggle: "ctrl+alt+*",
	}, 300*time.Millisecond, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	clk := &fakeClock{now: time.Unix(1000, 0)}
	m.debounce.now = clk.Now
	m.dispatch = func(fn func()) { fn() }

	counts := make(map[Action]int)
	for _, a := range []Action{ActionRecordToggle, ActionCancel, ActionEnableToggle} {
		a := a
		m.On(a, func() { counts[a]++ })
	}
	return m, clk, counts
}

func TestManagerHandleKeyDown(t *testing.T) {
	t.Run("record_toggle_fires_and_suppresses", func(t *testing.T) {
		m, _, counts := newTestManager(t)
		if !m.HandleKeyDown("*", StaticState(0)) {
			t.Error("record key should be suppressed")
		}
		if counts[ActionRecordToggle] != 1 {
			t.Errorf("record toggles = %d, want 1", counts[ActionRecordToggle])
		}
	})

	t.Run("debounced_record_toggle_still_suppressed", func(t *testing.T) {
		m, clk, counts := newTestManager(t)
		m.HandleKeyDown("*", StaticState(0))
		clk.Advance(50 * time.Millisecond)
		if !m.HandleKeyDown("*", StaticState(0)) {
			t.Error("debounced record key should still be suppressed")
		}
		if counts[ActionRecordToggle] != 1 {
			t.Errorf("record toggles = %d, want 1", counts[ActionRecordToggle])
		}
		clk.Advance(time.Second)
		m.HandleKeyDown("*", StaticState(0))
		if counts[ActionRecordToggle] != 2 {
			t.Errorf("record toggles = %d, want 2", counts[ActionRecordToggle])
		}
	})

	t.Run("unmatched_key_passes_through", func(t *testing.T) {
		m, _, counts := newTestManager(t)
		if m.HandleKeyDown("a", StaticState(0)) {
			t.Error("unbound key should not be suppressed")
		}
		if m.HandleKeyDown("*", StaticState(ModShift)) {
			t.Error("record key with extra modifier should not be suppressed")
		}
		if len(counts) != 0 {
			t.Errorf("no action should fire, got %v", counts)
		}
	})

	t.Run("enable_toggle_disables_other_keys", func(t *testing.T) {
		m, _, counts := newTestManager(t)
		if !m.HandleKeyDown("*", StaticState(ModCtrl|ModAlt)) {
			t.Error("enable toggle should be suppressed")
		}
		if m.Enabled() {
			t.Fatal("manager should be disabled after enable toggle")
		}
		if m.HandleKeyDown("*", StaticState(0)) {
			t.Error("record key should pass through while disabled")
		}
		if m.HandleKeyDown("-", StaticState(0)) {
			t.Error("cancel key should pass through while disabled")
		}
		if counts[ActionRecordToggle] != 0 || counts[ActionCancel] != 0 {
			t.Errorf("no actions should fire while disabled, got %v", counts)
		}

		m.HandleKeyDown("*", StaticState(ModCtrl|ModAlt))
		if !m.Enabled() {
			t.Error("second enable toggle should re-enable")
		}
		if counts[ActionEnableToggle] != 2 {
			t.Errorf("enable toggles = %d, want 2", counts[ActionEnableToggle])
		}
	})

	t.Run("cancel_is_not_debounced", func(t *testing.T) {
		m, _, counts := newTestManager(t)
		m.HandleKeyDown("-", StaticState(0))
		m.HandleKeyDown("-", StaticState(0))
		if counts[ActionCancel] != 2 {
			t.Errorf("cancels = %d, want 2", counts[ActionCancel])
		}
	})
}

func TestManagerUpdate(t *testing.T) {
	m, _, counts := newTestManager(t)

	if err := m.Update(Bindings{RecordToggle: "ctrl+hyper+r", Cancel: "esc", EnableToggle: "f12"}); err == nil {
		t.Fatal("expected error for invalid binding")
	}
	if !m.HandleKeyDown("*", StaticState(0)) {
		t.Error("old bindings should remain after failed update")
	}

	if err := m.Update(Bindings{RecordToggle: "ctrl+r", Cancel: "esc", EnableToggle: "f12"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if m.Specs()[ActionRecordToggle].String() != "ctrl+r" {
		t.Errorf("record spec = %q, want ctrl+r", m.Specs()[ActionRecordToggle])
	}
	if !m.HandleKeyDown("esc", StaticState(0)) || counts[ActionCancel] != 1 {
		t.Error("new cancel binding should fire")
	}
}
