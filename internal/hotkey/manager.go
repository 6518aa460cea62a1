package hotkey

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/dictation/internal/metrics"
)

// Action is something a hotkey can trigger.
type Action int

const (
	ActionRecordToggle Action = iota + 1
	ActionCancel
	ActionEnableToggle
)

func (a Action) String() string {
	switch a {
	case ActionRecordToggle:
		return "record_toggle"
	case ActionCancel:
		return "cancel"
	case ActionEnableToggle:
		return "enable_toggle"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Bindings maps each action to its hotkey string.
type Bindings struct {
	RecordToggle string
	Cancel       string
	EnableToggle string
}

func (b Bindings) parse() (map[Action]Spec, error) {
	specs := make(map[Action]Spec, 3)
	for a, s := range map[Action]string{
		ActionRecordToggle: b.RecordToggle,
		ActionCancel:       b.Cancel,
		ActionEnableToggle: b.EnableToggle,
	} {
		spec, err := ParseSpec(s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", a, err)
		}
		specs[a] = spec
	}
	return specs, nil
}

// Manager decides what a key press means and dispatches the matching
// action callback on its own goroutine so hook delivery returns quickly.
type Manager struct {
	mu       sync.RWMutex
	specs    map[Action]Spec
	enabled  bool
	handlers map[Action]func()
	onToggle func(enabled bool)

	debounce *Debouncer
	dispatch func(func())
	log      zerolog.Logger
}

// NewManager parses the bindings and returns an enabled manager.
func NewManager(b Bindings, debounce time.Duration, log zerolog.Logger) (*Manager, error) {
	specs, err := b.parse()
	if err != nil {
		return nil, err
	}
	return &Manager{
		specs:    specs,
		enabled:  true,
		handlers: make(map[Action]func()),
		debounce: NewDebouncer(debounce),
		dispatch: func(fn func()) { go fn() },
		log:      log,
	}, nil
}

// On registers the callback for an action, replacing any previous one.
func (m *Manager) On(a Action, fn func()) {
	m.mu.Lock()
	m.handlers[a] = fn
	m.mu.Unlock()
}

// OnEnabledChange registers fn to run synchronously whenever the enable
// toggle flips. A nil fn removes the listener.
func (m *Manager) OnEnabledChange(fn func(enabled bool)) {
	m.mu.Lock()
	m.onToggle = fn
	m.mu.Unlock()
}

// Update replaces all bindings at once. On error the old bindings stay.
func (m *Manager) Update(b Bindings) error {
	specs, err := b.parse()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.specs = specs
	m.mu.Unlock()
	m.log.Info().
		Str("record_toggle", specs[ActionRecordToggle].String()).
		Str("cancel", specs[ActionCancel].String()).
		Str("enable_toggle", specs[ActionEnableToggle].String()).
		Msg("hotkeys updated")
	return nil
}

// Specs returns a copy of the current bindings.
func (m *Manager) Specs() map[Action]Spec {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[Action]Spec, len(m.specs))
	for a, s := range m.specs {
		out[a] = s
	}
	return out
}

// Enabled reports whether the utility currently reacts to hotkeys other
// than the enable toggle.
func (m *Manager) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// HandleKeyDown matches a raw key-down event and returns true when the key
// should be swallowed instead of reaching the focused application.
func (m *Manager) HandleKeyDown(key string, state ModifierState) bool {
	m.mu.RLock()
	specs := m.specs
	enabled := m.enabled
	m.mu.RUnlock()

	if specs[ActionEnableToggle].Match(key, state) {
		return m.Trigger(ActionEnableToggle)
	}
	if !enabled {
		return false
	}
	if specs[ActionRecordToggle].Match(key, state) {
		m.Trigger(ActionRecordToggle)
		return true
	}
	if specs[ActionCancel].Match(key, state) {
		return m.Trigger(ActionCancel)
	}
	return false
}

// Trigger fires an action that has already been matched, applying the
// enable state and the record-toggle debounce. It reports whether the
// action was handled.
func (m *Manager) Trigger(a Action) bool {
	if a == ActionEnableToggle {
		m.mu.Lock()
		m.enabled = !m.enabled
		enabled := m.enabled
		onToggle := m.onToggle
		m.mu.Unlock()
		m.log.Info().Bool("enabled", enabled).Msg("hotkeys toggled")
		if onToggle != nil {
			onToggle(enabled)
		}
		m.fire(a)
		return true
	}
	if !m.Enabled() {
		return false
	}
	if a == ActionRecordToggle && !m.debounce.Allow() {
		m.log.Debug().Msg("record toggle debounced")
		return true
	}
	m.fire(a)
	return true
}

func (m *Manager) fire(a Action) {
	metrics.HotkeyTriggersTotal.WithLabelValues(a.String()).Inc()
	m.mu.RLock()
	fn := m.handlers[a]
	m.mu.RUnlock()
	if fn != nil {
		m.dispatch(fn)
	}
}
