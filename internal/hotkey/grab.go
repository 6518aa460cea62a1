package hotkey

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Grab is one key combination registered with the OS. While registered,
// every press of the combination calls the fire function it was created
// with, and the press does not reach the focused application.
type Grab interface {
	Register() error
	Unregister() error
}

// NewGrabFunc creates an unregistered grab for spec.
type NewGrabFunc func(spec Spec, fire func()) (Grab, error)

// GrabPlatform is a Platform for systems where hotkeys are registered one
// combination at a time. The OS matches the exact modifier set, so presses
// go straight to Manager.Trigger. While the Manager is disabled only the
// enable toggle stays registered and every other key passes through.
type GrabPlatform struct {
	newGrab NewGrabFunc

	mu     sync.Mutex
	m      *Manager
	log    zerolog.Logger
	active map[Action]Grab
}

func NewGrabPlatform(newGrab NewGrabFunc) *GrabPlatform {
	return &GrabPlatform{newGrab: newGrab}
}

func (p *GrabPlatform) Install(m *Manager, log zerolog.Logger) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m = m
	p.log = log
	p.active = make(map[Action]Grab, 3)

	if err := p.register(ActionEnableToggle); err != nil {
		p.releaseAll()
		return err
	}
	if m.Enabled() {
		if err := p.registerActions(); err != nil {
			p.releaseAll()
			return err
		}
	}
	m.OnEnabledChange(p.setEnabled)
	return nil
}

func (p *GrabPlatform) Uninstall() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.m != nil {
		p.m.OnEnabledChange(nil)
	}
	return p.releaseAll()
}

// Registered reports which actions currently hold an OS grab.
func (p *GrabPlatform) Registered() []Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Action
	for _, a := range []Action{ActionRecordToggle, ActionCancel, ActionEnableToggle} {
		if _, ok := p.active[a]; ok {
			out = append(out, a)
		}
	}
	return out
}

func (p *GrabPlatform) setEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return
	}
	if enabled {
		if err := p.registerActions(); err != nil {
			p.log.Error().Err(err).Msg("re-registering hotkeys failed")
		}
		return
	}
	for _, a := range []Action{ActionRecordToggle, ActionCancel} {
		if err := p.release(a); err != nil {
			p.log.Warn().Err(err).Str("action", a.String()).Msg("hotkey unregister failed")
		}
	}
}

func (p *GrabPlatform) registerActions() error {
	for _, a := range []Action{ActionRecordToggle, ActionCancel} {
		if err := p.register(a); err != nil {
			return err
		}
	}
	return nil
}

func (p *GrabPlatform) register(a Action) error {
	if _, ok := p.active[a]; ok {
		return nil
	}
	spec := p.m.Specs()[a]
	m := p.m
	g, err := p.newGrab(spec, func() { m.Trigger(a) })
	if err != nil {
		return fmt.Errorf("%s: %w", a, err)
	}
	if err := g.Register(); err != nil {
		return fmt.Errorf("register %s (%s): %w", a, spec, err)
	}
	p.active[a] = g
	p.log.Debug().Str("action", a.String()).Str("hotkey", spec.String()).Msg("hotkey registered")
	return nil
}

func (p *GrabPlatform) release(a Action) error {
	g, ok := p.active[a]
	if !ok {
		return nil
	}
	delete(p.active, a)
	return g.Unregister()
}

func (p *GrabPlatform) releaseAll() error {
	var firstErr error
	for a := range p.active {
		if err := p.release(a); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
