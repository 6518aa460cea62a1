package hotkey

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

var (
	ErrUnsupported      = errors.New("global hotkeys are not supported on this platform")
	ErrAlreadyInstalled = errors.New("hotkey hook already installed")
)

// Platform is the OS keyboard integration behind a Hook. Install starts
// feeding key presses to m and returns once that is in place or has failed.
type Platform interface {
	Install(m *Manager, log zerolog.Logger) error
	Uninstall() error
}

// Hook owns the process-wide keyboard hook. Key presses it observes are fed
// to the Manager; only one Hook should be installed per process.
type Hook struct {
	m   *Manager
	p   Platform
	log zerolog.Logger

	mu        sync.Mutex
	installed bool
}

// NewHook creates an uninstalled hook feeding m. A nil platform makes
// Install fail with ErrUnsupported.
func NewHook(m *Manager, p Platform, log zerolog.Logger) *Hook {
	return &Hook{m: m, p: p, log: log}
}

// Install starts delivering key events.
func (h *Hook) Install() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.p == nil {
		return ErrUnsupported
	}
	if h.installed {
		return ErrAlreadyInstalled
	}
	if err := h.p.Install(h.m, h.log); err != nil {
		return err
	}
	h.installed = true
	h.log.Info().Msg("keyboard hook installed")
	return nil
}

// Uninstall removes the OS hook. Calling it on an uninstalled hook is a no-op.
func (h *Hook) Uninstall() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.installed {
		return nil
	}
	h.installed = false
	err := h.p.Uninstall()
	h.log.Info().Err(err).Msg("keyboard hook uninstalled")
	return err
}

// Reinstall applies changed bindings to platforms that register keys up
// front. An uninstalled hook stays uninstalled.
func (h *Hook) Reinstall() error {
	h.mu.Lock()
	installed := h.installed
	h.mu.Unlock()
	if !installed {
		return nil
	}
	if err := h.Uninstall(); err != nil {
		return err
	}
	return h.Install()
}
