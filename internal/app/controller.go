package app

import (
	"fmt"

	"github.com/snarg/dictation/internal/api"
	"github.com/snarg/dictation/internal/hotkey"
	"github.com/snarg/dictation/internal/transcribe"
)

var actionsByName = map[string]hotkey.Action{
	hotkey.ActionRecordToggle.String(): hotkey.ActionRecordToggle,
	hotkey.ActionCancel.String():       hotkey.ActionCancel,
	hotkey.ActionEnableToggle.String(): hotkey.ActionEnableToggle,
}

// Status implements api.Controller.
func (a *App) Status() api.Status {
	backend := a.orch.Backend()
	return api.Status{
		Enabled:          a.hotkeys.Enabled(),
		Recording:        a.recorder != nil && a.recorder.Recording(),
		State:            a.orch.State().String(),
		CurrentJob:       a.orch.CurrentJob(),
		Backend:          backend.Name(),
		BackendAvailable: backend.Available(),
		Queue:            a.pool.Stats(),
		Hotkeys:          a.hotkeyMap(),
	}
}

// Enqueue implements api.Controller.
func (a *App) Enqueue(job transcribe.Job) bool { return a.pool.Enqueue(job) }

// Trigger fires a hotkey action by name, as if its binding were pressed.
func (a *App) Trigger(name string) error {
	act, ok := actionsByName[name]
	if !ok {
		return fmt.Errorf("unknown action %q", name)
	}
	if !a.hotkeys.Trigger(act) {
		a.log.Debug().Str("action", name).Msg("action ignored while disabled")
	}
	return nil
}

// UpdateHotkeys rebinds the actions named in changes. Actions not named
// keep their binding. Nothing changes if any hotkey string is invalid.
func (a *App) UpdateHotkeys(changes map[string]string) error {
	current := a.hotkeyMap()
	for name, spec := range changes {
		if _, ok := actionsByName[name]; !ok {
			return fmt.Errorf("unknown action %q", name)
		}
		current[name] = spec
	}
	b := hotkey.Bindings{
		RecordToggle: current[hotkey.ActionRecordToggle.String()],
		Cancel:       current[hotkey.ActionCancel.String()],
		EnableToggle: current[hotkey.ActionEnableToggle.String()],
	}
	if err := a.hotkeys.Update(b); err != nil {
		return err
	}
	if err := a.hook.Reinstall(); err != nil {
		a.log.Error().Err(err).Msg("hook reinstall after rebinding failed")
		return err
	}
	return nil
}

func (a *App) hotkeyMap() map[string]string {
	out := make(map[string]string, 3)
	for act, spec := range a.hotkeys.Specs() {
		out[act.String()] = spec.String()
	}
	return out
}

// QueueDepth, Transcribing and SubscriberCount feed the metrics collector.
func (a *App) QueueDepth() int      { return a.pool.QueueDepth() }
func (a *App) Transcribing() bool   { return a.orch.Busy() }
func (a *App) SubscriberCount() int { return a.bus.SubscriberCount() }
