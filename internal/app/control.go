package app

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/snarg/dictation/internal/events"
	"github.com/snarg/dictation/internal/hotkey"
	"github.com/snarg/dictation/internal/transcribe"
)

// Cancel outcomes reported to callers.
const (
	CancelledRecording     = "recording"
	CancelledTranscription = "transcription"
	CancelledNone          = "none"
)

// queueAction hands a matched hotkey to the control loop. Called from the
// manager's dispatch goroutine, so it must not block.
func (a *App) queueAction(act hotkey.Action) {
	select {
	case a.actions <- act:
	default:
		a.log.Warn().Str("action", act.String()).Msg("control loop busy, hotkey dropped")
	}
}

func (a *App) controlLoop(ctx context.Context, results <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case act := <-a.actions:
			a.handleAction(ctx, act)
		case e, ok := <-results:
			if !ok {
				return
			}
			a.handleOutcome(e)
		}
	}
}

func (a *App) handleAction(ctx context.Context, act hotkey.Action) {
	switch act {
	case hotkey.ActionRecordToggle:
		a.toggleRecording(ctx)
	case hotkey.ActionCancel:
		a.Cancel()
	case hotkey.ActionEnableToggle:
		if a.hotkeys.Enabled() {
			a.bus.Publish(events.TypeEnabled, "", "STT Enabled", map[string]bool{"enabled": true})
		} else {
			a.bus.Publish(events.TypeEnabled, "", "STT Disabled", map[string]bool{"enabled": false})
		}
	}
}

// toggleRecording starts a capture, or stops the running one and queues it.
func (a *App) toggleRecording(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.recorder == nil {
		a.bus.Publish(events.TypeError, "", "Recording is not available", nil)
		return
	}

	if !a.recorder.Recording() {
		if err := a.recorder.Start(ctx); err != nil {
			a.log.Error().Err(err).Msg("failed to start recording")
			a.bus.Publish(events.TypeError, "", "Recording failed: "+err.Error(), nil)
			return
		}
		a.bus.Publish(events.TypeRecording, "", "Recording...", map[string]bool{"recording": true})
		return
	}

	rec, err := a.recorder.Stop()
	a.bus.Publish(events.TypeRecording, "", "Recording stopped", map[string]bool{"recording": false})
	if err != nil {
		a.log.Error().Err(err).Msg("recording failed")
		a.bus.Publish(events.TypeError, "", "Recording failed: "+err.Error(), nil)
		return
	}
	if rec.Frames == 0 {
		os.Remove(rec.Path)
		a.bus.Publish(events.TypeStatus, "", "No audio recorded", nil)
		return
	}

	job := transcribe.NewJob(rec.Path, transcribe.SourceHotkey)
	job.RemoveSource = true
	if !a.pool.Enqueue(job) {
		os.Remove(rec.Path)
		a.log.Warn().Str("job_id", job.ID).Msg("transcription queue full, recording dropped")
		a.bus.Publish(events.TypeError, job.ID, "Transcription queue full", nil)
		return
	}
	a.log.Info().Str("job_id", job.ID).Dur("duration", rec.Duration).Msg("recording queued")
}

// Cancel discards an active recording, else cancels the running job, else
// just reports "Cancelled".
func (a *App) Cancel() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.recorder != nil && a.recorder.Recording() {
		if err := a.recorder.Cancel(); err != nil {
			a.log.Warn().Err(err).Msg("recording cancel failed")
		}
		a.bus.Publish(events.TypeRecording, "", "Recording stopped", map[string]bool{"recording": false})
		a.bus.Publish(events.TypeCancelled, "", "Recording cancelled", nil)
		return CancelledRecording
	}
	// The orchestrator publishes the job's own cancelled event when it stops.
	if a.orch.Cancel() {
		return CancelledTranscription
	}
	a.bus.Publish(events.TypeCancelled, "", "Cancelled", nil)
	return CancelledNone
}

// handleOutcome pastes and announces results of hotkey recordings. Uploads
// and watched files are never pasted into the focused window.
func (a *App) handleOutcome(e events.Event) {
	var meta struct {
		Source string `json:"source"`
	}
	if len(e.Data) > 0 {
		json.Unmarshal(e.Data, &meta)
	}
	switch e.Type {
	case events.TypeResult:
		if meta.Source != transcribe.SourceHotkey {
			return
		}
		if strings.TrimSpace(e.Message) == "" {
			a.log.Info().Str("job_id", e.JobID).Msg("no speech detected")
			a.bus.Publish(events.TypeStatus, e.JobID, "No speech detected", nil)
			return
		}
		if a.paster != nil {
			if err := a.paster.Paste(e.Message); err != nil {
				a.log.Warn().Err(err).Str("job_id", e.JobID).Msg("paste failed")
			}
		}
		if a.notifier != nil {
			a.notifier.Result(e.Message)
		}
	case events.TypeError:
		// Errors without a source come from the recorder or the queue.
		if meta.Source != "" && meta.Source != transcribe.SourceHotkey {
			return
		}
		if a.notifier != nil {
			a.notifier.Error(e.Message)
		}
	}
}
