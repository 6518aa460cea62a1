package api

import (
	"context"

	"github.com/snarg/dictation/internal/events"
	"github.com/snarg/dictation/internal/history"
	"github.com/snarg/dictation/internal/transcribe"
	"github.com/snarg/dictation/internal/watch"
)

// Status is the live state of the utility.
type Status struct {
	Enabled          bool                  `json:"enabled"`
	Recording        bool                  `json:"recording"`
	State            string                `json:"state"`
	CurrentJob       string                `json:"current_job,omitempty"`
	Backend          string                `json:"backend"`
	BackendAvailable bool                  `json:"backend_available"`
	Queue            transcribe.QueueStats `json:"queue"`
	Hotkeys          map[string]string     `json:"hotkeys"`
}

// Controller is the application control loop as seen by the API.
type Controller interface {
	Status() Status
	// Enqueue queues a transcription job; false means the queue is full.
	Enqueue(job transcribe.Job) bool
	// Cancel routes a cancel request and reports what it hit:
	// "recording", "transcription" or "none".
	Cancel() string
	// Trigger fires a hotkey action by name.
	Trigger(action string) error
	// UpdateHotkeys rebinds actions by name; unnamed actions keep theirs.
	UpdateHotkeys(changes map[string]string) error
}

// EventSource is the event bus.
type EventSource interface {
	Subscribe(filter events.Filter) (<-chan events.Event, func())
	ReplaySince(lastEventID string, filter events.Filter) []events.Event
	Recent(n int) []events.Event
}

// HistoryStore is the transcription history.
type HistoryStore interface {
	List(ctx context.Context, f history.ListFilter) ([]history.Entry, int, error)
	Get(ctx context.Context, jobID string) (history.Entry, error)
}

// ConnectionChecker reports broker connectivity.
type ConnectionChecker interface {
	IsConnected() bool
}

// WatcherStatus reports the watch-folder state.
type WatcherStatus interface {
	Status() watch.Status
}
