// Package notify shows desktop notifications for finished jobs.
package notify

import (
	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog"
)

const appName = "Dictation"

// Notifier shows desktop notifications. The zero value is disabled.
type Notifier struct {
	enabled bool
	send    func(title, message, icon string) error
	log     zerolog.Logger
}

// New returns a Notifier. When enabled is false every call is a no-op.
func New(enabled bool, log zerolog.Logger) *Notifier {
	return &Notifier{enabled: enabled, send: beeep.Notify, log: log}
}

// Notify shows title and message. Failures are logged only.
func (n *Notifier) Notify(title, message string) {
	if n == nil || !n.enabled {
		return
	}
	if err := n.send(title, truncate(message, 200), ""); err != nil {
		n.log.Debug().Err(err).Msg("notification failed")
	}
}

// Result announces a finished transcript.
func (n *Notifier) Result(text string) { n.Notify(appName, text) }

// Error announces a failed job.
func (n *Notifier) Error(message string) { n.Notify(appName+" error", message) }

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
