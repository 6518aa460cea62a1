// Package paste puts transcripts into the focused application through the
// clipboard and a synthetic paste shortcut.
package paste

import (
	"fmt"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/rs/zerolog"
)

// Clipboard reads and writes system clipboard text.
type Clipboard interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

// Keys sends the platform paste shortcut.
type Keys interface {
	Paste() error
}

type systemClipboard struct{}

func (systemClipboard) ReadAll() (string, error)   { return clipboard.ReadAll() }
func (systemClipboard) WriteAll(text string) error { return clipboard.WriteAll(text) }

// Paster writes text to the clipboard, sends the paste shortcut, then puts
// the previous clipboard content back.
type Paster struct {
	clip   Clipboard
	keys   Keys
	settle time.Duration // wait after writing before pasting
	hold   time.Duration // wait after pasting before restoring
	log    zerolog.Logger

	mu sync.Mutex
}

// New returns a Paster using the system clipboard and keyboard.
func New(log zerolog.Logger) (*Paster, error) {
	keys, err := newSystemKeys()
	if err != nil {
		return nil, fmt.Errorf("init keyboard: %w", err)
	}
	return &Paster{
		clip:   systemClipboard{},
		keys:   keys,
		settle: 80 * time.Millisecond,
		hold:   120 * time.Millisecond,
		log:    log,
	}, nil
}

// Paste types text into the active window. Empty text is ignored.
func (p *Paster) Paste(text string) error {
	if text == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	orig, readErr := p.clip.ReadAll()
	if err := p.clip.WriteAll(text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	time.Sleep(p.settle)

	pasteErr := p.keys.Paste()
	time.Sleep(p.hold)

	if readErr == nil {
		if err := p.clip.WriteAll(orig); err != nil {
			p.log.Warn().Err(err).Msg("failed to restore clipboard")
		}
	}
	if pasteErr != nil {
		return fmt.Errorf("send paste shortcut: %w", pasteErr)
	}
	p.log.Debug().Int("chars", len(text)).Msg("text pasted")
	return nil
}
