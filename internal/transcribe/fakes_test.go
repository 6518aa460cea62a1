package transcribe

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/snarg/dictation/internal/audio"
	"github.com/snarg/dictation/internal/events"
)

// fakeBackend returns "text-<path>" unless texts overrides it. It checks
// the cancel flag before and after each call and has no chunk batch method.
type fakeBackend struct {
	flags
	unavailable bool
	texts       map[string]string
	errs        map[string]error
	cancelAfter int // raise the cancel flag after this many calls; 0 = never
	hook        func()

	mu    sync.Mutex
	calls []string
}

func (b *fakeBackend) Name() string    { return "fake" }
func (b *fakeBackend) Available() bool { return !b.unavailable }

func (b *fakeBackend) Transcribe(ctx context.Context, path string) (string, error) {
	if err := b.acquire(); err != nil {
		return "", err
	}
	defer b.release()
	if err := b.checkCancel(); err != nil {
		return "", err
	}
	if b.hook != nil {
		b.hook()
	}

	b.mu.Lock()
	b.calls = append(b.calls, path)
	n := len(b.calls)
	b.mu.Unlock()

	if b.cancelAfter > 0 && n == b.cancelAfter {
		b.Cancel()
	}
	if err := b.checkCancel(); err != nil {
		return "", err
	}
	if err := b.errs[path]; err != nil {
		return "", err
	}
	if t, ok := b.texts[path]; ok {
		return t, nil
	}
	return "text-" + path, nil
}

func (b *fakeBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

// plainBackend hides any TranscribeChunks method of the wrapped backend.
type plainBackend struct{ Backend }

type fakeSplitter struct {
	needs    bool
	sizeMB   float64
	chunks   []string
	sizeErr  error
	splitErr error
	onCheck  func()

	mu       sync.Mutex
	cleanups int
}

func (s *fakeSplitter) CheckFileSize(string) (bool, float64, error) {
	if s.onCheck != nil {
		s.onCheck()
	}
	return s.needs, s.sizeMB, s.sizeErr
}

func (s *fakeSplitter) SplitAudioFile(_ context.Context, _ string, progress audio.ProgressFunc) ([]string, error) {
	if s.splitErr != nil {
		return nil, s.splitErr
	}
	for i := range s.chunks {
		progress(fmt.Sprintf("Created chunk %d/%d", i+1, len(s.chunks)))
	}
	return s.chunks, nil
}

func (s *fakeSplitter) CleanupTempFiles() {
	s.mu.Lock()
	s.cleanups++
	s.mu.Unlock()
}

func (s *fakeSplitter) cleanupCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanups
}

type recordedEvent struct {
	typ, jobID, msg string
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *fakePublisher) Publish(typ, jobID, message string, _ any) events.Event {
	p.mu.Lock()
	p.events = append(p.events, recordedEvent{typ, jobID, message})
	p.mu.Unlock()
	return events.Event{Type: typ, JobID: jobID, Message: message}
}

func (p *fakePublisher) ofType(typ string) []recordedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []recordedEvent
	for _, e := range p.events {
		if e.typ == typ {
			out = append(out, e)
		}
	}
	return out
}

// fakeProvider answers "text-<path>" and counts calls.
type fakeProvider struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *fakeProvider) Name() string  { return "fakeprov" }
func (p *fakeProvider) Model() string { return "m1" }

func (p *fakeProvider) Transcribe(_ context.Context, path string, _ TranscribeOpts) (*Response, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return &Response{Text: "  text-" + path + " "}, nil
}

func newTestOrchestrator(b Backend, sp Splitter, pub Publisher) *Orchestrator {
	return NewOrchestrator(OrchestratorOptions{
		Backend:     b,
		NewSplitter: func() Splitter { return sp },
		Publisher:   pub,
		Log:         zerolog.Nop(),
	})
}

var (
	errBoom = errors.New("boom: upstream 500")
	nopLog  = zerolog.Nop()
)
