package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"
	"github.com/snarg/dictation/internal/config"
	"github.com/snarg/dictation/internal/events"
	"github.com/snarg/dictation/internal/record"
	"github.com/snarg/dictation/internal/transcribe"
)

// fakeBackend returns a fixed text. With block set, Transcribe waits until
// the cancel flag is raised.
type fakeBackend struct {
	text      string
	block     bool
	calls     atomic.Int32
	busy      atomic.Bool
	cancelled atomic.Bool
}

func (b *fakeBackend) Name() string    { return "fake/test" }
func (b *fakeBackend) Available() bool { return true }
func (b *fakeBackend) Cancel()         { b.cancelled.Store(true) }
func (b *fakeBackend) ResetCancel()    { b.cancelled.Store(false) }
func (b *fakeBackend) Cancelled() bool { return b.cancelled.Load() }
func (b *fakeBackend) Busy() bool      { return b.busy.Load() }

func (b *fakeBackend) Transcribe(ctx context.Context, path string) (string, error) {
	b.calls.Add(1)
	b.busy.Store(true)
	defer b.busy.Store(false)
	for b.block && !b.Cancelled() {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(2 * time.Millisecond):
		}
	}
	if b.Cancelled() {
		return "", transcribe.ErrCancelled
	}
	return b.text, nil
}

type fakeStream struct{}

func (fakeStream) Read(dst []int16) (int, error) {
	time.Sleep(time.Millisecond)
	for i := range dst {
		dst[i] = 500
	}
	return len(dst), nil
}

func (fakeStream) Close() error { return nil }

type fakePaster struct {
	mu    sync.Mutex
	texts []string
}

func (p *fakePaster) Paste(text string) error {
	p.mu.Lock()
	p.texts = append(p.texts, text)
	p.mu.Unlock()
	return nil
}

func (p *fakePaster) pasted() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.texts...)
}

type fakeNotifier struct {
	mu      sync.Mutex
	results []string
	errors  []string
}

func (n *fakeNotifier) Result(text string) {
	n.mu.Lock()
	n.results = append(n.results, text)
	n.mu.Unlock()
}

func (n *fakeNotifier) Error(msg string) {
	n.mu.Lock()
	n.errors = append(n.errors, msg)
	n.mu.Unlock()
}

func (n *fakeNotifier) errorCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.errors)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Backend:            config.BackendAPIWhisper,
		MaxFileSizeMB:      25,
		ChunkMaxSizeMB:     20,
		TempDir:            t.TempDir(),
		HotkeyRecordToggle: "*",
		HotkeyCancel:       "-",
		HotkeyEnableToggle: "ctrl+alt+*",
		SampleRate:         16000,
		Channels:           1,
		Workers:            1,
		QueueSize:          4,
	}
}

type harness struct {
	app      *App
	backend  *fakeBackend
	paster   *fakePaster
	notifier *fakeNotifier
	cfg      *config.Config
}

// startApp runs an app in the background and stops it when the test ends.
func startApp(t *testing.T, backend *fakeBackend, withRecorder bool) *harness {
	t.Helper()
	h := &harness{backend: backend, paster: &fakePaster{}, notifier: &fakeNotifier{}, cfg: testConfig(t)}
	opts := Options{
		Config:   h.cfg,
		Backend:  backend,
		Paster:   h.paster,
		Notifier: h.notifier,
		Log:      zerolog.Nop(),
	}
	if withRecorder {
		opts.Open = func(int, int, int) (record.Stream, error) { return fakeStream{}, nil }
	}
	a, err := New(context.Background(), opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.app = a

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := a.Run(ctx); err != nil {
			t.Errorf("Run: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func nextEvent(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return events.Event{}
}

func writeTestWav(t *testing.T, path string, frames int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, 16000, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: 16000},
		Data:           make([]int, frames),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()
}

func TestRecordToggleTranscribesAndPastes(t *testing.T) {
	h := startApp(t, &fakeBackend{text: "hello world"}, true)
	results, cancel := h.app.Bus().Subscribe(events.Filter{Types: []string{events.TypeResult}})
	defer cancel()

	if err := h.app.Trigger("record_toggle"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "recording", func() bool { return h.app.Status().Recording })
	time.Sleep(20 * time.Millisecond)
	h.app.Trigger("record_toggle")

	e := nextEvent(t, results)
	if e.Message != "hello world" {
		t.Errorf("result = %q", e.Message)
	}
	waitFor(t, "paste", func() bool { return len(h.paster.pasted()) == 1 })
	if got := h.paster.pasted()[0]; got != "hello world" {
		t.Errorf("pasted %q", got)
	}

	waitFor(t, "recording removed", func() bool {
		m, _ := filepath.Glob(filepath.Join(h.cfg.TempDir, record.TempPrefix+"*"))
		return len(m) == 0
	})
}

func TestCancelRouting(t *testing.T) {
	t.Run("idle_publishes_cancelled", func(t *testing.T) {
		h := startApp(t, &fakeBackend{text: "x"}, true)
		ch, cancel := h.app.Bus().Subscribe(events.Filter{Types: []string{events.TypeCancelled}})
		defer cancel()

		if got := h.app.Cancel(); got != CancelledNone {
			t.Errorf("Cancel() = %q, want %q", got, CancelledNone)
		}
		if e := nextEvent(t, ch); e.Message != "Cancelled" {
			t.Errorf("message = %q", e.Message)
		}
	})

	t.Run("recording_is_discarded", func(t *testing.T) {
		backend := &fakeBackend{text: "x"}
		h := startApp(t, backend, true)
		h.app.Trigger("record_toggle")
		waitFor(t, "recording", func() bool { return h.app.Status().Recording })

		if got := h.app.Cancel(); got != CancelledRecording {
			t.Errorf("Cancel() = %q, want %q", got, CancelledRecording)
		}
		if h.app.Status().Recording {
			t.Error("still recording after cancel")
		}
		m, _ := filepath.Glob(filepath.Join(h.cfg.TempDir, record.TempPrefix+"*"))
		if len(m) != 0 {
			t.Errorf("recording files left: %v", m)
		}
		time.Sleep(20 * time.Millisecond)
		if n := backend.calls.Load(); n != 0 {
			t.Errorf("backend called %d times", n)
		}
	})

	t.Run("running_job_is_cancelled", func(t *testing.T) {
		backend := &fakeBackend{block: true}
		h := startApp(t, backend, false)
		ch, cancel := h.app.Bus().Subscribe(events.Filter{Types: []string{events.TypeCancelled}})
		defer cancel()

		path := filepath.Join(t.TempDir(), "memo.wav")
		writeTestWav(t, path, 1600)
		job := transcribe.NewJob(path, transcribe.SourceUpload)
		if !h.app.Enqueue(job) {
			t.Fatal("enqueue rejected")
		}
		waitFor(t, "backend call", func() bool { return backend.Busy() })

		if got := h.app.Cancel(); got != CancelledTranscription {
			t.Errorf("Cancel() = %q, want %q", got, CancelledTranscription)
		}
		e := nextEvent(t, ch)
		if e.JobID != job.ID {
			t.Errorf("cancelled job = %q, want %q", e.JobID, job.ID)
		}
		waitFor(t, "stats", func() bool { return h.app.Status().Queue.Cancelled == 1 })
	})
}

func TestEnableToggle(t *testing.T) {
	h := startApp(t, &fakeBackend{text: "x"}, true)
	ch, cancel := h.app.Bus().Subscribe(events.Filter{Types: []string{events.TypeEnabled}})
	defer cancel()

	h.app.Trigger("enable_toggle")
	if e := nextEvent(t, ch); e.Message != "STT Disabled" {
		t.Errorf("message = %q, want STT Disabled", e.Message)
	}
	if h.app.Status().Enabled {
		t.Error("still enabled")
	}

	// Disabled: record toggle is ignored.
	h.app.Trigger("record_toggle")
	time.Sleep(30 * time.Millisecond)
	if h.app.Status().Recording {
		t.Error("recording started while disabled")
	}

	h.app.Trigger("enable_toggle")
	if e := nextEvent(t, ch); e.Message != "STT Enabled" {
		t.Errorf("message = %q, want STT Enabled", e.Message)
	}
}

func TestTriggerUnknownAction(t *testing.T) {
	h := startApp(t, &fakeBackend{}, false)
	if err := h.app.Trigger("explode"); err == nil {
		t.Error("expected error for unknown action")
	}
}

func TestUpdateHotkeys(t *testing.T) {
	h := startApp(t, &fakeBackend{}, false)

	if err := h.app.UpdateHotkeys(map[string]string{"record_toggle": "ctrl+shift+r"}); err != nil {
		t.Fatalf("UpdateHotkeys: %v", err)
	}
	got := h.app.Status().Hotkeys
	if got["record_toggle"] != "ctrl+shift+r" || got["cancel"] != "-" {
		t.Errorf("hotkeys = %v", got)
	}

	for name, changes := range map[string]map[string]string{
		"unknown_action": {"explode": "f1"},
		"invalid_spec":   {"cancel": "hyper+x"},
	} {
		t.Run(name, func(t *testing.T) {
			if err := h.app.UpdateHotkeys(changes); err == nil {
				t.Fatal("expected error")
			}
			if got := h.app.Status().Hotkeys["record_toggle"]; got != "ctrl+shift+r" {
				t.Errorf("record_toggle = %q after failed update", got)
			}
		})
	}
}

func TestRecordingUnavailable(t *testing.T) {
	h := startApp(t, &fakeBackend{}, false)
	ch, cancel := h.app.Bus().Subscribe(events.Filter{Types: []string{events.TypeError}})
	defer cancel()

	h.app.Trigger("record_toggle")
	e := nextEvent(t, ch)
	if !strings.Contains(e.Message, "not available") {
		t.Errorf("message = %q", e.Message)
	}
	waitFor(t, "error notification", func() bool { return h.notifier.errorCount() == 1 })
}

func TestHandleOutcomeOnlyPastesHotkeyJobs(t *testing.T) {
	tests := []struct {
		name       string
		data       string
		message    string
		wantPasted bool
	}{
		{"hotkey_result", `{"source":"hotkey"}`, "dictated", true},
		{"upload_result", `{"source":"upload"}`, "uploaded", false},
		{"watch_result", `{"source":"watch"}`, "watched", false},
		{"blank_hotkey_result", `{"source":"hotkey"}`, "   ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePaster{}
			a := &App{paster: p, bus: events.NewBus(8), log: zerolog.Nop()}
			a.handleOutcome(events.Event{Type: events.TypeResult, Message: tt.message, Data: []byte(tt.data)})
			if got := len(p.pasted()) == 1; got != tt.wantPasted {
				t.Errorf("pasted = %v, want %v", got, tt.wantPasted)
			}
		})
	}
}

func TestTranscribeFile(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), Options{Config: cfg, Backend: &fakeBackend{text: "from a file"}, Log: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	in := filepath.Join(t.TempDir(), "meeting.wav")
	writeTestWav(t, in, 1600)

	t.Run("default_output_path", func(t *testing.T) {
		res := a.TranscribeFile(context.Background(), in, "")
		if res.Outcome != transcribe.OutcomeCompleted {
			t.Fatalf("outcome = %s, err %v", res.Outcome, res.Err)
		}
		data, err := os.ReadFile(strings.TrimSuffix(in, ".wav") + ".txt")
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != "from a file\n" {
			t.Errorf("output = %q", data)
		}
		if _, err := os.Stat(in); err != nil {
			t.Error("input file was removed")
		}
	})

	t.Run("explicit_output_path", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "out", "result.txt")
		a.TranscribeFile(context.Background(), in, out)
		if _, err := os.Stat(out); err != nil {
			t.Errorf("output missing: %v", err)
		}
	})
}

func TestStatus(t *testing.T) {
	h := startApp(t, &fakeBackend{}, true)
	st := h.app.Status()
	if !st.Enabled || st.Recording || st.State != "idle" {
		t.Errorf("status = %+v", st)
	}
	if st.Backend != "fake/test" || !st.BackendAvailable {
		t.Errorf("backend = %q available=%v", st.Backend, st.BackendAvailable)
	}
	if st.Hotkeys["record_toggle"] == "" || len(st.Hotkeys) != 3 {
		t.Errorf("hotkeys = %v", st.Hotkeys)
	}
}

func TestSinksRecordHistoryAndArchive(t *testing.T) {
	cfg := testConfig(t)
	cfg.HistoryPath = filepath.Join(t.TempDir(), "history.db")
	cfg.ArchiveDir = t.TempDir()
	a, err := New(context.Background(), Options{Config: cfg, Backend: &fakeBackend{text: "archived words"}, Log: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	in := filepath.Join(t.TempDir(), "note.wav")
	writeTestWav(t, in, 800)
	res := a.TranscribeFile(context.Background(), in, "")
	if res.Outcome != transcribe.OutcomeCompleted {
		t.Fatalf("outcome = %s", res.Outcome)
	}

	entry, err := a.history.Get(context.Background(), res.JobID)
	if err != nil {
		t.Fatalf("history Get: %v", err)
	}
	if entry.Text != "archived words" || entry.Source != transcribe.SourceFile {
		t.Errorf("entry = %+v", entry)
	}

	matches, _ := filepath.Glob(filepath.Join(cfg.ArchiveDir, "*", res.JobID+".*"))
	if len(matches) != 3 {
		t.Errorf("archived files = %v, want audio, text and metadata", matches)
	}
}
