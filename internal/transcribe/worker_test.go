package transcribe

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestPool(workers, queueSize int, sinks ...ResultSink) *WorkerPool {
	o := NewOrchestrator(OrchestratorOptions{
		Backend:     &fakeBackend{},
		NewSplitter: func() Splitter { return &fakeSplitter{} },
		Log:         zerolog.Nop(),
	})
	return NewWorkerPool(WorkerPoolOptions{
		Orchestrator: o,
		Sinks:        sinks,
		Workers:      workers,
		QueueSize:    queueSize,
		Log:          zerolog.Nop(),
	})
}

func TestNewWorkerPool(t *testing.T) {
	wp := newTestPool(4, 100)
	if wp == nil {
		t.Fatal("NewWorkerPool returned nil")
	}
	if cap(wp.jobs) != 100 {
		t.Errorf("queue capacity = %d, want 100", cap(wp.jobs))
	}
}

func TestNewJob(t *testing.T) {
	a := NewJob("/tmp/a.wav", SourceFile)
	b := NewJob("/tmp/a.wav", SourceFile)
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("job IDs should be unique and non-empty: %q %q", a.ID, b.ID)
	}
	if a.Source != SourceFile || a.AudioPath != "/tmp/a.wav" {
		t.Errorf("NewJob = %+v", a)
	}
}

func TestWorkerPool_EnqueueBeforeStart(t *testing.T) {
	wp := newTestPool(2, 5)
	// Enqueue works before Start; the job is buffered.
	if !wp.Enqueue(NewJob("a.wav", SourceHotkey)) {
		t.Error("Enqueue should return true when queue has space")
	}
}

func TestWorkerPool_EnqueueFull(t *testing.T) {
	wp := newTestPool(0, 2) // nobody draining

	wp.Enqueue(NewJob("1.wav", SourceHotkey))
	wp.Enqueue(NewJob("2.wav", SourceHotkey))

	if wp.Enqueue(NewJob("3.wav", SourceHotkey)) {
		t.Error("Enqueue should return false when queue is full")
	}
}

func TestWorkerPool_EnqueueAfterStop(t *testing.T) {
	wp := newTestPool(1, 10)
	wp.Start()
	wp.Stop()

	if wp.Enqueue(NewJob("a.wav", SourceHotkey)) {
		t.Error("Enqueue should return false after Stop()")
	}
	wp.Stop() // second Stop is a no-op
}

func TestWorkerPool_Stats(t *testing.T) {
	wp := newTestPool(0, 10)

	wp.Enqueue(NewJob("1.wav", SourceHotkey))
	wp.Enqueue(NewJob("2.wav", SourceHotkey))

	stats := wp.Stats()
	if stats.Pending != 2 {
		t.Errorf("Pending = %d, want 2", stats.Pending)
	}
	if wp.QueueDepth() != 2 {
		t.Errorf("QueueDepth = %d, want 2", wp.QueueDepth())
	}
	if stats.Completed != 0 || stats.Failed != 0 || stats.Cancelled != 0 {
		t.Errorf("unexpected counters: %+v", stats)
	}
}

func TestWorkerPool_StopDrains(t *testing.T) {
	wp := newTestPool(2, 10)
	wp.Start()

	done := make(chan struct{})
	go func() {
		wp.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop() did not return within 5 seconds")
	}
}

func TestWorkerPool_Workers(t *testing.T) {
	wp := newTestPool(4, 10)
	if wp.Workers() != 4 {
		t.Errorf("Workers = %d, want 4", wp.Workers())
	}
}

func TestWorkerPool_ProcessesJobs(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "RecordTemp_1.wav")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var got []Result
	sink := ResultSinkFunc(func(_ context.Context, _ Job, res Result) error {
		mu.Lock()
		got = append(got, res)
		mu.Unlock()
		return nil
	})

	wp := newTestPool(1, 10, sink)
	wp.Start()

	keep := NewJob(filepath.Join(dir, "keep.wav"), SourceFile)
	remove := NewJob(src, SourceHotkey)
	remove.RemoveSource = true
	wp.Enqueue(keep)
	wp.Enqueue(remove)
	wp.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("sink saw %d results, want 2", len(got))
	}
	for _, r := range got {
		if r.Outcome != OutcomeCompleted {
			t.Errorf("job %s: Outcome = %s (%v)", r.JobID, r.Outcome, r.Err)
		}
	}
	if got[1].Text != "text-"+src {
		t.Errorf("Text = %q", got[1].Text)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source audio should be removed when RemoveSource is set")
	}
	if s := wp.Stats(); s.Completed != 2 {
		t.Errorf("Completed = %d, want 2", s.Completed)
	}
}
