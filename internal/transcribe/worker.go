package transcribe

import (
	"context"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Job sources.
const (
	SourceHotkey = "hotkey"
	SourceFile   = "file"
	SourceUpload = "upload"
	SourceWatch  = "watch"
)

// Job is one audio file to transcribe.
type Job struct {
	ID           string
	AudioPath    string
	Source       string
	RemoveSource bool   // delete AudioPath once sinks have run
	OutputPath   string // optional .txt destination
}

// NewJob creates a job with a fresh ID.
func NewJob(audioPath, source string) Job {
	return Job{ID: uuid.NewString(), AudioPath: audioPath, Source: source}
}

// ResultSink consumes finished jobs (history, archive, output files).
type ResultSink interface {
	HandleResult(ctx context.Context, job Job, res Result) error
}

// ResultSinkFunc adapts a function to ResultSink.
type ResultSinkFunc func(ctx context.Context, job Job, res Result) error

func (f ResultSinkFunc) HandleResult(ctx context.Context, job Job, res Result) error {
	return f(ctx, job, res)
}

// QueueStats reports the current state of the transcription queue.
type QueueStats struct {
	Pending   int   `json:"pending"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
}

// WorkerPoolOptions configures the transcription worker pool.
type WorkerPoolOptions struct {
	Orchestrator *Orchestrator
	Sinks        []ResultSink
	Workers      int
	QueueSize    int
	Log          zerolog.Logger
}

// WorkerPool runs queued jobs off the control loop. The orchestrator
// serializes the actual backend work, so extra workers only wait their turn.
type WorkerPool struct {
	jobs   chan Job
	opts   WorkerPoolOptions
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool

	completed atomic.Int64
	failed    atomic.Int64
	cancelled atomic.Int64
}

// NewWorkerPool creates a new transcription worker pool.
func NewWorkerPool(opts WorkerPoolOptions) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		jobs:   make(chan Job, opts.QueueSize),
		opts:   opts,
		log:    opts.Log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.opts.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
	wp.log.Info().Int("workers", wp.opts.Workers).Int("queue_size", wp.opts.QueueSize).Msg("transcription worker pool started")
}

// Stop drains queued jobs and waits for workers to finish.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	close(wp.jobs)
	wp.mu.Unlock()

	wp.wg.Wait()
	wp.cancel()
	wp.log.Info().
		Int64("completed", wp.completed.Load()).
		Int64("failed", wp.failed.Load()).
		Int64("cancelled", wp.cancelled.Load()).
		Msg("transcription worker pool stopped")
}

// Enqueue adds a job to the queue. Returns false if the queue is full or
// the pool is stopped.
func (wp *WorkerPool) Enqueue(j Job) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stopped {
		return false
	}
	select {
	case wp.jobs <- j:
		return true
	default:
		return false
	}
}

// Stats returns current queue statistics.
func (wp *WorkerPool) Stats() QueueStats {
	return QueueStats{
		Pending:   len(wp.jobs),
		Completed: wp.completed.Load(),
		Failed:    wp.failed.Load(),
		Cancelled: wp.cancelled.Load(),
	}
}

// QueueDepth returns the number of jobs waiting for a worker.
func (wp *WorkerPool) QueueDepth() int { return len(wp.jobs) }

// Workers returns the number of worker goroutines.
func (wp *WorkerPool) Workers() int { return wp.opts.Workers }

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	log := wp.log.With().Int("worker", id).Logger()

	for job := range wp.jobs {
		wp.process(log, job)
	}
}

func (wp *WorkerPool) process(log zerolog.Logger, job Job) {
	defer func() {
		if r := recover(); r != nil {
			wp.failed.Add(1)
			log.Error().Interface("panic", r).Str("job_id", job.ID).Msg("transcription job panicked")
		}
	}()

	res := wp.opts.Orchestrator.Run(wp.ctx, job)
	switch res.Outcome {
	case OutcomeCompleted:
		wp.completed.Add(1)
	case OutcomeCancelled:
		wp.cancelled.Add(1)
	default:
		wp.failed.Add(1)
	}

	for _, sink := range wp.opts.Sinks {
		if err := sink.HandleResult(wp.ctx, job, res); err != nil {
			log.Warn().Err(err).Str("job_id", job.ID).Msg("result sink failed")
		}
	}

	if job.RemoveSource {
		if err := os.Remove(job.AudioPath); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", job.AudioPath).Msg("failed to remove source audio")
		}
	}
}
