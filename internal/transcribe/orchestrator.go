package transcribe

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/dictation/internal/audio"
	"github.com/snarg/dictation/internal/events"
	"github.com/snarg/dictation/internal/metrics"
)

// State is the orchestrator's position in a job.
type State int32

const (
	StateIdle State = iota
	StateChecking
	StateDirect
	StateSplitting
	StateTranscribing
	StateCompleted
	StateCancelled
	StateFailed
)

var stateNames = [...]string{"idle", "checking", "direct", "splitting", "transcribing", "completed", "cancelled", "failed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Outcome is how a job ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// Result is what a job produced. Err is set, as an *Error, unless the
// outcome is completed.
type Result struct {
	JobID     string
	Source    string
	AudioPath string
	Backend   string
	Outcome   Outcome
	Text      string
	Err       error
	SizeMB    float64
	Chunks    int // 0 for direct transcription
	Duration  time.Duration
	Finished  time.Time
}

// Splitter is the per-job audio processor.
type Splitter interface {
	CheckFileSize(path string) (bool, float64, error)
	SplitAudioFile(ctx context.Context, path string, progress audio.ProgressFunc) ([]string, error)
	CleanupTempFiles()
}

// Publisher receives status, result and error messages.
type Publisher interface {
	Publish(typ, jobID, message string, payload any) events.Event
}

// OrchestratorOptions configures an Orchestrator.
type OrchestratorOptions struct {
	Backend Backend
	// NewSplitter returns a fresh splitter for each job so temp files from
	// one job are never cleaned up by another.
	NewSplitter func() Splitter
	Publisher   Publisher // may be nil
	Log         zerolog.Logger
}

// Orchestrator runs one job at a time against a single backend: size check,
// direct or chunked transcription, combine, report.
type Orchestrator struct {
	backend     Backend
	newSplitter func() Splitter
	pub         Publisher
	log         zerolog.Logger

	sem     chan struct{}
	state   atomic.Int32
	current atomic.Value // string job ID
}

// NewOrchestrator creates an idle orchestrator.
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	o := &Orchestrator{
		backend:     opts.Backend,
		newSplitter: opts.NewSplitter,
		pub:         opts.Publisher,
		log:         opts.Log,
		sem:         make(chan struct{}, 1),
	}
	o.current.Store("")
	return o
}

// Backend returns the backend jobs run against.
func (o *Orchestrator) Backend() Backend { return o.backend }

// State returns the current job state.
func (o *Orchestrator) State() State { return State(o.state.Load()) }

// CurrentJob returns the ID of the running job, or "".
func (o *Orchestrator) CurrentJob() string { return o.current.Load().(string) }

// Busy reports whether a job is running.
func (o *Orchestrator) Busy() bool {
	return o.State() != StateIdle || o.backend.Busy()
}

// Cancel raises the backend's cancel flag. The running job stops at its next
// check point; a job that is not yet running is unaffected.
func (o *Orchestrator) Cancel() bool {
	if !o.Busy() {
		return false
	}
	o.backend.Cancel()
	o.log.Info().Str("job_id", o.CurrentJob()).Msg("cancel requested")
	return true
}

// Run executes job and blocks until it ends. Runs are serialized; a second
// caller waits until the first finishes or ctx is done.
func (o *Orchestrator) Run(ctx context.Context, job Job) Result {
	res := Result{JobID: job.ID, Source: job.Source, AudioPath: job.AudioPath, Backend: o.backend.Name()}

	select {
	case o.sem <- struct{}{}:
	case <-ctx.Done():
		res.Outcome = OutcomeCancelled
		res.Err = &Error{Kind: KindCancelled, Op: "wait", Err: ctx.Err()}
		res.Finished = time.Now()
		return res
	}
	defer func() { <-o.sem }()

	// The job counts as running from here, so Cancel is honored during the
	// size check.
	o.backend.ResetCancel()
	o.current.Store(job.ID)
	o.setState(StateChecking)
	start := time.Now()
	log := o.log.With().Str("job_id", job.ID).Str("source", job.Source).Logger()

	sp := o.newSplitter()
	func() {
		defer sp.CleanupTempFiles()
		res.Text, res.Chunks, res.SizeMB, res.Err = o.run(ctx, job, sp, log)
	}()

	res.Duration = time.Since(start)
	res.Finished = time.Now()
	o.finish(&res, log)
	o.current.Store("")
	o.backend.ResetCancel()
	o.setState(StateIdle)
	return res
}

func (o *Orchestrator) run(ctx context.Context, job Job, sp Splitter, log zerolog.Logger) (string, int, float64, error) {
	needs, sizeMB, err := sp.CheckFileSize(job.AudioPath)
	if err != nil {
		return "", 0, 0, classify("check size", err, KindTranscriptionFailure)
	}
	if !o.backend.Available() {
		return "", 0, sizeMB, &Error{Kind: KindBackendUnavailable, Op: o.backend.Name(), Err: ErrBackendUnavailable}
	}

	if o.backend.Cancelled() {
		return "", 0, sizeMB, &Error{Kind: KindCancelled, Op: "check size", Err: ErrCancelled}
	}

	if !needs {
		o.setState(StateDirect)
		o.status(job.ID, "Transcribing...")
		text, err := o.backend.Transcribe(ctx, job.AudioPath)
		if err != nil {
			return "", 0, sizeMB, classify("transcribe", err, KindTranscriptionFailure)
		}
		return text, 0, sizeMB, nil
	}

	o.setState(StateSplitting)
	o.status(job.ID, fmt.Sprintf("Processing large file (%.1f MB)...", sizeMB))
	chunks, err := sp.SplitAudioFile(ctx, job.AudioPath, func(msg string) { o.status(job.ID, msg) })
	if err != nil {
		return "", 0, sizeMB, classify("split", err, KindSplitFailure)
	}
	if len(chunks) == 0 {
		return "", 0, sizeMB, &Error{Kind: KindSplitFailure, Op: "split", Err: errors.New("no chunks produced")}
	}
	n := len(chunks)
	metrics.ChunksTotal.Add(float64(n))
	log.Info().Int("chunks", n).Float64("size_mb", sizeMB).Msg("audio split")

	o.setState(StateTranscribing)
	if ct, ok := o.backend.(ChunkTranscriber); ok {
		if o.backend.Cancelled() {
			return "", n, sizeMB, &Error{Kind: KindCancelled, Op: "transcribe", Err: ErrCancelled}
		}
		o.status(job.ID, fmt.Sprintf("Transcribing %d chunks...", n))
		text, err := ct.TranscribeChunks(ctx, chunks)
		if err != nil {
			return "", n, sizeMB, classify("transcribe chunks", err, KindTranscriptionFailure)
		}
		return text, n, sizeMB, nil
	}

	texts := make([]string, 0, n)
	for i, chunk := range chunks {
		if o.backend.Cancelled() {
			log.Info().Int("chunk", i+1).Int("total", n).Msg("cancelled before chunk")
			return "", n, sizeMB, &Error{Kind: KindCancelled, Op: "transcribe", Err: ErrCancelled}
		}
		o.status(job.ID, fmt.Sprintf("Transcribing chunk %d/%d...", i+1, n))
		text, err := o.backend.Transcribe(ctx, chunk)
		if err != nil {
			return "", n, sizeMB, classify(fmt.Sprintf("transcribe chunk %d/%d", i+1, n), err, KindTranscriptionFailure)
		}
		texts = append(texts, text)
	}
	o.status(job.ID, "Combining transcriptions...")
	return audio.CombineTranscriptions(texts), n, sizeMB, nil
}

// finish records the outcome, publishes it and updates metrics.
func (o *Orchestrator) finish(res *Result, log zerolog.Logger) {
	payload := map[string]any{
		"backend":     res.Backend,
		"source":      res.Source,
		"chunks":      res.Chunks,
		"duration_ms": res.Duration.Milliseconds(),
	}
	switch {
	case res.Err == nil:
		res.Outcome = OutcomeCompleted
		o.setState(StateCompleted)
		log.Info().Int("chars", len(res.Text)).Int("chunks", res.Chunks).Dur("took", res.Duration).Msg("transcription complete")
		o.publish(events.TypeResult, res.JobID, res.Text, payload)
	case KindOf(res.Err) == KindCancelled:
		res.Outcome = OutcomeCancelled
		o.setState(StateCancelled)
		log.Info().Msg("transcription cancelled")
		o.publish(events.TypeCancelled, res.JobID, "Cancelled", payload)
	default:
		res.Outcome = OutcomeFailed
		o.setState(StateFailed)
		payload["kind"] = KindOf(res.Err).String()
		log.Error().Err(res.Err).Str("kind", KindOf(res.Err).String()).Msg("transcription failed")
		o.publish(events.TypeError, res.JobID, res.Err.Error(), payload)
	}
	metrics.JobsTotal.WithLabelValues(string(res.Outcome)).Inc()
	metrics.JobDuration.Observe(res.Duration.Seconds())
}

func (o *Orchestrator) setState(s State) { o.state.Store(int32(s)) }

func (o *Orchestrator) status(jobID, msg string) {
	o.log.Debug().Str("job_id", jobID).Msg(msg)
	o.publish(events.TypeStatus, jobID, msg, nil)
}

func (o *Orchestrator) publish(typ, jobID, msg string, payload any) {
	if o.pub != nil {
		o.pub.Publish(typ, jobID, msg, payload)
	}
}
