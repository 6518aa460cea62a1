// Package record captures microphone audio into a temporary WAV file.
package record

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrNotIdle      = errors.New("recorder not idle")
	ErrNotRecording = errors.New("recorder not running")
)

// TempPrefix names recording files so stale ones can be found at startup.
const TempPrefix = "RecordTemp_"

const maxReadErrors = 50

// Stream is an open capture device delivering interleaved 16-bit samples.
type Stream interface {
	// Read blocks until dst is filled or the device fails, returning the
	// number of samples written.
	Read(dst []int16) (int, error)
	Close() error
}

// Opener opens the capture device.
type Opener func(sampleRate, channels, framesPerBuffer int) (Stream, error)

// State is the recorder state.
type State int32

const (
	StateIdle State = iota
	StateRecording
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Recording is a finished capture.
type Recording struct {
	Path     string
	Frames   int64
	Duration time.Duration
	Bytes    int64
}

// Options configures a Recorder.
type Options struct {
	SampleRate      int
	Channels        int
	FramesPerBuffer int // default 1024
	TempDir         string
	Open            Opener
	Log             zerolog.Logger
}

// Recorder streams one capture at a time into a WAV file.
type Recorder struct {
	opts Options
	log  zerolog.Logger

	mu      sync.Mutex
	state   State
	path    string
	started time.Time
	stop    chan struct{}
	discard bool
	done    chan loopResult
}

type loopResult struct {
	frames int64
	err    error
}

// New creates an idle recorder.
func New(opts Options) *Recorder {
	if opts.FramesPerBuffer <= 0 {
		opts.FramesPerBuffer = 1024
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	return &Recorder{opts: opts, log: opts.Log}
}

// State returns the current state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Recording reports whether a capture is in progress.
func (r *Recorder) Recording() bool { return r.State() == StateRecording }

// Start opens the device and the output file and begins capturing. Device
// and file errors are returned here rather than from Stop.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateIdle {
		return ErrNotIdle
	}

	stream, err := r.opts.Open(r.opts.SampleRate, r.opts.Channels, r.opts.FramesPerBuffer)
	if err != nil {
		return fmt.Errorf("open capture device: %w", err)
	}
	path := filepath.Join(r.opts.TempDir, TempPrefix+strings.ReplaceAll(uuid.NewString(), "-", "")[:16]+".wav")
	f, err := os.Create(path)
	if err != nil {
		stream.Close()
		return fmt.Errorf("create wav: %w", err)
	}

	r.state = StateRecording
	r.path = path
	r.started = time.Now()
	r.stop = make(chan struct{})
	r.discard = false
	r.done = make(chan loopResult, 1)
	r.log.Info().Str("path", path).Int("sample_rate", r.opts.SampleRate).Int("channels", r.opts.Channels).Msg("recording started")

	go r.loop(ctx, stream, f, r.stop, r.done)
	return nil
}

// Stop ends the capture and returns the finished file.
func (r *Recorder) Stop() (Recording, error) {
	path, started, res, err := r.end(false)
	if err != nil {
		return Recording{}, err
	}
	if res.err != nil {
		os.Remove(path)
		return Recording{}, res.err
	}
	rec := Recording{
		Path:     path,
		Frames:   res.frames,
		Duration: time.Since(started),
	}
	if fi, err := os.Stat(path); err == nil {
		rec.Bytes = fi.Size()
	}
	r.log.Info().Str("path", path).Int64("frames", rec.Frames).Dur("duration", rec.Duration).Msg("recording stopped")
	return rec, nil
}

// Cancel ends the capture and deletes the file.
func (r *Recorder) Cancel() error {
	path, _, _, err := r.end(true)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		r.log.Warn().Err(err).Str("path", path).Msg("failed to remove cancelled recording")
	}
	r.log.Info().Msg("recording cancelled")
	return nil
}

func (r *Recorder) end(discard bool) (string, time.Time, loopResult, error) {
	r.mu.Lock()
	if r.state != StateRecording {
		r.mu.Unlock()
		return "", time.Time{}, loopResult{}, ErrNotRecording
	}
	r.state = StateStopping
	r.discard = discard
	path, started, done := r.path, r.started, r.done
	close(r.stop)
	r.mu.Unlock()

	res := <-done

	r.mu.Lock()
	r.state = StateIdle
	r.path = ""
	r.mu.Unlock()
	return path, started, res, nil
}

// loop copies samples from stream into f until stop is closed or ctx ends.
func (r *Recorder) loop(ctx context.Context, stream Stream, f *os.File, stop <-chan struct{}, done chan<- loopResult) {
	channels := r.opts.Channels
	enc := wav.NewEncoder(f, r.opts.SampleRate, 16, channels, 1)
	in := make([]int16, r.opts.FramesPerBuffer*channels)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: r.opts.SampleRate},
		Data:           make([]int, len(in)),
		SourceBitDepth: 16,
	}

	var frames int64
	var loopErr error
	readErrs := 0
capture:
	for {
		select {
		case <-stop:
			break capture
		case <-ctx.Done():
			break capture
		default:
		}

		n, err := stream.Read(in)
		if err != nil {
			readErrs++
			r.log.Debug().Err(err).Int("consecutive", readErrs).Msg("capture read error")
			if readErrs >= maxReadErrors {
				loopErr = fmt.Errorf("capture read: %w", err)
				break
			}
			continue
		}
		readErrs = 0
		n -= n % channels
		if n == 0 {
			continue
		}
		for i := 0; i < n; i++ {
			buf.Data[i] = int(in[i])
		}
		chunk := &goaudio.IntBuffer{Format: buf.Format, Data: buf.Data[:n], SourceBitDepth: 16}
		if err := enc.Write(chunk); err != nil {
			loopErr = fmt.Errorf("wav write: %w", err)
			break
		}
		frames += int64(n / channels)
	}

	if err := stream.Close(); err != nil {
		r.log.Debug().Err(err).Msg("close capture device")
	}
	if err := enc.Close(); err != nil && loopErr == nil {
		loopErr = fmt.Errorf("wav close: %w", err)
	}
	if err := f.Close(); err != nil && loopErr == nil {
		loopErr = fmt.Errorf("close wav file: %w", err)
	}
	done <- loopResult{frames: frames, err: loopErr}
}
