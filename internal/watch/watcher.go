// Package watch transcribes audio files dropped into a directory. Each file
// gets a .txt transcript next to it.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/snarg/dictation/internal/record"
	"github.com/snarg/dictation/internal/transcribe"
)

// AudioExtensions are the file types picked up by the watcher.
var AudioExtensions = map[string]bool{
	".wav": true, ".mp3": true, ".m4a": true, ".mp4": true, ".ogg": true,
	".opus": true, ".flac": true, ".webm": true, ".aac": true,
}

// EnqueueFunc queues a job; false means it was not accepted.
type EnqueueFunc func(transcribe.Job) bool

// Status is the watcher state reported by the health endpoint.
type Status struct {
	Status       string `json:"status"`
	WatchDir     string `json:"watch_dir"`
	FilesQueued  int64  `json:"files_queued"`
	FilesSkipped int64  `json:"files_skipped"`
}

// Watcher monitors a directory tree for new audio files.
type Watcher struct {
	dir      string
	enqueue  EnqueueFunc
	settle   time.Duration
	log      zerolog.Logger
	watcher  *fsnotify.Watcher
	loopDone chan struct{}

	// Debounce: coalesce rapid Create+Write events on the same file.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer
	// seen maps a queued path to the modification time it was queued with.
	seen map[string]time.Time

	filesQueued  atomic.Int64
	filesSkipped atomic.Int64
	status       atomic.Value // "starting", "watching", "stopped"
}

// New creates a watcher for dir.
func New(dir string, enqueue EnqueueFunc, log zerolog.Logger) *Watcher {
	w := &Watcher{
		dir:            dir,
		enqueue:        enqueue,
		settle:         500 * time.Millisecond,
		log:            log.With().Str("component", "watcher").Logger(),
		debounceTimers: make(map[string]*time.Timer),
		seen:           make(map[string]time.Time),
	}
	w.status.Store("starting")
	return w
}

// Start adds every directory under dir to the watch set, queues files that
// have no transcript yet, and watches for new ones until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fw

	dirCount := 0
	var existing []string
	err = filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.log.Warn().Err(err).Str("path", path).Msg("error walking directory")
			return nil
		}
		if d.IsDir() {
			if addErr := fw.Add(path); addErr != nil {
				w.log.Warn().Err(addErr).Str("path", path).Msg("failed to watch directory")
			} else {
				dirCount++
			}
			return nil
		}
		if isAudio(path) {
			existing = append(existing, path)
		}
		return nil
	})
	if err != nil {
		fw.Close()
		return err
	}

	w.log.Info().
		Int("directories", dirCount).
		Int("existing_files", len(existing)).
		Str("watch_dir", w.dir).
		Msg("file watcher initialized")

	for _, path := range existing {
		w.process(path)
	}

	w.loopDone = make(chan struct{})
	go w.watchLoop(ctx)
	w.status.Store("watching")
	return nil
}

// Stop closes the watcher and cancels pending debounce timers.
func (w *Watcher) Stop() {
	w.status.Store("stopped")
	if w.watcher != nil {
		w.watcher.Close()
		<-w.loopDone
	}
	w.debounceMu.Lock()
	for path, t := range w.debounceTimers {
		t.Stop()
		delete(w.debounceTimers, path)
	}
	w.debounceMu.Unlock()
	w.log.Info().
		Int64("files_queued", w.filesQueued.Load()).
		Int64("files_skipped", w.filesSkipped.Load()).
		Msg("file watcher stopped")
}

// Status returns the current watcher status.
func (w *Watcher) Status() Status {
	s, _ := w.status.Load().(string)
	return Status{
		Status:       s,
		WatchDir:     w.dir,
		FilesQueued:  w.filesQueued.Load(),
		FilesSkipped: w.filesSkipped.Load(),
	}
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer close(w.loopDone)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := w.watcher.Add(event.Name); err != nil {
					w.log.Warn().Err(err).Str("path", event.Name).Msg("failed to watch new directory")
				} else {
					w.log.Debug().Str("path", event.Name).Msg("watching new directory")
				}
				continue
			}

			if !isAudio(event.Name) {
				continue
			}
			w.scheduleProcess(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// scheduleProcess waits for the file to settle so it is fully written
// before it is queued.
func (w *Watcher) scheduleProcess(path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if t, ok := w.debounceTimers[path]; ok {
		t.Reset(w.settle)
		return
	}

	w.debounceTimers[path] = time.AfterFunc(w.settle, func() {
		w.debounceMu.Lock()
		delete(w.debounceTimers, path)
		w.debounceMu.Unlock()

		w.process(path)
	})
}

func (w *Watcher) process(path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return
	}
	out := transcribe.OutputPathFor(path)
	if _, err := os.Stat(out); err == nil {
		w.filesSkipped.Add(1)
		return
	}

	w.debounceMu.Lock()
	if mod, ok := w.seen[path]; ok && mod.Equal(info.ModTime()) {
		w.debounceMu.Unlock()
		return
	}
	w.seen[path] = info.ModTime()
	w.debounceMu.Unlock()

	job := transcribe.NewJob(path, transcribe.SourceWatch)
	job.OutputPath = out
	if !w.enqueue(job) {
		w.debounceMu.Lock()
		delete(w.seen, path)
		w.debounceMu.Unlock()
		w.filesSkipped.Add(1)
		w.log.Warn().Str("path", path).Msg("transcription queue full, file skipped")
		return
	}
	w.filesQueued.Add(1)
	w.log.Info().Str("path", path).Str("job_id", job.ID).Msg("watched file queued")
}

func isAudio(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, record.TempPrefix) {
		return false
	}
	return AudioExtensions[strings.ToLower(filepath.Ext(path))]
}
