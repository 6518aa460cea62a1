package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// saver is the upload target; *S3Store in production.
type saver interface {
	Save(ctx context.Context, key string, data []byte, contentType string) error
}

// AsyncUploader pushes archive files to S3 in the background so result
// sinks never wait on the network.
type AsyncUploader struct {
	dst      saver
	ch       chan uploadJob
	log      zerolog.Logger
	wg       sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

type uploadJob struct {
	key         string
	data        []byte
	contentType string
}

// NewAsyncUploader creates an uploader with the given buffer size.
func NewAsyncUploader(dst saver, bufferSize int, log zerolog.Logger) *AsyncUploader {
	return &AsyncUploader{
		dst: dst,
		ch:  make(chan uploadJob, bufferSize),
		log: log.With().Str("component", "async-uploader").Logger(),
	}
}

// Enqueue adds an upload. Non-blocking; drops with a warning if the buffer
// is full or the uploader is stopped.
func (u *AsyncUploader) Enqueue(key string, data []byte, contentType string) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.stopped {
		return
	}
	select {
	case u.ch <- uploadJob{key: key, data: data, contentType: contentType}:
	default:
		u.log.Warn().Str("key", key).Msg("upload queue full, skipping (local copy kept)")
	}
}

// Start launches worker goroutines.
func (u *AsyncUploader) Start(workers int) {
	for i := 0; i < workers; i++ {
		u.wg.Add(1)
		go u.worker()
	}
	u.log.Info().Int("workers", workers).Int("buffer", cap(u.ch)).Msg("async uploader started")
}

// Stop drains queued uploads and waits for the workers.
func (u *AsyncUploader) Stop() {
	u.mu.Lock()
	if !u.stopped {
		u.stopped = true
		close(u.ch)
	}
	u.mu.Unlock()
	u.wg.Wait()
}

func (u *AsyncUploader) worker() {
	defer u.wg.Done()
	for job := range u.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := u.dst.Save(ctx, job.key, job.data, job.contentType); err != nil {
			u.log.Error().Err(err).Str("key", job.key).Msg("S3 upload failed (local copy kept)")
		}
		cancel()
	}
}
