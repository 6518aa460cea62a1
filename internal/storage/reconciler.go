package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// remote is the S3 side of a mirrored archive.
type remote interface {
	saver
	Exists(ctx context.Context, key string) bool
}

// Reconciler re-uploads archive files that never reached S3, such as
// uploads dropped from a full queue or lost in a crash.
type Reconciler struct {
	local    *LocalStore
	remote   remote
	delay    time.Duration
	interval time.Duration
	window   time.Duration
	log      zerolog.Logger

	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewReconciler creates a reconciler that checks date directories from the
// last week.
func NewReconciler(local *LocalStore, dst remote, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		local:    local,
		remote:   dst,
		delay:    time.Minute,
		interval: 15 * time.Minute,
		window:   7 * 24 * time.Hour,
		log:      log.With().Str("component", "upload-reconciler").Logger(),
		stop:     make(chan struct{}),
	}
}

func (r *Reconciler) Start() {
	r.wg.Add(1)
	go r.loop()
}

func (r *Reconciler) Stop() {
	r.once.Do(func() { close(r.stop) })
	r.wg.Wait()
}

func (r *Reconciler) loop() {
	defer r.wg.Done()
	// Let startup uploads settle first.
	select {
	case <-time.After(r.delay):
	case <-r.stop:
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-r.stop
		cancel()
	}()

	r.Reconcile(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Reconcile(ctx)
		case <-r.stop:
			return
		}
	}
}

// Reconcile runs one pass and reports how many files it uploaded and how
// many uploads failed.
func (r *Reconciler) Reconcile(ctx context.Context) (uploaded, failed int) {
	cutoff := time.Now().UTC().Add(-r.window)
	checked := 0

	dateDirs, _ := os.ReadDir(r.local.Dir())
	for _, dateDir := range dateDirs {
		if !dateDir.IsDir() {
			continue
		}
		dirDate, err := time.Parse("2006-01-02", dateDir.Name())
		if err != nil || dirDate.Before(cutoff.Truncate(24*time.Hour)) {
			continue
		}

		datePath := filepath.Join(r.local.Dir(), dateDir.Name())
		files, _ := os.ReadDir(datePath)
		for _, f := range files {
			if ctx.Err() != nil {
				return uploaded, failed
			}
			if f.IsDir() || strings.HasPrefix(f.Name(), ".archive-") {
				continue
			}
			checked++
			key := dateDir.Name() + "/" + f.Name()

			headCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			exists := r.remote.Exists(headCtx, key)
			cancel()
			if exists {
				continue
			}

			data, err := os.ReadFile(filepath.Join(datePath, f.Name()))
			if err != nil {
				continue
			}
			putCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			if err := r.remote.Save(putCtx, key, data, contentTypeFor(f.Name())); err != nil {
				r.log.Warn().Err(err).Str("key", key).Msg("reconcile upload failed")
				failed++
			} else {
				uploaded++
			}
			cancel()
		}
	}

	if uploaded > 0 || failed > 0 {
		r.log.Info().
			Int("uploaded", uploaded).
			Int("failed", failed).
			Int("checked", checked).
			Msg("reconcile complete")
	}
	return uploaded, failed
}

func contentTypeFor(name string) string {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".json":
		return "application/json"
	default:
		return audioContentType(ext)
	}
}
