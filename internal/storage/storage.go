// Package storage archives recordings and transcripts to a local directory,
// an S3-compatible bucket, or both.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/dictation/internal/config"
)

// Store abstracts archive backends.
type Store interface {
	// Save stores data under key ({YYYY-MM-DD}/{job_id}.{ext}).
	Save(ctx context.Context, key string, data []byte, contentType string) error
	// Exists reports whether key is stored.
	Exists(ctx context.Context, key string) bool
	// Type returns "local", "s3" or "mirror".
	Type() string
}

// New builds the store for the configured targets. It returns nil when
// neither an archive directory nor a bucket is configured. S3 access is
// verified before returning. Stopper is non-nil when the store runs a
// background uploader and reconciler that the caller must Stop.
func New(cfg config.S3Config, archiveDir string, log zerolog.Logger) (Store, Stopper, error) {
	var local *LocalStore
	if archiveDir != "" {
		local = NewLocalStore(archiveDir)
	}
	if !cfg.Enabled() {
		if local == nil {
			return nil, nil, nil
		}
		return local, nil, nil
	}

	s3store, err := NewS3Store(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("S3 init failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3store.Check(ctx); err != nil {
		return nil, nil, fmt.Errorf("S3 startup check failed (bucket=%q endpoint=%q): %w",
			cfg.Bucket, cfg.Endpoint, err)
	}
	log.Info().Str("bucket", cfg.Bucket).Str("endpoint", cfg.Endpoint).Msg("S3 connection verified")

	if local == nil {
		return s3store, nil, nil
	}

	uploader := NewAsyncUploader(s3store, 64, log)
	uploader.Start(2)
	reconciler := NewReconciler(local, s3store, log)
	reconciler.Start()
	return NewMirrorStore(local, uploader, log), stoppers{reconciler, uploader}, nil
}

// Stopper is a background service that must be stopped on shutdown.
type Stopper interface {
	Stop()
}

// stoppers stops each member in order.
type stoppers []Stopper

func (s stoppers) Stop() {
	for _, st := range s {
		st.Stop()
	}
}
