package storage

import (
	"context"

	"github.com/rs/zerolog"
)

// MirrorStore writes to local disk first and queues a copy for S3. The
// local copy is the source of truth; S3 failures are logged only.
type MirrorStore struct {
	local    *LocalStore
	uploader *AsyncUploader
	log      zerolog.Logger
}

// NewMirrorStore creates a local-primary store with an S3 mirror.
func NewMirrorStore(local *LocalStore, uploader *AsyncUploader, log zerolog.Logger) *MirrorStore {
	return &MirrorStore{
		local:    local,
		uploader: uploader,
		log:      log.With().Str("component", "mirror-store").Logger(),
	}
}

func (s *MirrorStore) Save(ctx context.Context, key string, data []byte, ct string) error {
	if err := s.local.Save(ctx, key, data, ct); err != nil {
		return err
	}
	s.uploader.Enqueue(key, data, ct)
	return nil
}

func (s *MirrorStore) Exists(ctx context.Context, key string) bool {
	return s.local.Exists(ctx, key)
}

func (s *MirrorStore) Type() string { return "mirror" }
