package transcribe

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/snarg/dictation/internal/audio"
)

// RemoteBackend adapts a Provider to the Backend contract.
type RemoteBackend struct {
	flags
	provider  Provider
	opts      TranscribeOpts
	available bool
	log       zerolog.Logger
}

// NewRemoteBackend wraps p. available is false when credentials or the
// endpoint are missing.
func NewRemoteBackend(p Provider, opts TranscribeOpts, available bool, log zerolog.Logger) *RemoteBackend {
	return &RemoteBackend{provider: p, opts: opts, available: available, log: log}
}

func (b *RemoteBackend) Name() string    { return b.provider.Name() + "/" + b.provider.Model() }
func (b *RemoteBackend) Available() bool { return b.available }

// Model returns the provider's model identifier.
func (b *RemoteBackend) Model() string { return b.provider.Model() }

func (b *RemoteBackend) Transcribe(ctx context.Context, path string) (string, error) {
	if !b.available {
		return "", fmt.Errorf("%s: %w", b.Name(), ErrBackendUnavailable)
	}
	if err := b.acquire(); err != nil {
		return "", err
	}
	defer b.release()
	return b.transcribeOne(ctx, path)
}

// TranscribeChunks sends chunks one by one over the same client, checking
// the cancel flag before each.
func (b *RemoteBackend) TranscribeChunks(ctx context.Context, paths []string) (string, error) {
	if !b.available {
		return "", fmt.Errorf("%s: %w", b.Name(), ErrBackendUnavailable)
	}
	if err := b.acquire(); err != nil {
		return "", err
	}
	defer b.release()

	texts := make([]string, 0, len(paths))
	for i, p := range paths {
		text, err := b.transcribeOne(ctx, p)
		if err != nil {
			return "", fmt.Errorf("chunk %d/%d: %w", i+1, len(paths), err)
		}
		b.log.Debug().Int("chunk", i+1).Int("total", len(paths)).Int("chars", len(text)).Msg("chunk transcribed")
		texts = append(texts, text)
	}
	return audio.CombineTranscriptions(texts), nil
}

func (b *RemoteBackend) transcribeOne(ctx context.Context, path string) (string, error) {
	if err := b.checkCancel(); err != nil {
		return "", err
	}
	resp, err := b.provider.Transcribe(ctx, path, b.opts)
	if err != nil {
		return "", err
	}
	if err := b.checkCancel(); err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}
