package transcribe

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/snarg/dictation/internal/audio"
	"github.com/snarg/dictation/internal/config"
)

// Backend is a transcription engine. Implementations allow one call in
// flight at a time and consult the cancel flag before and after every
// blocking call.
type Backend interface {
	// Name identifies the backend in logs and status.
	Name() string
	// Available reports whether the backend can run (credentials present,
	// model on disk). It does not change state.
	Available() bool
	// Transcribe returns the text of one audio file.
	Transcribe(ctx context.Context, path string) (string, error)

	Cancel()
	ResetCancel()
	Cancelled() bool
	// Busy reports whether a call is in flight.
	Busy() bool
}

// ChunkTranscriber is implemented by backends that handle an ordered chunk
// list in one call. The result must keep chunk order and the cancel flag
// must be honoured between chunks.
type ChunkTranscriber interface {
	TranscribeChunks(ctx context.Context, paths []string) (string, error)
}

// flags holds the cancel and in-flight state shared by all backends.
type flags struct {
	busy   atomic.Bool
	cancel atomic.Bool
}

func (f *flags) Cancel()         { f.cancel.Store(true) }
func (f *flags) ResetCancel()    { f.cancel.Store(false) }
func (f *flags) Cancelled() bool { return f.cancel.Load() }
func (f *flags) Busy() bool      { return f.busy.Load() }

func (f *flags) acquire() error {
	if !f.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	return nil
}

func (f *flags) release() { f.busy.Store(false) }

func (f *flags) checkCancel() error {
	if f.cancel.Load() {
		return ErrCancelled
	}
	return nil
}

// OpenAI model names per backend identifier.
var openAIModels = map[string]string{
	config.BackendAPIWhisper:   "whisper-1",
	config.BackendAPIGPT4o:     "gpt-4o-transcribe",
	config.BackendAPIGPT4oMini: "gpt-4o-mini-transcribe",
}

// NewBackend builds the backend selected by cfg.Backend.
func NewBackend(cfg *config.Config, log zerolog.Logger) (Backend, error) {
	opts := TranscribeOpts{
		Language:    cfg.Language,
		Prompt:      cfg.Prompt,
		Temperature: cfg.Temperature,
	}
	log = log.With().Str("backend", cfg.Backend).Logger()
	httpClient := NewHTTPClient(cfg.RequestTimeout, cfg.EnableHTTP2)

	switch cfg.Backend {
	case config.BackendLocalWhisper:
		var conv audio.Converter
		if audio.FFmpegAvailable() {
			conv = audio.FFmpeg{SampleRate: 16000, Channels: 1}
		}
		return NewLocalBackend(LocalOptions{
			Command:   cfg.LocalWhisperCommand,
			ModelDir:  cfg.LocalWhisperModelDir,
			Model:     cfg.LocalWhisperModel,
			Language:  cfg.Language,
			Prompt:    cfg.Prompt,
			Converter: conv,
			TempDir:   cfg.TempDir,
			Log:       log,
		})
	case config.BackendAPIWhisper, config.BackendAPIGPT4o, config.BackendAPIGPT4oMini:
		p := NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, openAIModels[cfg.Backend], httpClient)
		return NewRemoteBackend(p, opts, cfg.OpenAIAPIKey != "", log), nil
	case config.BackendWhisperHTTP:
		p := NewWhisperClient(cfg.WhisperURL, cfg.WhisperModel, httpClient)
		return NewRemoteBackend(p, opts, cfg.WhisperURL != "", log), nil
	case config.BackendDeepInfra:
		p := NewDeepInfraClient(cfg.DeepInfraAPIKey, cfg.DeepInfraModel, httpClient)
		return NewRemoteBackend(p, opts, cfg.DeepInfraAPIKey != "", log), nil
	case config.BackendElevenLabs:
		p := NewElevenLabsClient(cfg.ElevenLabsAPIKey, cfg.ElevenLabsModel, cfg.ElevenLabsKeyterms, httpClient)
		return NewRemoteBackend(p, opts, cfg.ElevenLabsAPIKey != "", log), nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}
