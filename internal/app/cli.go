package app

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/dictation/internal/config"
	"github.com/snarg/dictation/internal/transcribe"
)

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func NewLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if cfg.LogFormat == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			With().Timestamp().Logger().Level(level)
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
}

// Exit codes of RunFile.
const (
	ExitOK        = 0
	ExitFailed    = 1
	ExitCancelled = 130
)

// RunFile transcribes in to out and returns a process exit code. Run is
// never called, so no hotkeys are grabbed and no HTTP listener starts.
func RunFile(ctx context.Context, opts Options, in, out string) int {
	log := opts.Log
	a, err := New(ctx, opts)
	if err != nil {
		log.Error().Err(err).Msg("failed to start")
		return ExitFailed
	}
	defer a.Close()

	res := a.TranscribeFile(ctx, in, out)
	switch res.Outcome {
	case transcribe.OutcomeCompleted:
		if out == "" {
			out = transcribe.OutputPathFor(in)
		}
		log.Info().Str("output", out).Int("chars", len(res.Text)).Msg("transcript written")
		return ExitOK
	case transcribe.OutcomeCancelled:
		log.Warn().Msg("transcription cancelled")
		return ExitCancelled
	default:
		log.Error().Err(res.Err).Str("kind", transcribe.KindOf(res.Err).String()).Msg("transcription failed")
		return ExitFailed
	}
}
