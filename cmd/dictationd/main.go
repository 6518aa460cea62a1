// Command dictationd runs the transcription pipeline without a keyboard or
// microphone. Jobs arrive through the HTTP API and the watch folder, so it
// runs on servers with no display.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/snarg/dictation/internal/app"
	"github.com/snarg/dictation/internal/config"
)

var version = "dev"

func main() {
	var (
		overrides   config.Overrides
		file, out   string
		showVersion bool
	)
	flag.StringVar(&overrides.EnvFile, "env", "", "Path to .env file (default .env)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")
	flag.StringVar(&overrides.Backend, "backend", "", "Transcription backend (overrides BACKEND)")
	flag.StringVar(&overrides.HTTPAddr, "http", "", "HTTP API listen address (overrides HTTP_ADDR)")
	flag.StringVar(&overrides.TempDir, "temp-dir", "", "Directory for uploads and chunks (overrides TEMP_DIR)")
	flag.StringVar(&overrides.WatchDir, "watch", "", "Transcribe audio files dropped into this directory (overrides WATCH_DIR)")
	flag.StringVar(&file, "file", "", "Transcribe this audio file and exit")
	flag.StringVar(&out, "out", "", "Transcript path for -file (default: next to the input, .txt)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	log := app.NewLogger(cfg)
	log.Info().Str("version", version).Str("backend", cfg.Backend).Msg("dictationd starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	opts := app.Options{Config: cfg, Version: version, Log: log}

	if file != "" {
		code := app.RunFile(ctx, opts, file, out)
		stop()
		os.Exit(code)
	}

	if cfg.HTTPAddr == "" && cfg.WatchDir == "" {
		log.Warn().Msg("neither HTTP_ADDR nor WATCH_DIR is set; nothing can submit jobs")
	}

	a, err := app.New(ctx, opts)
	if err != nil {
		log.Error().Err(err).Msg("failed to start")
		stop()
		os.Exit(1)
	}
	err = a.Run(ctx)
	stop()
	if err != nil {
		log.Error().Err(err).Msg("dictationd exited with error")
		os.Exit(1)
	}
}
