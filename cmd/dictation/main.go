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
	"github.com/snarg/dictation/internal/hotkey/oshook"
	"github.com/snarg/dictation/internal/notify"
	"github.com/snarg/dictation/internal/paste"
	"github.com/snarg/dictation/internal/record/mic"
	"golang.design/x/hotkey/mainthread"
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
	flag.StringVar(&overrides.TempDir, "temp-dir", "", "Directory for recordings and chunks (overrides TEMP_DIR)")
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
	log.Info().Str("version", version).Str("backend", cfg.Backend).Msg("dictation starting")

	if file != "" {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		code := app.RunFile(ctx, app.Options{Config: cfg, Version: version, Log: log}, file, out)
		stop()
		os.Exit(code)
	}

	// Global hotkeys need the main thread on macOS.
	mainthread.Init(func() {
		if err := run(cfg, log); err != nil {
			log.Error().Err(err).Msg("dictation exited with error")
			os.Exit(1)
		}
	})
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := app.Options{
		Config:   cfg,
		Open:     mic.Open,
		Notifier: notify.New(cfg.Notifications, log.With().Str("component", "notify").Logger()),
		Keyboard: oshook.New(),
		Version:  version,
		Log:      log,
	}
	if cfg.Paste {
		p, err := paste.New(log.With().Str("component", "paste").Logger())
		if err != nil {
			log.Warn().Err(err).Msg("paste disabled")
		} else {
			opts.Paster = p
		}
	}

	a, err := app.New(ctx, opts)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}
