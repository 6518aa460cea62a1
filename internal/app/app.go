// Package app wires hotkeys, the recorder, the transcription pool and the
// optional integrations into one running utility.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/snarg/dictation/internal/api"
	"github.com/snarg/dictation/internal/audio"
	"github.com/snarg/dictation/internal/config"
	"github.com/snarg/dictation/internal/events"
	"github.com/snarg/dictation/internal/history"
	"github.com/snarg/dictation/internal/hotkey"
	"github.com/snarg/dictation/internal/metrics"
	"github.com/snarg/dictation/internal/mqttclient"
	"github.com/snarg/dictation/internal/record"
	"github.com/snarg/dictation/internal/storage"
	"github.com/snarg/dictation/internal/transcribe"
	"github.com/snarg/dictation/internal/watch"
)

// Paster delivers final text to the focused application.
type Paster interface {
	Paste(text string) error
}

// Notifier shows desktop notifications.
type Notifier interface {
	Result(text string)
	Error(message string)
}

type Options struct {
	Config *config.Config
	// Backend overrides the backend selected by Config.
	Backend transcribe.Backend
	// Open opens the capture device. Nil disables recording.
	Open     record.Opener
	Paster   Paster   // may be nil
	Notifier Notifier // may be nil
	// Keyboard is the OS hotkey integration installed by Run. Nil leaves
	// hotkeys reachable only through the API and MQTT.
	Keyboard hotkey.Platform

	Version string
	Log     zerolog.Logger
}

// App is the running utility. Hotkey actions are handled one at a time by
// the control loop started in Run.
type App struct {
	cfg       *config.Config
	log       zerolog.Logger
	version   string
	startTime time.Time

	bus      *events.Bus
	orch     *transcribe.Orchestrator
	pool     *transcribe.WorkerPool
	sinks    []transcribe.ResultSink
	hotkeys  *hotkey.Manager
	hook     *hotkey.Hook
	recorder *record.Recorder
	paster   Paster
	notifier Notifier

	history   *history.Store
	storeStop storage.Stopper

	installHook bool
	actions     chan hotkey.Action

	// mu serializes recorder transitions between the control loop and
	// API/MQTT cancel requests.
	mu sync.Mutex
}

// New builds the application. Nothing runs until Run is called; Close
// releases what New opened when Run is never called.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	log := opts.Log
	a := &App{
		cfg:         cfg,
		log:         log.With().Str("component", "app").Logger(),
		version:     opts.Version,
		startTime:   time.Now(),
		bus:         events.NewBus(256),
		paster:      opts.Paster,
		notifier:    opts.Notifier,
		installHook: opts.Keyboard != nil,
		actions:     make(chan hotkey.Action, 16),
	}

	backend := opts.Backend
	if backend == nil {
		var err error
		backend, err = transcribe.NewBackend(cfg, log.With().Str("component", "backend").Logger())
		if err != nil {
			return nil, fmt.Errorf("backend: %w", err)
		}
	}
	if !backend.Available() {
		a.log.Warn().Str("backend", backend.Name()).Msg("transcription backend unavailable, jobs will fail until configured")
	}

	var conv audio.Converter
	if audio.FFmpegAvailable() {
		conv = audio.FFmpeg{SampleRate: cfg.SampleRate, Channels: cfg.Channels}
	}
	splitLog := log.With().Str("component", "splitter").Logger()
	a.orch = transcribe.NewOrchestrator(transcribe.OrchestratorOptions{
		Backend: backend,
		NewSplitter: func() transcribe.Splitter {
			return audio.NewProcessor(audio.Options{
				MaxFileBytes:     cfg.MaxFileBytes(),
				ChunkMaxBytes:    cfg.ChunkMaxBytes(),
				ChunkMaxDuration: cfg.ChunkMaxDuration,
				TempDir:          cfg.TempDir,
				Converter:        conv,
				Log:              splitLog,
			})
		},
		Publisher: a.bus,
		Log:       log.With().Str("component", "orchestrator").Logger(),
	})

	a.sinks = []transcribe.ResultSink{transcribe.WriteOutput}
	if cfg.HistoryPath != "" {
		h, err := history.Open(ctx, cfg.HistoryPath, log.With().Str("component", "history").Logger())
		if err != nil {
			return nil, fmt.Errorf("history: %w", err)
		}
		a.history = h
		a.sinks = append(a.sinks, h)
	}
	store, stopper, err := storage.New(cfg.S3, cfg.ArchiveDir, log.With().Str("component", "storage").Logger())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}
	if store != nil {
		a.storeStop = stopper
		a.sinks = append(a.sinks, storage.NewArchive(store, log.With().Str("component", "archive").Logger()))
	}

	a.pool = transcribe.NewWorkerPool(transcribe.WorkerPoolOptions{
		Orchestrator: a.orch,
		Sinks:        a.sinks,
		Workers:      cfg.Workers,
		QueueSize:    cfg.QueueSize,
		Log:          log.With().Str("component", "workers").Logger(),
	})

	hkLog := log.With().Str("component", "hotkey").Logger()
	a.hotkeys, err = hotkey.NewManager(cfg.Bindings(), cfg.Debounce(), hkLog)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("hotkeys: %w", err)
	}
	for _, act := range []hotkey.Action{hotkey.ActionRecordToggle, hotkey.ActionCancel, hotkey.ActionEnableToggle} {
		act := act
		a.hotkeys.On(act, func() { a.queueAction(act) })
	}
	a.hook = hotkey.NewHook(a.hotkeys, opts.Keyboard, hkLog)

	if opts.Open != nil {
		a.recorder = record.New(record.Options{
			SampleRate: cfg.SampleRate,
			Channels:   cfg.Channels,
			TempDir:    cfg.TempDir,
			Open:       opts.Open,
			Log:        log.With().Str("component", "recorder").Logger(),
		})
	}

	return a, nil
}

// Bus returns the event bus.
func (a *App) Bus() *events.Bus { return a.bus }

// Run starts every configured component and blocks until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if n := audio.CleanupStale(a.cfg.TempDir, 0, a.log); n > 0 {
		a.log.Info().Int("removed", n).Msg("stale temp files removed")
	}

	if err := prometheus.Register(metrics.NewCollector(a)); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			a.log.Warn().Err(err).Msg("failed to register pipeline collector")
		}
	}

	a.pool.Start()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results, unsubscribe := a.bus.Subscribe(events.Filter{Types: []string{events.TypeResult, events.TypeError}})
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		a.controlLoop(ctx, results)
	}()

	var bg sync.WaitGroup
	if a.history != nil && a.cfg.HistoryRetention > 0 {
		bg.Add(1)
		go func() {
			defer bg.Done()
			a.pruneLoop(ctx, a.history, a.cfg.HistoryRetention)
		}()
	}

	var mqtt *mqttclient.Client
	if a.cfg.MQTTBrokerURL != "" {
		var err error
		mqtt, err = mqttclient.Connect(mqttclient.Options{
			BrokerURL:   a.cfg.MQTTBrokerURL,
			ClientID:    a.cfg.MQTTClientID,
			TopicPrefix: a.cfg.MQTTTopicPrefix,
			Username:    a.cfg.MQTTUsername,
			Password:    a.cfg.MQTTPassword,
			Log:         a.log.With().Str("component", "mqtt").Logger(),
		})
		if err != nil {
			a.log.Error().Err(err).Msg("mqtt connect failed, continuing without mqtt")
			mqtt = nil
		} else {
			mqtt.SetCommandHandler(func(name string, _ []byte) {
				if err := a.Trigger(name); err != nil {
					a.log.Warn().Err(err).Str("command", name).Msg("ignoring mqtt command")
				}
			})
			bg.Add(1)
			go func() {
				defer bg.Done()
				mqttclient.Forward(ctx, a.bus, mqtt, a.log.With().Str("component", "mqtt").Logger())
			}()
		}
	}

	var watcher *watch.Watcher
	if a.cfg.WatchDir != "" {
		watcher = watch.New(a.cfg.WatchDir, a.pool.Enqueue, a.log.With().Str("component", "watcher").Logger())
		if err := watcher.Start(ctx); err != nil {
			a.log.Error().Err(err).Str("dir", a.cfg.WatchDir).Msg("watch folder disabled")
			watcher = nil
		}
	}

	if a.installHook {
		if err := a.hook.Install(); err != nil {
			a.log.Error().Err(err).Msg("global hotkeys unavailable")
		}
	}

	var srv *api.Server
	errCh := make(chan error, 1)
	if a.cfg.HTTPAddr != "" {
		opts := api.Options{
			Addr:          a.cfg.HTTPAddr,
			ReadTimeout:   a.cfg.ReadTimeout,
			WriteTimeout:  a.cfg.WriteTimeout,
			IdleTimeout:   a.cfg.IdleTimeout,
			AuthToken:     a.cfg.AuthToken,
			TempDir:       a.cfg.TempDir,
			UploadTimeout: a.cfg.UploadTimeout,
			Controller:    a,
			Events:        a.bus,
			Version:       a.version,
			StartTime:     a.startTime,
			Log:           a.log.With().Str("component", "http").Logger(),
		}
		if a.history != nil {
			opts.History = a.history
		}
		if mqtt != nil {
			opts.MQTT = mqtt
		}
		if watcher != nil {
			opts.Watcher = watcher
		}
		srv = api.NewServer(opts)
		go func() { errCh <- srv.Start() }()
	}

	a.log.Info().
		Str("backend", a.orch.Backend().Name()).
		Interface("hotkeys", a.hotkeyMap()).
		Msg("dictation ready")

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	if srv != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error().Err(err).Msg("http server shutdown error")
		}
		cancelShutdown()
	}
	if err := a.hook.Uninstall(); err != nil {
		a.log.Warn().Err(err).Msg("hook uninstall failed")
	}
	if watcher != nil {
		watcher.Stop()
	}

	cancel()
	<-loopDone
	bg.Wait()
	unsubscribe()

	a.mu.Lock()
	if a.recorder != nil && a.recorder.Recording() {
		a.recorder.Cancel()
	}
	a.mu.Unlock()
	a.orch.Cancel()
	a.pool.Stop()

	if mqtt != nil {
		mqtt.Close()
	}
	a.Close()
	a.log.Info().Msg("dictation stopped")
	return runErr
}

// Close releases the history database and the archive uploader.
func (a *App) Close() {
	if a.storeStop != nil {
		a.storeStop.Stop()
		a.storeStop = nil
	}
	if a.history != nil {
		a.history.Close()
		a.history = nil
	}
}

// TranscribeFile runs one job synchronously and writes the transcript to
// out, or next to in when out is empty. Result sinks run as for queued jobs.
func (a *App) TranscribeFile(ctx context.Context, in, out string) transcribe.Result {
	job := transcribe.NewJob(in, transcribe.SourceFile)
	job.OutputPath = out
	if job.OutputPath == "" {
		job.OutputPath = transcribe.OutputPathFor(in)
	}
	res := a.orch.Run(ctx, job)
	for _, sink := range a.sinks {
		if err := sink.HandleResult(ctx, job, res); err != nil {
			a.log.Warn().Err(err).Str("job_id", job.ID).Msg("result sink failed")
		}
	}
	return res
}

// pruneLoop drops history entries older than maxAge at startup and hourly.
func (a *App) pruneLoop(ctx context.Context, h *history.Store, maxAge time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		n, err := h.Prune(ctx, maxAge)
		if err != nil && ctx.Err() == nil {
			a.log.Warn().Err(err).Msg("history prune failed")
		} else if n > 0 {
			a.log.Info().Int64("removed", n).Dur("max_age", maxAge).Msg("history pruned")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
