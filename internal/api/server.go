// Package api serves the local HTTP control surface: health, status,
// uploads, history, cancel and a server-sent event stream.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/snarg/dictation/internal/metrics"
)

// Options configures the server. Controller and Events are required; the
// others may be nil when the feature is disabled.
type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	AuthToken    string
	TempDir      string

	// UploadTimeout bounds reading one upload body. Zero keeps ReadTimeout.
	UploadTimeout time.Duration

	Controller Controller
	Events     EventSource
	History    HistoryStore
	MQTT       ConnectionChecker
	Watcher    WatcherStatus

	Version   string
	StartTime time.Time
	Log       zerolog.Logger
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(opts Options) *Server {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(opts.Log))
	r.Use(CORS)
	r.Use(metrics.InstrumentHandler)

	health := NewHealthHandler(opts.Controller, opts.MQTT, opts.Watcher, opts.Version, opts.StartTime)
	r.Get("/api/v1/health", health.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuth(opts.AuthToken))
		NewControlHandler(opts.Controller).Routes(r)
		NewTranscriptionsHandler(opts.Controller, opts.Events, opts.History, opts.TempDir, opts.UploadTimeout, opts.Log).Routes(r)
		NewEventsHandler(opts.Events).Routes(r)
	})

	return &Server{
		http: &http.Server{
			Addr:         opts.Addr,
			Handler:      r,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
			IdleTimeout:  opts.IdleTimeout,
		},
		log: opts.Log,
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.http.Handler }

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
