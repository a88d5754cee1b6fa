package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/snarg/whisper-relay/internal/metrics"
)

// ServerOptions configures the HTTP server.
type ServerOptions struct {
	Addr        string
	ReadTimeout time.Duration
	IdleTimeout time.Duration
	CORSOrigins []string

	Relay             Relay
	Events            EventSource
	MQTT              ConnChecker // nil when the mirror is disabled
	SummarizerEnabled bool

	Version   string
	StartTime time.Time
	Log       zerolog.Logger
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// NewRouter builds the HTTP handler tree.
func NewRouter(opts ServerOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(opts.Log))
	r.Use(CORSWithOrigins(opts.CORSOrigins))
	r.Use(metrics.InstrumentHandler)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", NewSocketHandler(opts.Relay, opts.Events, opts.CORSOrigins).ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", NewHealthHandler(opts.Relay, opts.MQTT, opts.SummarizerEnabled, opts.Version, opts.StartTime).ServeHTTP)
		NewEventsHandler(opts.Events).Routes(r)
		NewTranscriptionHandler(opts.Relay).Routes(r)
	})

	return r
}

func NewServer(opts ServerOptions) *Server {
	return &Server{
		http: &http.Server{
			Addr:        opts.Addr,
			Handler:     NewRouter(opts),
			ReadTimeout: opts.ReadTimeout,
			// No WriteTimeout: SSE and socket connections are long-lived.
			IdleTimeout: opts.IdleTimeout,
		},
		log: opts.Log,
	}
}

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
