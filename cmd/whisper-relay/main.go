package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/snarg/whisper-relay/internal/api"
	"github.com/snarg/whisper-relay/internal/config"
	"github.com/snarg/whisper-relay/internal/events"
	"github.com/snarg/whisper-relay/internal/metrics"
	"github.com/snarg/whisper-relay/internal/mqttclient"
	"github.com/snarg/whisper-relay/internal/session"
	"github.com/snarg/whisper-relay/internal/summarize"
	"github.com/snarg/whisper-relay/internal/transcribe"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file (default .env)")
	flag.StringVar(&overrides.HTTPAddr, "listen", "", "HTTP listen address (overrides HTTP_ADDR)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	flag.StringVar(&overrides.WhisperBinary, "binary", "", "whisper.cpp stream binary (overrides WHISPER_BINARY)")
	flag.StringVar(&overrides.WhisperModel, "model", "", "whisper model file (overrides WHISPER_MODEL)")
	flag.StringVar(&overrides.WhisperLang, "lang", "", "spoken language, or auto (overrides WHISPER_LANG)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	// Config
	cfg, err := config.Load(overrides)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("whisper-relay starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus(cfg.EventReplaySize)

	// Noise filter, optionally hot-reloaded from a file
	filter := transcribe.NewNoiseFilter(cfg.NoisePatterns)
	if cfg.NoisePatternsFile != "" {
		nw := transcribe.NewNoiseWatcher(filter, cfg.NoisePatterns, cfg.NoisePatternsFile, log)
		if err := nw.Start(ctx); err != nil {
			log.Warn().Err(err).Str("path", cfg.NoisePatternsFile).Msg("noise pattern file not watched, using configured patterns")
		}
	}

	// Transcription engine
	engine := transcribe.EngineCommand{
		Binary:   cfg.WhisperBinary,
		Model:    cfg.WhisperModel,
		Language: cfg.WhisperLang,
		Threads:  cfg.WhisperThreads,
		StepMs:   cfg.WhisperStepMs,
		LengthMs: cfg.WhisperLengthMs,
	}
	log.Info().Str("command", engine.String()).Msg("transcription engine configured")

	sup := transcribe.NewSupervisor(transcribe.SupervisorOptions{
		Launcher:     transcribe.NewExecLauncher(engine),
		Filter:       filter,
		Buffer:       transcribe.NewBuffer(cfg.TranscriptBufferSize),
		KillTimeout:  cfg.KillTimeout,
		PublishEvent: bus.Publish,
		Log:          log.With().Str("component", "transcribe").Logger(),
	})

	// Summarizer
	var summarizer summarize.Summarizer
	if cfg.SummarizerEnabled() {
		client, err := summarize.NewClient(summarize.Options{
			APIKey:      cfg.LLMAPIKey,
			BaseURL:     cfg.LLMBaseURL,
			Model:       cfg.LLMModel,
			Temperature: cfg.LLMTemperature,
			Timeout:     cfg.LLMTimeout,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create summarizer")
		}
		summarizer = client
		log.Info().Str("model", client.Model()).Msg("summarization enabled")
	} else {
		log.Warn().Msg("LLM_API_KEY not set, ask requests will fail")
	}

	pool := session.NewTaskPool(session.TaskPoolOptions{
		Workers:   cfg.SummaryWorkers,
		QueueSize: cfg.SummaryQueueSize,
		Timeout:   cfg.LLMTimeout + 10*time.Second,
		Log:       log.With().Str("component", "summary-pool").Logger(),
	})
	pool.Start()

	ctrl := session.NewController(session.Options{
		Supervisor:   sup,
		Summarizer:   summarizer,
		Pool:         pool,
		StopTimeout:  cfg.StopTimeout,
		PublishEvent: bus.Publish,
		Log:          log,
	})

	prometheus.MustRegister(metrics.NewCollector(ctrl, bus))

	// MQTT mirror (optional)
	var mqttStatus api.ConnChecker
	if cfg.MQTTEnabled() {
		mqttLog := log.With().Str("component", "mqtt").Logger()
		mqtt, err := mqttclient.Connect(mqttclient.Options{
			BrokerURL:   cfg.MQTTBrokerURL,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			Handler:     controlHandler(ctrl, mqttLog),
			Log:         mqttLog,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
		defer mqtt.Close()
		mqttStatus = mqtt
		go mqtt.Mirror(ctx, bus)
	}

	// HTTP Server
	srv := api.NewServer(api.ServerOptions{
		Addr:              cfg.HTTPAddr,
		ReadTimeout:       cfg.ReadTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		CORSOrigins:       cfg.CORSOrigins,
		Relay:             ctrl,
		Events:            bus,
		MQTT:              mqttStatus,
		SummarizerEnabled: cfg.SummarizerEnabled(),
		Version:           version,
		StartTime:         startTime,
		Log:               log.With().Str("component", "http").Logger(),
	})

	// Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Stop the engine first so its child process never outlives us.
	ctrl.Shutdown()

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("whisper-relay stopped")
}

// controlHandler runs control requests received over MQTT.
func controlHandler(relay api.Relay, log zerolog.Logger) mqttclient.MessageHandler {
	return func(topic string, payload []byte) {
		var msg struct {
			Event string `json:"event"`
		}
		if err := json.Unmarshal(payload, &msg); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("invalid control message")
			return
		}
		// Paho delivers messages on its own goroutine; a stop can block for
		// the kill timeout, so do not hold up the client.
		go func() {
			if err := api.DispatchRequest(relay, msg.Event); err != nil {
				log.Warn().Err(err).Str("request", msg.Event).Msg("control request failed")
			}
		}()
	}
}
