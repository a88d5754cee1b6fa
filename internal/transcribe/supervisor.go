package transcribe

import (
	"bufio"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/whisper-relay/internal/metrics"
)

// Event types published by the supervisor.
const (
	EventTranscription = "transcription"
)

// EventPublishFunc is a callback for publishing outbound events.
type EventPublishFunc func(eventType string, payload any)

// TranscriptionPayload is the body of a transcription event.
type TranscriptionPayload struct {
	Text string `json:"text"`
}

// SupervisorOptions configures the process supervisor.
type SupervisorOptions struct {
	Launcher     Launcher
	Filter       *NoiseFilter
	Buffer       *Buffer
	KillTimeout  time.Duration
	PublishEvent EventPublishFunc
	Log          zerolog.Logger
}

// Supervisor launches the transcription engine and streams its output through
// the sanitizer and deduper into the transcript buffer.
type Supervisor struct {
	launcher    Launcher
	filter      *NoiseFilter
	buffer      *Buffer
	killTimeout time.Duration
	publish     EventPublishFunc
	log         zerolog.Logger
}

// NewSupervisor creates a supervisor.
func NewSupervisor(opts SupervisorOptions) *Supervisor {
	if opts.KillTimeout <= 0 {
		opts.KillTimeout = 3 * time.Second
	}
	if opts.Filter == nil {
		opts.Filter = NewNoiseFilter(DefaultNoisePatterns)
	}
	if opts.Buffer == nil {
		opts.Buffer = NewBuffer(DefaultBufferSize)
	}
	return &Supervisor{
		launcher:    opts.Launcher,
		filter:      opts.Filter,
		buffer:      opts.Buffer,
		killTimeout: opts.KillTimeout,
		publish:     opts.PublishEvent,
		log:         opts.Log,
	}
}

// Buffer returns the transcript buffer the supervisor appends to.
func (s *Supervisor) Buffer() *Buffer { return s.buffer }

// KillTimeout returns how long termination waits before escalating to kill.
func (s *Supervisor) KillTimeout() time.Duration { return s.killTimeout }

// Start launches the engine. On error no session exists and nothing needs
// cleaning up.
func (s *Supervisor) Start() (*Session, error) {
	proc, err := s.launcher.Launch()
	if err != nil {
		metrics.EngineLaunchFailuresTotal.Inc()
		return nil, fmt.Errorf("launch transcription engine: %w", err)
	}
	sess := newSession(proc)
	metrics.SessionsStartedTotal.Inc()
	s.log.Info().
		Str("session_id", sess.ID).
		Int("pid", proc.Pid()).
		Msg("transcription engine started")
	return sess, nil
}

// Stream reads engine output until the session is cancelled or the output ends.
// The engine is terminated and its pipe released on every exit path. Fragments
// already appended to the buffer are kept.
func (s *Supervisor) Stream(sess *Session) (err error) {
	log := s.log.With().Str("session_id", sess.ID).Logger()

	// Stop may empty the session slot at any time; read from the fixed handle.
	proc := sess.engine

	defer func() {
		if _, termErr := sess.Terminate(s.killTimeout); termErr != nil {
			log.Warn().Err(termErr).Msg("engine termination failed")
		}
		select {
		case <-proc.Done():
			if exitErr := proc.ExitErr(); exitErr != nil {
				log.Debug().Err(exitErr).Msg("engine exited")
			}
		default:
		}
		if closeErr := proc.Close(); closeErr != nil {
			log.Debug().Err(closeErr).Msg("closing engine output")
		}
		sess.finish(err)
	}()

	var (
		dedup     Deduper
		lines     int
		fragments int
	)

	scanner := bufio.NewScanner(proc.Output())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if !sess.Streaming() {
			break
		}
		lines++
		metrics.EngineLinesTotal.Inc()

		text, ok := s.filter.Clean(scanner.Text())
		if !ok {
			metrics.EngineLinesDroppedTotal.WithLabelValues("noise").Inc()
			continue
		}
		delta, ok := dedup.Next(text)
		if !ok {
			reason := "duplicate"
			if text == "" {
				reason = "empty"
			}
			metrics.EngineLinesDroppedTotal.WithLabelValues(reason).Inc()
			continue
		}

		s.buffer.Append(delta)
		fragments++
		metrics.TranscriptFragmentsTotal.Inc()
		if s.publish != nil {
			s.publish(EventTranscription, TranscriptionPayload{Text: delta})
		}
		log.Debug().Str("text", delta).Msg("fragment sent")
	}

	stopped := !sess.Streaming()
	if scanErr := scanner.Err(); scanErr != nil && !stopped {
		err = fmt.Errorf("read engine output: %w", scanErr)
	}

	ev := log.Info().Int("lines", lines).Int("fragments", fragments)
	switch {
	case stopped:
		ev.Msg("transcription stopped")
	case err != nil:
		ev.Err(err).Msg("transcription stream failed")
	default:
		ev.Msg("transcription engine output ended")
	}
	return err
}
