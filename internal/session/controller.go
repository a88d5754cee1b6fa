package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/whisper-relay/internal/summarize"
	"github.com/snarg/whisper-relay/internal/transcribe"
)

// Outbound event types published by the controller.
const (
	EventTranscriptionStatus = "transcription_status"
	EventAIThinking          = "ai_thinking"
	EventAIResponseChunk     = "ai_response_chunk"
	EventAIResponseComplete  = "ai_response_complete"
	EventAIError             = "ai_error"
)

// Values of StatusPayload.Status.
const (
	StatusStreaming = "streaming"
	StatusIdle      = "idle"
	StatusFailed    = "failed"
)

// StatusPayload is the body of a transcription_status event.
type StatusPayload struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Options configures the session controller.
type Options struct {
	Supervisor *transcribe.Supervisor
	Summarizer summarize.Summarizer
	Pool       *TaskPool
	// StopTimeout bounds how long Stop waits for the streaming task.
	StopTimeout  time.Duration
	PublishEvent transcribe.EventPublishFunc
	Log          zerolog.Logger
}

// Controller is the single owner of transcription session state. Any number of
// clients may call Start, Stop and RequestSummary concurrently.
type Controller struct {
	sup         *transcribe.Supervisor
	summarizer  summarize.Summarizer
	pool        *TaskPool
	stopTimeout time.Duration
	publishFn   transcribe.EventPublishFunc
	log         zerolog.Logger

	// mu is the lifecycle lock. It guards active and is held across engine
	// launch so concurrent starts spawn one process.
	mu     sync.Mutex
	active *transcribe.Session
}

// NewController creates a controller.
func NewController(opts Options) *Controller {
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 2 * time.Second
	}
	if opts.Summarizer == nil {
		opts.Summarizer = summarize.Unavailable{}
	}
	if opts.Pool == nil {
		opts.Pool = NewTaskPool(TaskPoolOptions{Workers: 1, QueueSize: 1, Log: opts.Log})
		opts.Pool.Start()
	}
	return &Controller{
		sup:         opts.Supervisor,
		summarizer:  opts.Summarizer,
		pool:        opts.Pool,
		stopTimeout: opts.StopTimeout,
		publishFn:   opts.PublishEvent,
		log:         opts.Log.With().Str("component", "session").Logger(),
	}
}

func (c *Controller) publish(eventType string, payload any) {
	if c.publishFn != nil {
		c.publishFn(eventType, payload)
	}
}

// Start launches the engine and begins streaming. It is a no-op while a
// session is active.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		c.log.Debug().Str("session_id", c.active.ID).Msg("start ignored, already streaming")
		return nil
	}

	sess, err := c.sup.Start()
	if err != nil {
		c.log.Error().Err(err).Msg("transcription start failed")
		c.publish(EventTranscriptionStatus, StatusPayload{Status: StatusFailed, Error: err.Error()})
		return err
	}

	c.active = sess
	go c.stream(sess)
	c.publish(EventTranscriptionStatus, StatusPayload{Status: StatusStreaming, SessionID: sess.ID})
	return nil
}

// stream runs the read loop and clears the session if it ended on its own.
func (c *Controller) stream(sess *transcribe.Session) {
	err := c.sup.Stream(sess)

	c.mu.Lock()
	cleared := c.active == sess
	if cleared {
		c.active = nil
	}
	c.mu.Unlock()

	if !cleared {
		return
	}
	// A read failure ends the session like a normal exit.
	if err != nil {
		c.log.Error().Err(err).Str("session_id", sess.ID).Msg("transcription stream ended with error")
	} else {
		c.log.Info().Str("session_id", sess.ID).Msg("transcription engine exited")
	}
	c.publish(EventTranscriptionStatus, StatusPayload{Status: StatusIdle, SessionID: sess.ID})
}

// Stop ends the active session. It is a no-op when idle.
func (c *Controller) Stop() {
	c.mu.Lock()
	sess := c.active
	c.mu.Unlock()
	if sess == nil {
		return
	}

	// Signal and terminate outside the lifecycle lock so other clients are
	// not blocked behind the kill timeout.
	sess.Cancel()
	if _, err := sess.Terminate(c.sup.KillTimeout()); err != nil {
		c.log.Warn().Err(err).Str("session_id", sess.ID).Msg("engine termination failed")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != sess {
		// Another Stop or the stream goroutine already cleared it.
		return
	}

	timer := time.NewTimer(c.stopTimeout)
	defer timer.Stop()
	select {
	case <-sess.Done():
	case <-timer.C:
		c.log.Warn().Str("session_id", sess.ID).Dur("timeout", c.stopTimeout).Msg("streaming task did not finish in time")
	}

	c.active = nil
	c.log.Info().Str("session_id", sess.ID).Msg("transcription stopped")
	c.publish(EventTranscriptionStatus, StatusPayload{Status: StatusIdle, SessionID: sess.ID})
}

// Status describes the controller's current state.
type Status struct {
	Active            bool       `json:"active"`
	SessionID         string     `json:"session_id,omitempty"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	BufferedFragments int        `json:"buffered_fragments"`
	BufferCapacity    int        `json:"buffer_capacity"`
}

// Status returns a point-in-time view of the session and buffer.
func (c *Controller) Status() Status {
	c.mu.Lock()
	sess := c.active
	c.mu.Unlock()

	buf := c.sup.Buffer()
	st := Status{
		BufferedFragments: buf.Len(),
		BufferCapacity:    buf.Cap(),
	}
	if sess != nil {
		started := sess.StartedAt
		st.Active = true
		st.SessionID = sess.ID
		st.StartedAt = &started
	}
	return st
}

// Fragments returns the buffered transcript fragments, oldest first.
func (c *Controller) Fragments() []string { return c.sup.Buffer().Fragments() }

// SessionActive implements metrics.RelayStats.
func (c *Controller) SessionActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// BufferedFragments implements metrics.RelayStats.
func (c *Controller) BufferedFragments() int { return c.sup.Buffer().Len() }

// SummaryQueuePending implements metrics.RelayStats.
func (c *Controller) SummaryQueuePending() int { return c.pool.Stats().Pending }

// QueueStats returns summary task queue statistics.
func (c *Controller) QueueStats() QueueStats { return c.pool.Stats() }

// Shutdown stops the active session and drains pending summary tasks.
func (c *Controller) Shutdown() {
	c.Stop()
	c.pool.Stop()
}
