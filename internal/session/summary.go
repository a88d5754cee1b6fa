package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/snarg/whisper-relay/internal/metrics"
)

// NoTranscriptionMessage is sent as the only chunk when the buffer is empty.
const NoTranscriptionMessage = "No transcription available yet. Please start speaking first."

// ErrShuttingDown is reported for summary requests made after Shutdown.
var ErrShuttingDown = errors.New("relay is shutting down, summaries are unavailable")

// ThinkingPayload is the body of an ai_thinking event.
type ThinkingPayload struct {
	Status string `json:"status"`
}

// ChunkPayload is the body of an ai_response_chunk event.
type ChunkPayload struct {
	Text string `json:"text"`
}

// CompletePayload is the body of an ai_response_complete event.
type CompletePayload struct{}

// ErrorPayload is the body of an ai_error event.
type ErrorPayload struct {
	Error string `json:"error"`
}

// RequestSummary dispatches a summary of the current transcript as a
// background task. It returns false only after Shutdown; an ai_error is
// published in that case.
func (c *Controller) RequestSummary() bool {
	err := c.pool.Submit(Task{
		Name: "summary",
		Run:  c.summarize,
		OnPanic: func(err error) {
			metrics.SummaryRequestsTotal.WithLabelValues("error").Inc()
			c.publish(EventAIError, ErrorPayload{Error: err.Error()})
		},
	})
	if err != nil {
		metrics.SummaryRequestsTotal.WithLabelValues("rejected").Inc()
		c.log.Warn().Err(err).Msg("summary request rejected")
		c.publish(EventAIError, ErrorPayload{Error: ErrShuttingDown.Error()})
		return false
	}
	return true
}

// summarize runs one summary request. Events go out in the order thinking,
// chunks, complete; an error ends the sequence with ai_error instead.
func (c *Controller) summarize(ctx context.Context) error {
	start := time.Now()
	c.publish(EventAIThinking, ThinkingPayload{Status: "processing"})

	text := c.sup.Buffer().Snapshot()
	if strings.TrimSpace(text) == "" {
		metrics.SummaryRequestsTotal.WithLabelValues("empty").Inc()
		c.publish(EventAIResponseChunk, ChunkPayload{Text: NoTranscriptionMessage})
		c.publish(EventAIResponseComplete, CompletePayload{})
		return nil
	}

	var chunks int
	err := c.summarizer.Stream(ctx, text, func(chunk string) {
		chunks++
		metrics.SummaryChunksTotal.Inc()
		c.publish(EventAIResponseChunk, ChunkPayload{Text: chunk})
	})
	metrics.SummaryDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.SummaryRequestsTotal.WithLabelValues("error").Inc()
		c.publish(EventAIError, ErrorPayload{Error: err.Error()})
		return fmt.Errorf("summarize transcript: %w", err)
	}

	metrics.SummaryRequestsTotal.WithLabelValues("ok").Inc()
	c.publish(EventAIResponseComplete, CompletePayload{})
	c.log.Info().
		Int("chunks", chunks).
		Int("transcript_len", len(text)).
		Dur("elapsed", time.Since(start)).
		Msg("summary complete")
	return nil
}
