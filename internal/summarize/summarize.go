package summarize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Prompt is prepended to the transcript for every summary request.
const Prompt = `You are an AI assistant that answers questions based on the transcription below.

Instructions:
1. Provide clear, concise, human like answers in the same language as the question.
2. Answer in a direct, conversational way, with no bullet points or lists.
3. If there are multiple questions, start answering from the most recent one and go backwards.
4. Do not add any introduction or meta comments, just answer the questions themselves.

Transcription:
`

// ErrNotConfigured is returned when no API key was provided.
var ErrNotConfigured = errors.New("summarization is not configured")

// Summarizer streams a response for a transcript. onChunk is called for every
// non-empty piece of text, in order.
type Summarizer interface {
	Stream(ctx context.Context, transcript string, onChunk func(string)) error
}

// Options configures the OpenAI-compatible client.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// Client calls an OpenAI-compatible chat completions endpoint with streaming.
type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	timeout     time.Duration
}

// NewClient creates a streaming summarization client.
func NewClient(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, ErrNotConfigured
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	}
	return &Client{
		client:      openai.NewClientWithConfig(cfg),
		model:       opts.Model,
		temperature: opts.Temperature,
		timeout:     opts.Timeout,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// BuildPrompt returns the full prompt for a transcript.
func BuildPrompt(transcript string) string {
	return Prompt + transcript
}

func (c *Client) Stream(ctx context.Context, transcript string, onChunk func(string)) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(transcript)},
		},
		Temperature: c.temperature,
		Stream:      true,
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return fmt.Errorf("open completion stream: %w", err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("receive completion chunk: %w", err)
		}
		for _, choice := range resp.Choices {
			if choice.Delta.Content != "" {
				onChunk(choice.Delta.Content)
			}
		}
	}
}

// Unavailable is a Summarizer that always fails with err. It stands in when
// the service starts without summarization configured.
type Unavailable struct {
	Err error
}

func (u Unavailable) Stream(context.Context, string, func(string)) error {
	if u.Err == nil {
		return ErrNotConfigured
	}
	return u.Err
}
