// Package genai wraps the OpenAI API for text, vision, and audio generation.
package genai

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Default models for chat and audio-understanding calls.
const (
	DefaultModel      = openai.ChatModelGPT4oMini
	DefaultAudioModel = "gpt-4o-audio-preview"
)

// chatService defines the minimal interface for chat completions, allowing
// tests to substitute a fake backend.
type chatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey     string
	Model      string
	AudioModel string
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key (overrides $OPENAI_API_KEY).
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithModel sets the chat model used for text and vision calls.
func WithModel(model string) Option {
	return func(o *Opts) {
		o.Model = model
	}
}

// WithAudioModel sets the model used for audio-understanding calls.
func WithAudioModel(model string) Option {
	return func(o *Opts) {
		o.AudioModel = model
	}
}

// Client wraps the OpenAI chat-completion service.
type Client struct {
	chat       chatService
	model      string
	audioModel string
}

// NewClient initializes a GenAI client. The API key comes from options or the
// OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.AudioModel == "" {
		cfg.AudioModel = DefaultAudioModel
	}

	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Client{chat: &cli.Chat.Completions, model: cfg.Model, audioModel: cfg.AudioModel}, nil
}

// GenerateText produces a completion from a system and user prompt.
func (c *Client) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	return firstChoice(resp)
}

// GenerateTextWithImage produces a completion grounded in image bytes, sent as
// a base64 data URL content part.
func (c *Client) GenerateTextWithImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))
	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
	})
	if err != nil {
		return "", fmt.Errorf("vision completion failed: %w", err)
	}
	return firstChoice(resp)
}

// GenerateTextWithAudio produces a completion grounded in audio bytes, sent as
// a base64 input-audio content part.
func (c *Client) GenerateTextWithAudio(ctx context.Context, prompt string, audio []byte, mimeType string) (string, error) {
	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: c.audioModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(prompt),
				openai.InputAudioContentPart(openai.ChatCompletionContentPartInputAudioInputAudioParam{
					Data:   base64.StdEncoding.EncodeToString(audio),
					Format: audioFormat(mimeType),
				}),
			}),
		},
	})
	if err != nil {
		return "", fmt.Errorf("audio completion failed: %w", err)
	}
	return firstChoice(resp)
}

func firstChoice(resp *openai.ChatCompletion) (string, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// audioFormat maps a MIME type to the input-audio format the API expects.
func audioFormat(mimeType string) string {
	if strings.Contains(mimeType, "wav") {
		return "wav"
	}
	return "mp3"
}
