// Package openai adapts any OpenAI-compatible chat completion endpoint to
// the llm ports.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"finsight/internal/llm"
)

// completionTimeout bounds a single non-streamed model call.
const completionTimeout = 2 * time.Minute

type Adapter struct {
	client *goopenai.Client
	model  string
}

var (
	_ llm.Completer = (*Adapter)(nil)
	_ llm.Streamer  = (*Adapter)(nil)
)

type Config struct {
	APIKey  string
	BaseURL string // optional, for self-hosted or alternative providers
	Model   string
}

func New(cfg Config) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("missing API key")
	}
	if cfg.Model == "" {
		return nil, errors.New("missing model name")
	}

	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Adapter{
		client: goopenai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}, nil
}

func (a *Adapter) Complete(ctx context.Context, system, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, completionTimeout)
	defer cancel()

	resp, err := a.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: a.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: system},
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream starts a streamed completion and forwards text deltas on the
// returned channel. The consumer detaches by cancelling ctx; the forwarding
// goroutine then closes the stream and stops without delivering more chunks.
func (a *Adapter) Stream(ctx context.Context, system, prompt string) (<-chan llm.Chunk, error) {
	stream, err := a.client.CreateChatCompletionStream(ctx, goopenai.ChatCompletionRequest{
		Model: a.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: system},
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("start completion stream: %w", err)
	}

	out := make(chan llm.Chunk)
	go func() {
		defer close(out)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					// Consumer went away; discard silently.
					return
				}
				slog.ErrorContext(ctx, "Completion stream failed mid-response", "error", err)
				select {
				case out <- llm.Chunk{Err: err}:
				case <-ctx.Done():
				}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case out <- llm.Chunk{Text: delta}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
