package services

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/chatrelay/backend/internal/config"
	"github.com/chatrelay/backend/pkg/logger"
)

// anthropicEngine handles the Anthropic Claude API using the native SDK.
type anthropicEngine struct {
	client anthropic.Client
	model  string
}

func newAnthropicEngine(cfg *config.EngineConfig) *anthropicEngine {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}

	return &anthropicEngine{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

func (e *anthropicEngine) NewConversation() (Conversation, error) {
	return &anthropicConversation{engine: e}, nil
}

type anthropicConversation struct {
	engine  *anthropicEngine
	history []anthropic.MessageParam
}

func (c *anthropicConversation) Send(ctx context.Context, message string, policy SamplingPolicy) (<-chan Fragment, error) {
	c.history = append(c.history, anthropic.NewUserMessage(anthropic.NewTextBlock(message)))

	maxTokens := int64(policy.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:         anthropic.Model(c.engine.model),
		MaxTokens:     maxTokens,
		Messages:      c.history,
		Temperature:   anthropic.Float(float64(policy.Temperature)),
		StopSequences: policy.StopTokens,
	}

	out := make(chan Fragment)
	go func() {
		defer close(out)

		stream := c.engine.client.Messages.NewStreaming(ctx, params)
		var accumulated anthropic.Message
		for stream.Next() {
			event := stream.Current()
			if err := accumulated.Accumulate(event); err != nil {
				logger.Warn().Err(err).Msg("anthropic event accumulation failed")
			}

			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
					if !emit(ctx, out, Fragment{Text: delta.Text}) {
						return
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			logger.Warn().Err(err).Msg("anthropic stream error")
			emit(ctx, out, Fragment{Err: fmt.Errorf("Anthropic API error: %w", err)})
			return
		}

		c.history = append(c.history, accumulated.ToParam())
		emit(ctx, out, Fragment{Final: true})
	}()
	return out, nil
}

func (c *anthropicConversation) Close() error {
	c.history = nil
	return nil
}
