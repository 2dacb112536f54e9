package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/chatrelay/backend/internal/config"
	"github.com/chatrelay/backend/pkg/logger"
	openai "github.com/sashabaranov/go-openai"
)

// openaiEngine handles OpenAI, Azure OpenAI and OpenAI-compatible APIs
// (including custom endpoints).
type openaiEngine struct {
	client *openai.Client
	model  string
}

func newOpenAIEngine(cfg *config.EngineConfig) *openaiEngine {
	var clientConfig openai.ClientConfig
	if cfg.Provider == "azure" {
		// Azure requires BaseURL format: https://{resource-name}.openai.azure.com
		// Model field is used as deployment name
		clientConfig = openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
	} else {
		clientConfig = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = cfg.BaseURL
		}
	}

	return &openaiEngine{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
	}
}

func (e *openaiEngine) NewConversation() (Conversation, error) {
	return &openaiConversation{engine: e}, nil
}

type openaiConversation struct {
	engine  *openaiEngine
	history []openai.ChatCompletionMessage
}

func (c *openaiConversation) Send(ctx context.Context, message string, policy SamplingPolicy) (<-chan Fragment, error) {
	c.history = append(c.history, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: message,
	})

	stream, err := c.engine.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       c.engine.model,
		Messages:    c.history,
		Temperature: policy.Temperature,
		MaxTokens:   policy.MaxTokens,
		Stop:        policy.StopTokens,
		Stream:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}

	out := make(chan Fragment)
	go func() {
		defer close(out)
		defer stream.Close()

		var reply string
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				c.history = append(c.history, openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleAssistant,
					Content: reply,
				})
				emit(ctx, out, Fragment{Final: true})
				return
			}
			if err != nil {
				logger.Warn().Err(err).Msg("openai stream error")
				emit(ctx, out, Fragment{Err: fmt.Errorf("OpenAI API error: %w", err)})
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			reply += delta
			if !emit(ctx, out, Fragment{Text: delta}) {
				return
			}
		}
	}()
	return out, nil
}

func (c *openaiConversation) Close() error {
	c.history = nil
	return nil
}
