package services

import (
	"context"
	"fmt"

	"github.com/chatrelay/backend/internal/config"
	"github.com/chatrelay/backend/pkg/logger"
	"google.golang.org/genai"
)

// geminiEngine handles the Google Gemini API using the native SDK. The
// SDK's chat object carries conversation history itself.
type geminiEngine struct {
	client *genai.Client
	model  string
}

func newGeminiEngine(cfg *config.EngineConfig) (*geminiEngine, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("Gemini client error: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-3.0-flash"
	}

	return &geminiEngine{client: client, model: model}, nil
}

func (e *geminiEngine) NewConversation() (Conversation, error) {
	return &geminiConversation{engine: e}, nil
}

type geminiConversation struct {
	engine *geminiEngine
	chat   *genai.Chat
}

// ensureChat creates the underlying chat on first use. The generation
// config is fixed at chat creation, so the first turn's policy applies
// to the whole conversation.
func (c *geminiConversation) ensureChat(ctx context.Context, policy SamplingPolicy) error {
	if c.chat != nil {
		return nil
	}

	genConfig := &genai.GenerateContentConfig{
		Temperature:   genai.Ptr(policy.Temperature),
		StopSequences: policy.StopTokens,
	}
	if policy.MaxTokens > 0 {
		genConfig.MaxOutputTokens = int32(policy.MaxTokens)
	}

	chat, err := c.engine.client.Chats.Create(ctx, c.engine.model, genConfig, nil)
	if err != nil {
		return fmt.Errorf("Gemini chat error: %w", err)
	}
	c.chat = chat
	return nil
}

func (c *geminiConversation) Send(ctx context.Context, message string, policy SamplingPolicy) (<-chan Fragment, error) {
	if err := c.ensureChat(ctx, policy); err != nil {
		return nil, err
	}

	out := make(chan Fragment)
	go func() {
		defer close(out)

		for resp, err := range c.chat.SendMessageStream(ctx, genai.Part{Text: message}) {
			if err != nil {
				logger.Warn().Err(err).Msg("gemini stream error")
				emit(ctx, out, Fragment{Err: fmt.Errorf("Gemini API error: %w", err)})
				return
			}
			if text := resp.Text(); text != "" {
				if !emit(ctx, out, Fragment{Text: text}) {
					return
				}
			}
		}
		emit(ctx, out, Fragment{Final: true})
	}()
	return out, nil
}

func (c *geminiConversation) Close() error {
	c.chat = nil
	return nil
}
