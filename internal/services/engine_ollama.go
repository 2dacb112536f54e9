package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/chatrelay/backend/internal/config"
	"github.com/chatrelay/backend/pkg/logger"
	"github.com/ollama/ollama/api"
)

// ollamaEngine talks to a local or remote Ollama daemon using the
// native SDK.
type ollamaEngine struct {
	client *api.Client
	model  string
}

func newOllamaEngine(cfg *config.EngineConfig) (*ollamaEngine, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama base URL: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = "llama3"
	}

	return &ollamaEngine{
		client: api.NewClient(u, http.DefaultClient),
		model:  model,
	}, nil
}

func (e *ollamaEngine) NewConversation() (Conversation, error) {
	return &ollamaConversation{engine: e}, nil
}

type ollamaConversation struct {
	engine  *ollamaEngine
	history []api.Message
}

func (c *ollamaConversation) Send(ctx context.Context, message string, policy SamplingPolicy) (<-chan Fragment, error) {
	c.history = append(c.history, api.Message{Role: "user", Content: message})

	options := map[string]interface{}{
		"temperature": policy.Temperature,
	}
	if policy.MaxTokens > 0 {
		options["num_predict"] = policy.MaxTokens
	}
	if len(policy.StopTokens) > 0 {
		options["stop"] = policy.StopTokens
	}

	req := &api.ChatRequest{
		Model:    c.engine.model,
		Messages: c.history,
		Options:  options,
	}

	out := make(chan Fragment)
	go func() {
		defer close(out)

		var reply string
		err := c.engine.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			if resp.Message.Content != "" {
				reply += resp.Message.Content
				if !emit(ctx, out, Fragment{Text: resp.Message.Content}) {
					return ctx.Err()
				}
			}
			return nil
		})
		if err != nil {
			logger.Warn().Err(err).Msg("ollama stream error")
			emit(ctx, out, Fragment{Err: fmt.Errorf("Ollama API error: %w", err)})
			return
		}

		c.history = append(c.history, api.Message{Role: "assistant", Content: reply})
		emit(ctx, out, Fragment{Final: true})
	}()
	return out, nil
}

func (c *ollamaConversation) Close() error {
	c.history = nil
	return nil
}
