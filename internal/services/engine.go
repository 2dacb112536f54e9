package services

import (
	"context"
	"fmt"

	"github.com/chatrelay/backend/internal/config"
)

// Fragment is one incremental unit of generated text. A stream is a
// finite, single-pass channel of fragments: zero or more text deltas,
// then either one fragment with Final set (normal end of turn) or one
// with Err set (generation failed), after which the channel is closed.
type Fragment struct {
	Text  string
	Final bool
	Err   error
}

// SamplingPolicy is forwarded unchanged to the engine on every turn of
// a session.
type SamplingPolicy struct {
	Temperature float32
	MaxTokens   int
	StopTokens  []string
}

// Engine produces text for chat turns. Implementations wrap a concrete
// LLM provider.
type Engine interface {
	// NewConversation allocates a fresh generation context. The context
	// accumulates history across turns until closed.
	NewConversation() (Conversation, error)
}

// Conversation is one generation context, owned by a single session.
// Send returns a lazy fragment stream; cancelling ctx abandons the
// in-flight generation. Callers must not invoke Send concurrently on
// the same conversation.
type Conversation interface {
	Send(ctx context.Context, message string, policy SamplingPolicy) (<-chan Fragment, error)
	Close() error
}

// NewEngine builds the provider named by the configuration, mirroring
// the provider switch used for every other LLM-facing component.
func NewEngine(cfg *config.EngineConfig) (Engine, error) {
	switch cfg.Provider {
	case "openai", "azure", "":
		return newOpenAIEngine(cfg), nil
	case "ollama":
		return newOllamaEngine(cfg)
	case "anthropic":
		return newAnthropicEngine(cfg), nil
	case "gemini":
		return newGeminiEngine(cfg)
	default:
		return nil, fmt.Errorf("unsupported engine provider: %s", cfg.Provider)
	}
}

// emit pushes a fragment unless the context is already cancelled.
// Reports whether the fragment was delivered.
func emit(ctx context.Context, out chan<- Fragment, frag Fragment) bool {
	select {
	case out <- frag:
		return true
	case <-ctx.Done():
		return false
	}
}
