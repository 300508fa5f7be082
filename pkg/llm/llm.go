// Package llm wraps the generative text/vision backends behind a small
// conversation interface. Conversations hold the model-side context for one
// room; the session registry owns their lifecycle.
package llm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// describePrompt is the fixed instruction used for all vision descriptions.
const describePrompt = "Describe this image with as much detail as possible in 1 to 2 sentences"

// Conversation is a single model-backed chat context. Not safe for
// concurrent use; callers serialize per room.
type Conversation interface {
	Send(ctx context.Context, text string) (string, error)
	Describe(ctx context.Context, data []byte, mimeType string) (string, error)
}

// Provider creates conversations against one backend.
type Provider interface {
	Name() string
	NewConversation(ctx context.Context) (Conversation, error)
}

// Config selects and configures the backend.
type Config struct {
	// Provider is "gemini" (default) or "openai".
	Provider string `yaml:"provider" json:"provider"`
	APIKey   string `yaml:"api_key" json:"api_key"`
	Model    string `yaml:"model" json:"model"`
	// BaseURL overrides the API endpoint for OpenAI-compatible servers.
	BaseURL string `yaml:"base_url" json:"base_url"`
}

// NewProvider builds the configured provider.
func NewProvider(ctx context.Context, cfg Config, log zerolog.Logger) (Provider, error) {
	switch cfg.Provider {
	case "", "gemini":
		return NewGeminiProvider(ctx, cfg.APIKey, cfg.Model, log)
	case "openai":
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Model, log), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
