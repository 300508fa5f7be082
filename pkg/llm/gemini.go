package llm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// GeminiProvider creates conversations backed by the Gemini chats API.
type GeminiProvider struct {
	client *genai.Client
	model  string
	log    zerolog.Logger
}

func NewGeminiProvider(ctx context.Context, apiKey, model string, log zerolog.Logger) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiProvider{
		client: client,
		model:  model,
		log:    log.With().Str("provider", "gemini").Logger(),
	}, nil
}

func (g *GeminiProvider) Name() string {
	return "gemini"
}

func (g *GeminiProvider) NewConversation(ctx context.Context) (Conversation, error) {
	chat, err := g.client.Chats.Create(ctx, g.model, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini chat: %w", err)
	}
	return &geminiConversation{chat: chat, log: g.log}, nil
}

type geminiConversation struct {
	chat *genai.Chat
	log  zerolog.Logger
}

func (c *geminiConversation) Send(ctx context.Context, text string) (string, error) {
	resp, err := c.chat.SendMessage(ctx, genai.Part{Text: text})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

func (c *geminiConversation) Describe(ctx context.Context, data []byte, mimeType string) (string, error) {
	resp, err := c.chat.SendMessage(ctx,
		genai.Part{InlineData: &genai.Blob{Data: data, MIMEType: mimeType}},
		genai.Part{Text: describePrompt},
	)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
