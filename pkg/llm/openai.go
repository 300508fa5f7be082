package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog"
)

// OpenAIProvider creates conversations against OpenAI or any
// OpenAI-compatible endpoint. Unlike Gemini chats, the API is stateless, so
// each conversation carries its own message history.
type OpenAIProvider struct {
	client openai.Client
	model  string
	log    zerolog.Logger
}

func NewOpenAIProvider(apiKey, baseURL, model string, log zerolog.Logger) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		model:  model,
		log:    log.With().Str("provider", "openai").Logger(),
	}
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) NewConversation(_ context.Context) (Conversation, error) {
	return &openaiConversation{
		client: p.client,
		model:  p.model,
		log:    p.log,
	}, nil
}

type openaiConversation struct {
	client  openai.Client
	model   string
	log     zerolog.Logger
	history []openai.ChatCompletionMessageParamUnion
}

func (c *openaiConversation) Send(ctx context.Context, text string) (string, error) {
	return c.complete(ctx, openai.UserMessage(text), len(text))
}

func (c *openaiConversation) Describe(ctx context.Context, data []byte, mimeType string) (string, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
	imageContent := openai.ChatCompletionContentPartUnionParam{
		OfImageURL: &openai.ChatCompletionContentPartImageParam{
			ImageURL: openai.ChatCompletionContentPartImageImageURLParam{
				URL:    dataURL,
				Detail: "auto",
			},
		},
	}
	textContent := openai.ChatCompletionContentPartUnionParam{
		OfText: &openai.ChatCompletionContentPartTextParam{
			Text: describePrompt,
		},
	}
	msg := openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
					imageContent,
					textContent,
				},
			},
		},
	}
	return c.complete(ctx, msg, len(describePrompt))
}

func (c *openaiConversation) complete(ctx context.Context, msg openai.ChatCompletionMessageParamUnion, addedChars int) (string, error) {
	c.history = append(c.history, msg)
	c.logPromptEstimate(addedChars)

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: c.history,
	})
	if err != nil {
		// Keep the failed turn out of the carried history so a retry
		// doesn't double-count the prompt.
		c.history = c.history[:len(c.history)-1]
		return "", err
	}
	if len(resp.Choices) == 0 {
		c.history = c.history[:len(c.history)-1]
		return "", errors.New("no completion choices returned")
	}
	reply := resp.Choices[0].Message.Content
	c.history = append(c.history, openai.AssistantMessage(reply))
	return reply, nil
}

// logPromptEstimate logs a rough token count for the outgoing turn so
// oversized contexts are visible before the backend rejects them.
func (c *openaiConversation) logPromptEstimate(addedChars int) {
	enc, err := tiktoken.EncodingForModel(c.model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return
		}
	}
	tokens := 0
	for _, msg := range c.history {
		if content := msg.OfUser; content != nil {
			if text := content.Content.OfString; text.Valid() {
				tokens += len(enc.Encode(text.Value, nil, nil))
			}
		}
		if content := msg.OfAssistant; content != nil {
			if text := content.Content.OfString; text.Valid() {
				tokens += len(enc.Encode(text.Value, nil, nil))
			}
		}
	}
	c.log.Debug().
		Int("history_len", len(c.history)).
		Int("added_chars", addedChars).
		Int("approx_prompt_tokens", tokens).
		Msg("Dispatching chat completion")
}
