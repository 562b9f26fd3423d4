package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/0xcro3dile/shodobot-go/internal/domain/entities"
)

// ErrCompletion wraps every failed completion call.
var ErrCompletion = errors.New("completion failed")

// GroqBaseURL is Groq's OpenAI-compatible endpoint.
const GroqBaseURL = "https://api.groq.com/openai/v1"

// OpenAIChatAdapter implements ports.CompletionService for any
// OpenAI-compatible chat completions API (Groq by default).
type OpenAIChatAdapter struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int
}

// OpenAIOptions configures an OpenAIChatAdapter.
type OpenAIOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	MaxRetries  int
}

// NewOpenAIChatAdapter creates the adapter.
func NewOpenAIChatAdapter(opt OpenAIOptions) *OpenAIChatAdapter {
	if opt.BaseURL == "" {
		opt.BaseURL = GroqBaseURL
	}
	if opt.Model == "" {
		opt.Model = "llama-3.1-8b-instant"
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opt.APIKey),
		option.WithBaseURL(opt.BaseURL),
		option.WithMaxRetries(opt.MaxRetries),
	}
	if opt.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opt.Timeout))
	}
	return &OpenAIChatAdapter{
		client:      openai.NewClient(reqOpts...),
		model:       opt.Model,
		temperature: opt.Temperature,
		maxTokens:   opt.MaxTokens,
	}
}

// Complete sends the conversation and returns the first choice's content.
func (a *OpenAIChatAdapter) Complete(ctx context.Context, messages []entities.PromptMessage) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(a.model),
		Messages:    toOpenAIMessages(messages),
		Temperature: openai.Float(a.temperature),
	}
	if a.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(a.maxTokens))
	}

	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompletion, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrCompletion)
	}
	return resp.Choices[0].Message.Content, nil
}

func toOpenAIMessages(messages []entities.PromptMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case entities.PromptSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case entities.PromptAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
