// Package llm provides completion adapters.
// Clean Architecture: Adapters implementing ports.CompletionService.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/0xcro3dile/shodobot-go/internal/domain/entities"
)

// OllamaChatAdapter implements ports.CompletionService using a local Ollama server.
type OllamaChatAdapter struct {
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
}

// NewOllamaChatAdapter creates a new Ollama chat adapter.
func NewOllamaChatAdapter(baseURL, model string, temperature float64, maxTokens int, timeout time.Duration) *OllamaChatAdapter {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.2"
	}
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &OllamaChatAdapter{
		baseURL:     baseURL,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// ollamaChatRequest is the Ollama chat API request.
type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

// ollamaChatResponse is the Ollama chat API response.
type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// Complete sends the conversation to /api/chat and returns the reply.
func (a *OllamaChatAdapter) Complete(ctx context.Context, messages []entities.PromptMessage) (string, error) {
	reqBody := ollamaChatRequest{
		Model:    a.model,
		Messages: make([]ollamaMessage, 0, len(messages)),
		Stream:   false,
		Options:  ollamaOptions{Temperature: a.temperature, NumPredict: a.maxTokens},
	}
	for _, m := range messages {
		reqBody.Messages = append(reqBody.Messages, ollamaMessage{Role: ollamaRole(m.Role), Content: m.Content})
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: calling Ollama: %v", ErrCompletion, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: Ollama returned status %d", ErrCompletion, resp.StatusCode)
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("%w: decoding Ollama response: %v", ErrCompletion, err)
	}

	return chatResp.Message.Content, nil
}

func ollamaRole(r entities.PromptRole) string {
	switch r {
	case entities.PromptSystem:
		return "system"
	case entities.PromptAssistant:
		return "assistant"
	default:
		return "user"
	}
}
