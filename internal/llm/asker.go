package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// DefaultEndpoint is an OpenAI-compatible chat completions URL.
const DefaultEndpoint = "https://api.openai.com/v1/chat/completions"

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// HTTPAsker speaks the OpenAI-compatible chat completions protocol. It
// carries the running conversation, since each turn prompt builds on the
// ones before it; one asker serves exactly one seat.
type HTTPAsker struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client

	mu       sync.Mutex
	messages []chatMessage
}

// NewHTTPAsker builds a transport for one model-driven seat. An empty
// endpoint uses DefaultEndpoint.
func NewHTTPAsker(endpoint, model, apiKey string) *HTTPAsker {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &HTTPAsker{
		endpoint: endpoint,
		model:    model,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

// Ask appends the prompt to the conversation and returns the model's reply.
func (a *HTTPAsker) Ask(ctx context.Context, prompt string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.messages = append(a.messages, chatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(chatRequest{Model: a.model, Messages: a.messages})
	if err != nil {
		return "", fmt.Errorf("failed to encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat request returned %s: %s", resp.Status, data)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat response contained no choices")
	}

	reply := parsed.Choices[0].Message
	a.messages = append(a.messages, reply)
	return reply.Content, nil
}
