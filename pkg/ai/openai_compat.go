package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Groq serves the OpenAI chat-completions API; any compatible endpoint works.
const defaultBaseURL = "https://api.groq.com/openai/v1"

// OpenAICompatGenerator calls an OpenAI-compatible /chat/completions endpoint.
type OpenAICompatGenerator struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

// Option customizes an OpenAICompatGenerator.
type Option func(*OpenAICompatGenerator)

// WithBaseURL overrides the API base URL (must include the /v1 prefix).
func WithBaseURL(baseURL string) Option {
	return func(g *OpenAICompatGenerator) {
		g.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
}

// WithSampling sets temperature and the completion token cap.
func WithSampling(temperature float64, maxTokens int) Option {
	return func(g *OpenAICompatGenerator) {
		g.temperature = temperature
		g.maxTokens = maxTokens
	}
}

// WithHTTPClient substitutes the HTTP client, mainly for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(g *OpenAICompatGenerator) {
		g.httpClient = client
	}
}

// NewOpenAICompatGenerator builds a TextGenerator for the given model.
func NewOpenAICompatGenerator(apiKey, model string, options ...Option) (*OpenAICompatGenerator, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("generation model required")
	}
	g := &OpenAICompatGenerator{
		baseURL:     defaultBaseURL,
		apiKey:      strings.TrimSpace(apiKey),
		model:       strings.TrimSpace(model),
		temperature: 0.5,
		maxTokens:   2048,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
	}
	for _, option := range options {
		if option != nil {
			option(g)
		}
	}
	return g, nil
}

// GenerateText implements TextGenerator using the chat completions API.
func (g *OpenAICompatGenerator) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userPrompt})

	body, err := json.Marshal(chatRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp chatErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error.Message != "" {
			return "", fmt.Errorf("completion api error: %s", errResp.Error.Message)
		}
		return "", fmt.Errorf("completion api error: %s", resp.Status)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("completion decode: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	text := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty completion response")
	}
	return text, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type chatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
