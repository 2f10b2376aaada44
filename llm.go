package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicVersion = "2023-06-01"
	providerTimeout  = 60 * time.Second
)

// Provider is the abstraction over an AI completion backend: it turns a
// prompt into the model's raw text output. API failures surface from Complete
// rather than from construction.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// resolveProvider walks the ordered provider list (OpenAI first, then
// Anthropic) and returns the first one with credentials configured. The
// result is cached by the caller for the process lifetime; a restart is
// needed to pick up new credentials.
func resolveProvider(cfg Config) (Provider, error) {
	if cfg.OpenAIAPIKey != "" {
		return newOpenAIProvider(cfg), nil
	}
	if cfg.AnthropicAPIKey != "" {
		return newAnthropicProvider(cfg), nil
	}
	return nil, ErrNoProvider
}

// openaiProvider calls the OpenAI chat completions API in JSON mode.
type openaiProvider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

func newOpenAIProvider(cfg Config) *openaiProvider {
	return &openaiProvider{
		apiKey:     cfg.OpenAIAPIKey,
		baseURL:    strings.TrimSuffix(cfg.OpenAIBaseURL, "/"),
		model:      cfg.OpenAIModel,
		httpClient: &http.Client{Timeout: providerTimeout},
	}
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiReq struct {
	Model          string            `json:"model"`
	Messages       []openaiMessage   `json:"messages"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
	Temperature    float64           `json:"temperature"`
}

type openaiResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *openaiProvider) Name() string { return "openai" }

func (p *openaiProvider) Complete(ctx context.Context, prompt string) (string, error) {
	body := openaiReq{
		Model:          p.model,
		Messages:       []openaiMessage{{Role: "user", Content: prompt}},
		ResponseFormat: map[string]string{"type": "json_object"},
		Temperature:    0.1,
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("openai http %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}
	var or openaiResp
	if err := json.NewDecoder(resp.Body).Decode(&or); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(or.Choices) == 0 {
		return "", fmt.Errorf("openai: empty response")
	}
	return or.Choices[0].Message.Content, nil
}

// anthropicProvider calls the Anthropic messages API. The API has no JSON
// mode, so the prompt is suffixed with a JSON-only instruction and the output
// goes through extractJSON before use.
type anthropicProvider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

func newAnthropicProvider(cfg Config) *anthropicProvider {
	return &anthropicProvider{
		apiKey:     cfg.AnthropicAPIKey,
		baseURL:    strings.TrimSuffix(cfg.AnthropicBaseURL, "/"),
		model:      cfg.AnthropicModel,
		httpClient: &http.Client{Timeout: providerTimeout},
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicReq struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResp struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (p *anthropicProvider) Name() string { return "anthropic" }

func (p *anthropicProvider) Complete(ctx context.Context, prompt string) (string, error) {
	body := anthropicReq{
		Model:     p.model,
		MaxTokens: 1024,
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt + "\n\nReturn ONLY valid JSON, no other text."},
		},
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("anthropic http %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}
	var ar anthropicResp
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return "", fmt.Errorf("decode anthropic response: %w", err)
	}
	if len(ar.Content) == 0 {
		return "", fmt.Errorf("anthropic: empty response")
	}
	return ar.Content[0].Text, nil
}

// readErrorBody reads a bounded chunk of an error response for diagnostics.
func readErrorBody(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 4<<10))
	return strings.TrimSpace(string(data))
}

// extractJSON trims markdown code fences and surrounding prose down to the
// outermost JSON object. Models without a JSON mode routinely wrap their
// output this way. Returns the input unchanged when no object is found, so
// the subsequent decode reports the real error.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
