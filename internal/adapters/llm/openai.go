// Package llm implements the completion provider port against
// OpenAI-compatible chat completion APIs.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/manthysbr/lineOS/internal/core/domain"
)

// newGenerationModels are model-name substrings whose APIs take
// max_completion_tokens instead of max_tokens.
var newGenerationModels = []string{"o1", "o3", "gpt-4.5", "gpt-5", "chatgpt-4o"}

// OpenAIProvider implements the LLM provider port over any
// OpenAI-compatible API. Works with OpenAI, Azure OpenAI, Together AI,
// local Ollama /v1, etc.
type OpenAIProvider struct {
	client      *http.Client
	baseURL     string
	apiKey      string
	model       string
	temperature float64
}

// NewOpenAIProvider creates a provider from config. The base URL and key
// are checked on every call, not here, so settings can change at runtime.
func NewOpenAIProvider(cfg domain.LLMConfig) *OpenAIProvider {
	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAIProvider{
		client:      &http.Client{Timeout: 60 * time.Second},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       model,
		temperature: cfg.Temperature,
	}
}

// tokenParam returns the token-limit parameter name for the configured
// model. Newer model families renamed it.
func (p *OpenAIProvider) tokenParam() string {
	lower := strings.ToLower(p.model)
	for _, fam := range newGenerationModels {
		if strings.Contains(lower, fam) {
			return "max_completion_tokens"
		}
	}
	return "max_tokens"
}

func (p *OpenAIProvider) buildPayload(messages []domain.ChatMessage, maxTokens int, stream bool) map[string]any {
	payload := map[string]any{
		"model":    p.model,
		"messages": messages,
	}
	if p.temperature > 0 {
		payload["temperature"] = p.temperature
	}
	if maxTokens > 0 {
		payload[p.tokenParam()] = maxTokens
	}
	if stream {
		payload["stream"] = true
	}
	return payload
}

func (p *OpenAIProvider) newRequest(ctx context.Context, payload map[string]any) (*http.Request, error) {
	if p.baseURL == "" || p.apiKey == "" {
		return nil, fmt.Errorf("%w: base URL or API key not configured", domain.ErrProviderUnavailable)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	return req, nil
}

// Complete sends a chat completion request and returns the full reply text.
func (p *OpenAIProvider) Complete(ctx context.Context, messages []domain.ChatMessage, maxTokens int) (string, error) {
	req, err := p.newRequest(ctx, p.buildPayload(messages, maxTokens, false))
	if err != nil {
		return "", err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call completion API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("completion API returned status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return result.Choices[0].Message.Content, nil
}

// Stream sends a streaming chat completion request, invoking onDelta per
// text chunk, and returns the accumulated text.
func (p *OpenAIProvider) Stream(ctx context.Context, messages []domain.ChatMessage, maxTokens int, onDelta func(string)) (string, error) {
	req, err := p.newRequest(ctx, p.buildPayload(messages, maxTokens, true))
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call completion API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("completion API returned status %d: %s", resp.StatusCode, string(body))
	}

	var sb strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip malformed keepalive or comment lines.
			continue
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			sb.WriteString(chunk.Choices[0].Delta.Content)
			onDelta(chunk.Choices[0].Delta.Content)
		}
	}
	if err := scanner.Err(); err != nil {
		return sb.String(), fmt.Errorf("read stream: %w", err)
	}
	return sb.String(), nil
}
