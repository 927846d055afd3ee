package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/engram/internal/memory"
)

// Anthropic implements Provider for the Claude messages API.
type Anthropic struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

// NewAnthropic creates an Anthropic provider.
func NewAnthropic(cfg Config, logger *zap.Logger) *Anthropic {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.anthropic.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-haiku-20241022"
	}
	return &Anthropic{
		config: cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (p *Anthropic) ID() string   { return p.config.ID }
func (p *Anthropic) Name() string { return p.config.Name }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    string             `json:"system,omitempty"`
	MaxTokens int                `json:"max_tokens"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (p *Anthropic) chat(ctx context.Context, system, prompt string) (string, error) {
	req := anthropicRequest{
		Model:     p.config.Model,
		System:    system,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
		MaxTokens: 4096,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.config.Endpoint+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.config.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	var claudeResp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&claudeResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	var content string
	for _, c := range claudeResp.Content {
		if c.Type == "text" {
			content += c.Text
		}
	}
	if content == "" {
		return "", fmt.Errorf("empty response from provider")
	}
	return content, nil
}

// ExtractSemantics asks the model for a structured semantic event.
func (p *Anthropic) ExtractSemantics(ctx context.Context, text string) (*memory.SemanticEvent, error) {
	raw, err := p.chat(ctx, extractionSystemPrompt, extractionPrompt(text))
	if err != nil {
		return nil, err
	}
	event, err := parseEventJSON(raw)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("semantics extracted",
		zap.String("provider", p.config.ID),
		zap.Int("atoms", len(event.Atoms)),
		zap.Int("relationships", len(event.Relationships)))
	return event, nil
}

// FormatResponse turns activated memory into a conversational answer.
func (p *Anthropic) FormatResponse(ctx context.Context, query string, data *MemoryData) (string, error) {
	return p.chat(ctx, formatSystemPrompt, formatPrompt(query, data))
}

// HealthCheck verifies the provider is reachable with a minimal request.
func (p *Anthropic) HealthCheck(ctx context.Context) error {
	_, err := p.chat(ctx, "", "ping")
	return err
}
