package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/compliance-agent/internal/errors"
)

const (
	anthropicAPIBase    = "https://api.anthropic.com/v1"
	anthropicAPIVersion = "2023-06-01"
	defaultMaxTokens    = 4096
	defaultModel        = "claude-sonnet-4-5"
)

// AnthropicGenerator calls the Anthropic Messages API.
type AnthropicGenerator struct {
	apiKey    string
	model     string
	maxTokens int
	baseURL   string
	client    *http.Client
	logger    zerolog.Logger
}

// AnthropicOption configures the generator.
type AnthropicOption func(*AnthropicGenerator)

func WithModel(model string) AnthropicOption {
	return func(g *AnthropicGenerator) { g.model = model }
}

func WithMaxTokens(n int) AnthropicOption {
	return func(g *AnthropicGenerator) { g.maxTokens = n }
}

func WithHTTPClient(c *http.Client) AnthropicOption {
	return func(g *AnthropicGenerator) { g.client = c }
}

func WithBaseURL(u string) AnthropicOption {
	return func(g *AnthropicGenerator) { g.baseURL = u }
}

func WithLogger(l zerolog.Logger) AnthropicOption {
	return func(g *AnthropicGenerator) { g.logger = l }
}

// NewAnthropicGenerator constructs a generator with defaults suitable
// for document drafting.
func NewAnthropicGenerator(apiKey string, opts ...AnthropicOption) *AnthropicGenerator {
	g := &AnthropicGenerator{
		apiKey:    apiKey,
		model:     defaultModel,
		maxTokens: defaultMaxTokens,
		baseURL:   anthropicAPIBase,
		client:    &http.Client{Timeout: 120 * time.Second},
		logger:    zerolog.Nop(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate sends a blocking completion request and returns the text
// blocks concatenated. Transport failures and API errors are reported
// as ErrGeneratorUnavailable; context deadline becomes ErrTimeout.
func (g *AnthropicGenerator) Generate(ctx context.Context, command, prompt string) (string, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		System:    "You draft compliance project documents. Respond with the document body only, in Markdown.",
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", g.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("generator timed out: %w", perrors.ErrTimeout)
		}
		return "", fmt.Errorf("generator unreachable: %v: %w", err, perrors.ErrGeneratorUnavailable)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %v: %w", err, perrors.ErrGeneratorUnavailable)
	}

	var ar anthropicResponse
	if err := json.Unmarshal(raw, &ar); err != nil {
		return "", fmt.Errorf("failed to parse response: %v: %w", err, perrors.ErrGeneratorUnavailable)
	}
	if ar.Error != nil {
		return "", fmt.Errorf("anthropic api error %s: %s: %w", ar.Error.Type, ar.Error.Message, perrors.ErrGeneratorUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("anthropic api status %d: %w", resp.StatusCode, perrors.ErrGeneratorUnavailable)
	}

	var text string
	for _, block := range ar.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return "", fmt.Errorf("empty completion: %w", perrors.ErrGeneratorUnavailable)
	}

	g.logger.Debug().
		Str("command", command).
		Str("model", g.model).
		Str("stop_reason", ar.StopReason).
		Int("in_tokens", ar.Usage.InputTokens).
		Int("out_tokens", ar.Usage.OutputTokens).
		Msg("completion received")

	return text, nil
}
