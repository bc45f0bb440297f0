package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	anthropicMaxRetries     = 3
	anthropicInitialBackoff = time.Second
)

// AnthropicProvider generates text with the Anthropic Messages API.
// It does not implement Embedder.
type AnthropicProvider struct {
	client         anthropic.Client
	maxRetries     int
	initialBackoff time.Duration
}

// NewAnthropicProvider creates a provider from an API key.
func NewAnthropicProvider(apiKey string) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: API key required")
	}
	return &AnthropicProvider{
		client:         anthropic.NewClient(option.WithAPIKey(apiKey)),
		maxRetries:     anthropicMaxRetries,
		initialBackoff: anthropicInitialBackoff,
	}, nil
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Generate calls the Messages API, retrying rate-limit and transient errors
// with exponential backoff.
func (p *AnthropicProvider) Generate(ctx context.Context, req Request) (*Result, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := p.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		message, err := p.client.Messages.New(ctx, params)
		if err == nil {
			if len(message.Content) == 0 {
				return nil, errors.New("anthropic: response has no content blocks")
			}
			content := message.Content[0]
			if content.Type != "text" {
				return nil, fmt.Errorf("anthropic: unexpected content type %s", content.Type)
			}
			return &Result{
				Text:      content.Text,
				TokensIn:  message.Usage.InputTokens,
				TokensOut: message.Usage.OutputTokens,
			}, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !anthropicRetryable(err) {
			return nil, fmt.Errorf("anthropic: %w", err)
		}
	}
	return nil, fmt.Errorf("anthropic: failed after %d attempts: %w", p.maxRetries+1, lastErr)
}

func anthropicRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
