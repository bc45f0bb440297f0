package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const openaiMaxRetries = 3

// OpenAIProvider generates text and embeddings via the OpenAI API. The
// embedding model is fixed at construction; callers pass the same model name
// through the router so the cache keys stay consistent.
type OpenAIProvider struct {
	client         *openai.LLM
	embeddingModel string
}

// NewOpenAIProvider creates a provider from an API key and embedding model.
func NewOpenAIProvider(apiKey, embeddingModel string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: API key required")
	}
	client, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithEmbeddingModel(embeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("openai: create client: %w", err)
	}
	return &OpenAIProvider{client: client, embeddingModel: embeddingModel}, nil
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return "openai" }

// Generate calls the chat completions API with backoff on transient errors.
func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (*Result, error) {
	var messages []llms.MessageContent
	if req.SystemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.SystemPrompt))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	opts := []llms.CallOption{
		llms.WithModel(req.Model),
		llms.WithMaxTokens(req.MaxTokens),
	}
	if req.Temperature != nil {
		opts = append(opts, llms.WithTemperature(*req.Temperature))
	}

	var result *Result
	op := func() error {
		resp, err := p.client.GenerateContent(ctx, messages, opts...)
		if err != nil {
			if ctx.Err() != nil || !openaiRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(errors.New("openai: response has no choices"))
		}
		choice := resp.Choices[0]
		result = &Result{
			Text:      choice.Content,
			TokensIn:  genInfoInt(choice.GenerationInfo, "PromptTokens"),
			TokensOut: genInfoInt(choice.GenerationInfo, "CompletionTokens"),
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(backoff.WithInitialInterval(time.Second)),
		openaiMaxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	return result, nil
}

// Embed implements Embedder using the configured embedding model.
func (p *OpenAIProvider) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if model != "" && model != p.embeddingModel {
		return nil, fmt.Errorf("openai: embedding model %q not configured (have %q)", model, p.embeddingModel)
	}
	vecs, err := p.client.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("openai: create embedding: %w", err)
	}
	return vecs, nil
}

func openaiRetryable(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection")
}

func genInfoInt(info map[string]any, key string) int64 {
	switch v := info[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}
