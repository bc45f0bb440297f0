// Package llm routes generation and embedding requests across multiple
// providers with health tracking, weighted selection, and ordered failover.
package llm

import (
	"context"
	"errors"
)

// Request is one generation call. Operation is a free-form name ("summarize",
// "chat") used for task-type classification when TaskType is unset.
type Request struct {
	Prompt       string
	SystemPrompt string
	MaxTokens    int

	// Temperature nil means "use the task-type default"; an explicit zero
	// requests deterministic output.
	Temperature *float64

	TaskType  TaskType
	Operation string

	// Model overrides the task-type model when non-empty.
	Model string
}

// Temp is a convenience for building requests with an explicit temperature.
func Temp(v float64) *float64 { return &v }

// Response carries the generated text plus routing metadata so callers can
// see which provider answered and whether failover happened.
type Response struct {
	Text       string `json:"text"`
	Model      string `json:"model"`
	DurationMS int64  `json:"duration_ms"`
	TokensIn   int64  `json:"tokens_in"`
	TokensOut  int64  `json:"tokens_out"`
	Provider   string `json:"provider"`
	Attempt    int    `json:"attempt"`
	IsFallback bool   `json:"is_fallback"`
}

// Result is what a concrete provider returns from one successful call.
type Result struct {
	Text      string
	TokensIn  int64
	TokensOut int64
}

// Provider is a single LLM backend.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Result, error)
}

// Embedder is implemented by providers that can produce embeddings.
type Embedder interface {
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)
}

// ErrNoHealthyProvider is returned when selection finds no usable provider.
var ErrNoHealthyProvider = errors.New("no healthy llm provider available")

// ErrNoEmbedder is returned when no registered provider supports embeddings.
var ErrNoEmbedder = errors.New("no embedding-capable llm provider available")
