package ai

import (
	"context"
)

// Usage contains token counts reported by a single model call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Response is the result of a single generation call. Model and Provider
// report what actually served the request after per-call overrides.
type Response struct {
	Text         string  `json:"text"`
	Usage        Usage   `json:"usage"`
	CostEstimate float64 `json:"cost_estimate"`
	Model        string  `json:"model"`
	Provider     string  `json:"provider"`
}

// ModelMetrics contains accumulated performance metrics from AI model operations.
type ModelMetrics struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	Cost         float64 `json:"cost"`
	Calls        int     `json:"calls"`
	DurationMs   int64   `json:"duration_ms"`
}

// GenerateOptions holds configuration for AI generation requests.
type GenerateOptions struct {
	Model         string   // Model identifier to use for generation
	SystemPrompts []string // System prompts prepended to the request
	Temperature   float64  // Sampling temperature (0.0-2.0)
	MaxTokens     int      // Output token cap, 0 means provider default
	Seed          *int64   // Deterministic seed where the backing model supports it
}

// GenerateOption is a functional option for configuring AI generation requests.
type GenerateOption func(*GenerateOptions)

// WithModel returns a GenerateOption that overrides the model for one call.
func WithModel(model string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Model = model
	}
}

// WithSystemPrompts returns a GenerateOption that sets the system prompts
// to prepend to the generation request.
func WithSystemPrompts(prompts ...string) GenerateOption {
	return func(o *GenerateOptions) {
		o.SystemPrompts = prompts
	}
}

// WithTemperature returns a GenerateOption that sets the sampling temperature.
func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = temp
	}
}

// WithMaxTokens returns a GenerateOption that caps the output token count.
func WithMaxTokens(max int) GenerateOption {
	return func(o *GenerateOptions) {
		o.MaxTokens = max
	}
}

// WithSeed returns a GenerateOption that requests deterministic sampling.
// Providers that do not support seeding ignore it.
func WithSeed(seed int64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Seed = &seed
	}
}

// Client defines the interface for AI operations used in graph construction
// and retrieval. Implementations handle text generation and embeddings and
// must support per-call model overrides and deterministic seeding where the
// backing model supports it.
type Client interface {
	Generate(
		ctx context.Context,
		prompt string,
		opts ...GenerateOption,
	) (*Response, error)
	GenerateWithFormat(
		ctx context.Context,
		name string,
		description string,
		prompt string,
		out any,
		opts ...GenerateOption,
	) (*Response, error)

	Embed(ctx context.Context, input []byte) ([]float32, error)

	ResetMetrics()
	GetMetrics() ModelMetrics
}
