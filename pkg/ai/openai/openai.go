package openai

import (
	"sync"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/graphweave/graphweave/pkg/ai"
)

// Client implements the ai.Client interface against an OpenAI-compatible
// endpoint. Separate underlying clients are kept for chat and embeddings so
// the two can point at different deployments.
//
// A Client should be created using NewClient.
type Client struct {
	chatModel      string
	embeddingModel string

	inputCostPerMTok  float64
	outputCostPerMTok float64

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient      *openai.Client
	EmbeddingClient *openai.Client
}

// NewClientParams defines the configuration parameters for creating a new
// Client. ChatModel is the default model for generation; callers can override
// it per call with ai.WithModel. The cost parameters are prices per one
// million tokens and feed the per-call cost estimate.
type NewClientParams struct {
	ChatModel      string
	EmbeddingModel string

	ChatURL      string
	ChatKey      string
	EmbeddingURL string
	EmbeddingKey string

	InputCostPerMTok  float64
	OutputCostPerMTok float64
}

// NewClient creates and returns a new OpenAI-backed ai.Client configured with
// the provided parameters.
func NewClient(params NewClientParams) *Client {
	chatClient := newOpenaiClient(params.ChatURL, params.ChatKey)
	embedClient := newOpenaiClient(params.EmbeddingURL, params.EmbeddingKey)

	return &Client{
		chatModel:      params.ChatModel,
		embeddingModel: params.EmbeddingModel,

		inputCostPerMTok:  params.InputCostPerMTok,
		outputCostPerMTok: params.OutputCostPerMTok,

		metricsLock: sync.Mutex{},
		metrics:     ai.ModelMetrics{},

		ChatClient:      chatClient,
		EmbeddingClient: embedClient,
	}
}

func newOpenaiClient(baseURL string, apiKey string) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}

func (c *Client) estimateCost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1_000_000*c.inputCostPerMTok +
		float64(outputTokens)/1_000_000*c.outputCostPerMTok
}

func (c *Client) modifyMetrics(delta ai.ModelMetrics) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()

	c.metrics.InputTokens += delta.InputTokens
	c.metrics.OutputTokens += delta.OutputTokens
	c.metrics.TotalTokens += delta.TotalTokens
	c.metrics.Cost += delta.Cost
	c.metrics.Calls += delta.Calls
	c.metrics.DurationMs += delta.DurationMs
}

// ResetMetrics clears the accumulated model metrics.
func (c *Client) ResetMetrics() {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics = ai.ModelMetrics{}
}

// GetMetrics returns the accumulated model metrics.
func (c *Client) GetMetrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}
