package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/pkoukk/tiktoken-go"

	"github.com/graphweave/graphweave/pkg/ai"
)

const providerName = "ollama"

// Generate sends a single-turn prompt and returns the assistant text with
// token usage. The context window is widened for prompts that exceed the
// Ollama default.
func (c *Client) Generate(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (*ai.Response, error) {
	options := ai.GenerateOptions{
		Model:       c.chatModel,
		Temperature: 0.3,
	}
	for _, o := range opts {
		o(&options)
	}

	req, err := c.buildChatRequest(prompt, options)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	final, err := c.collectChat(ctx, req)
	if err != nil {
		return nil, err
	}
	duration := time.Since(start).Milliseconds()

	return c.buildResponse(final, options.Model, duration), nil
}

// GenerateWithFormat enforces a JSON schema on the model output and
// unmarshals it into out.
func (c *Client) GenerateWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) (*ai.Response, error) {
	if out == nil {
		return nil, errors.New("out must be a non-nil pointer")
	}
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return nil, errors.New("out must be a non-nil pointer")
	}

	options := ai.GenerateOptions{
		Model:       c.chatModel,
		Temperature: 0.1,
	}
	for _, o := range opts {
		o(&options)
	}

	req, err := c.buildChatRequest(prompt, options)
	if err != nil {
		return nil, err
	}

	schema := ai.GenerateSchema(out)
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	req.Format = schemaJSON

	start := time.Now()
	final, err := c.collectChat(ctx, req)
	if err != nil {
		return nil, err
	}
	duration := time.Since(start).Milliseconds()

	if err := ai.UnmarshalFlexible(final.Message.Content, out); err != nil {
		return nil, err
	}

	return c.buildResponse(final, options.Model, duration), nil
}

func (c *Client) buildChatRequest(prompt string, options ai.GenerateOptions) (*api.ChatRequest, error) {
	stream := false

	msgs := []api.Message{}
	for _, sp := range options.SystemPrompts {
		msgs = append(msgs, api.Message{Role: "system", Content: sp})
	}
	msgs = append(msgs, api.Message{Role: "user", Content: prompt})

	req := &api.ChatRequest{
		Model:    options.Model,
		Messages: msgs,
		Stream:   &stream,
		Options:  map[string]any{"temperature": options.Temperature},
	}

	if options.MaxTokens > 0 {
		req.Options["num_predict"] = options.MaxTokens
	}
	if options.Seed != nil {
		req.Options["seed"] = int(*options.Seed)
	}

	enc, err := tiktoken.GetEncoding("o200k_base")
	if err != nil {
		return nil, err
	}
	tokens := 200 + len(enc.Encode(prompt, nil, nil))
	if tokens > 4096 {
		req.Options["num_ctx"] = tokens
	}

	return req, nil
}

func (c *Client) collectChat(ctx context.Context, req *api.ChatRequest) (*api.ChatResponse, error) {
	var final api.ChatResponse
	if err := c.Client.Chat(ctx, req, func(cr api.ChatResponse) error {
		final.Message.Content += cr.Message.Content
		if cr.Done {
			final.Done = true
			final.Metrics = cr.Metrics
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &final, nil
}

func (c *Client) buildResponse(final *api.ChatResponse, model string, durationMs int64) *ai.Response {
	usage := ai.Usage{
		InputTokens:  final.Metrics.PromptEvalCount,
		OutputTokens: final.Metrics.EvalCount,
		TotalTokens:  final.Metrics.PromptEvalCount + final.Metrics.EvalCount,
	}

	c.modifyMetrics(ai.ModelMetrics{
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		TotalTokens:  usage.TotalTokens,
		Calls:        1,
		DurationMs:   durationMs,
	})

	return &ai.Response{
		Text:     final.Message.Content,
		Usage:    usage,
		Model:    model,
		Provider: providerName,
	}
}
