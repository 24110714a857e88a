package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"

	"github.com/graphweave/graphweave/pkg/ai"
)

const providerName = "openai"

// Generate sends a single-turn prompt to the chat model and returns the
// generated completion together with token usage and a cost estimate.
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

	body := c.buildChatBody(prompt, options)

	start := time.Now()
	response, err := c.ChatClient.Chat.Completions.New(ctx, body)
	if err != nil {
		return nil, err
	}
	duration := time.Since(start).Milliseconds()

	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response from model %s", options.Model)
	}

	return c.buildResponse(response, options.Model, duration), nil
}

// GenerateWithFormat sends a prompt to the chat model and unmarshals the
// response into the provided output struct, using a JSON schema to enforce
// structure.
func (c *Client) GenerateWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) (*ai.Response, error) {
	schema := ai.GenerateSchema(out)
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        name,
		Description: openai.String(description),
		Schema:      schema,
		Strict:      openai.Bool(true),
	}

	options := ai.GenerateOptions{
		Model:       c.chatModel,
		Temperature: 0.1,
	}
	for _, o := range opts {
		o(&options)
	}

	body := c.buildChatBody(prompt, options)
	body.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
			JSONSchema: schemaParam,
		},
	}

	start := time.Now()
	response, err := c.ChatClient.Chat.Completions.New(ctx, body)
	if err != nil {
		return nil, err
	}
	duration := time.Since(start).Milliseconds()

	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response from model %s", options.Model)
	}
	message := response.Choices[0].Message.Content
	if message == "" {
		return nil, fmt.Errorf("empty response from model (finish_reason: %s)", response.Choices[0].FinishReason)
	}
	if err := ai.UnmarshalFlexible(message, out); err != nil {
		return nil, err
	}

	return c.buildResponse(response, options.Model, duration), nil
}

func (c *Client) buildChatBody(prompt string, options ai.GenerateOptions) openai.ChatCompletionNewParams {
	msgs := []openai.ChatCompletionMessageParamUnion{}
	for _, sp := range options.SystemPrompts {
		msgs = append(msgs, openai.SystemMessage(sp))
	}
	msgs = append(msgs, openai.UserMessage(prompt))

	body := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(options.Model),
		Messages:    msgs,
		Temperature: openai.Float(options.Temperature),
	}
	if options.MaxTokens > 0 {
		body.MaxCompletionTokens = openai.Int(int64(options.MaxTokens))
	}
	if options.Seed != nil {
		body.Seed = openai.Int(*options.Seed)
	}
	return body
}

func (c *Client) buildResponse(response *openai.ChatCompletion, model string, durationMs int64) *ai.Response {
	usage := ai.Usage{
		InputTokens:  int(response.Usage.PromptTokens),
		OutputTokens: int(response.Usage.CompletionTokens),
		TotalTokens:  int(response.Usage.TotalTokens),
	}
	cost := c.estimateCost(usage.InputTokens, usage.OutputTokens)

	c.modifyMetrics(ai.ModelMetrics{
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		TotalTokens:  usage.TotalTokens,
		Cost:         cost,
		Calls:        1,
		DurationMs:   durationMs,
	})

	return &ai.Response{
		Text:         response.Choices[0].Message.Content,
		Usage:        usage,
		CostEstimate: cost,
		Model:        model,
		Provider:     providerName,
	}
}
