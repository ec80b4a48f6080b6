// Package anthropicmodel registers the kernel's built-in TEXT_LARGE and
// TEXT_SMALL Model Router handlers against the Anthropic Messages API.
// Parameter building (model, max tokens, system prompt, temperature,
// messages) follows the same shape as a streaming call,
// but this handler calls the non-streaming Messages.New since the Model
// Router's UseModel contract is request/response, not a streaming
// accumulator.
package anthropicmodel

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/coreagent/kernel/modelrouter"
)

// Config selects the concrete model id and default sampling parameters
// for one registered handler.
type Config struct {
	Model       string
	MaxTokens   int64
	Temperature *float64
}

// NewTextHandler builds a modelrouter.Handler backed by a non-streaming
// Messages.New call. params recognised: "prompt" or "messages"
// ([]anthropic.MessageParam), "system", "temperature", "maxTokens".
func NewTextHandler(client *anthropic.Client, cfg Config) modelrouter.Handler {
	return func(ctx context.Context, params map[string]any) (any, error) {
		req := anthropic.MessageNewParams{
			Model:     anthropic.Model(cfg.Model),
			MaxTokens: cfg.MaxTokens,
		}
		if cfg.Temperature != nil {
			req.Temperature = anthropic.Float(*cfg.Temperature)
		}

		if sys, ok := params["system"].(string); ok && sys != "" {
			req.System = []anthropic.TextBlockParam{{Text: sys}}
		}

		switch v := params["messages"].(type) {
		case []anthropic.MessageParam:
			req.Messages = v
		default:
			prompt, ok := params["prompt"].(string)
			if !ok {
				return nil, fmt.Errorf("anthropicmodel: params must carry \"messages\" or \"prompt\"")
			}
			req.Messages = []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))}
		}

		if t, ok := params["temperature"].(float64); ok {
			req.Temperature = anthropic.Float(t)
		}
		if mt, ok := params["maxTokens"].(int64); ok && mt > 0 {
			req.MaxTokens = mt
		}

		msg, err := client.Messages.New(ctx, req, []option.RequestOption{}...)
		if err != nil {
			return nil, fmt.Errorf("anthropicmodel: %w", err)
		}

		var text string
		for _, block := range msg.Content {
			if block.Type == "text" {
				text += block.Text
			}
		}
		return text, nil
	}
}
