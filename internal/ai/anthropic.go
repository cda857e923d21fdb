package ai

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cockroachdb/errors"
)

// AnthropicProvider implements TextProvider using Anthropic's Claude API.
// It has no web search tool, so topic research relies on model knowledge.
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)
	return &AnthropicProvider{client: &client, model: model}
}

func (a *AnthropicProvider) Name() string { return "anthropic" }

// Generate sends the prompt and returns the first text block. Model names
// in req belong to the Gemini family and are ignored.
func (a *AnthropicProvider) Generate(ctx context.Context, req TextRequest) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(float64(*req.Temperature))
	}

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", errors.Wrapf(err, "claude %s", req.Stage)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", nil
}
