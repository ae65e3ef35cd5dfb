package llm

import (
	"context"
	"strings"

	"github.com/michelcools-creator/gem-radar-bot/pkg/anthropic"
)

// AnthropicProvider sends completions through the Anthropic messages API.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider wraps an Anthropic client.
func NewAnthropicProvider(client anthropic.Client) *AnthropicProvider {
	return &AnthropicProvider{client: client}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	msgReq := anthropic.MessageRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Messages:    []anthropic.Message{{Role: "user", Content: req.User}},
		Temperature: req.Temperature,
	}
	if req.System != "" {
		// The system prompt is identical for every coin in a phase.
		msgReq.System = []anthropic.SystemBlock{{Text: req.System, Cacheable: true}}
	}

	resp, err := p.client.CreateMessage(ctx, msgReq)
	if err != nil {
		return nil, statusError(err, anthropic.StatusCode(err), "llm: anthropic complete")
	}
	resp.Usage.LogCost(resp.Model, req.Phase)

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, ErrEmptyResponse
	}
	return &Response{
		Text:  text,
		Model: resp.Model,
		Usage: Usage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens},
	}, nil
}
