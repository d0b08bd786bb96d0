package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentrun/agentrun/internal/common/config"
	"github.com/agentrun/agentrun/internal/plugins"
)

const defaultAnthropicMaxTokens = 4096

// MessagesClient captures the subset of the Anthropic SDK used by the
// adapter. It is satisfied by *sdk.MessageService.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicClient implements plugins.LLMClient via the Messages API.
type AnthropicClient struct {
	msg         MessagesClient
	model       string
	temperature float64
	maxTokens   int64
}

// NewAnthropic constructs a client from configuration.
func NewAnthropic(cfg config.LLMConfig) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	if cfg.DefaultModel == "" {
		return nil, errors.New("anthropic: default model is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	ac := sdk.NewClient(opts...)
	return NewAnthropicWithClient(&ac.Messages, cfg), nil
}

// NewAnthropicWithClient wires an explicit messages client, for tests.
func NewAnthropicWithClient(msg MessagesClient, cfg config.LLMConfig) *AnthropicClient {
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	return &AnthropicClient{
		msg:         msg,
		model:       cfg.DefaultModel,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
	}
}

// Query sends the conversation to Claude. System-role messages become the
// request's system blocks; user and assistant turns carry text blocks.
func (c *AnthropicClient) Query(ctx context.Context, req plugins.LLMRequest) (*plugins.LLMResponse, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("anthropic: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.model
	}

	var system []sdk.TextBlockParam
	conversation := make([]sdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case "system":
			system = append(system, sdk.TextBlockParam{Text: m.Content})
		case "assistant":
			conversation = append(conversation, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			conversation = append(conversation, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}
	if len(conversation) == 0 {
		return nil, errors.New("anthropic: at least one user/assistant message is required")
	}

	maxTokens := c.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(modelID),
		MaxTokens: maxTokens,
		Messages:  conversation,
	}
	if len(system) > 0 {
		params.System = system
	}
	if t := pickTemperature(req.Temperature, c.temperature); t > 0 {
		params.Temperature = sdk.Float(t)
	}

	msg, err := c.msg.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages.new: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return &plugins.LLMResponse{
		Status:   "success",
		Response: sb.String(),
		Model:    string(msg.Model),
	}, nil
}

func pickTemperature(requested, fallback float64) float64 {
	if requested > 0 {
		return requested
	}
	return fallback
}
