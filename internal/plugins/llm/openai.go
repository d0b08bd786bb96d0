package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agentrun/agentrun/internal/common/config"
	"github.com/agentrun/agentrun/internal/plugins"
)

// ChatClient captures the subset of the go-openai client used by the adapter.
// It is satisfied by *openai.Client so tests can pass a mock.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (
		openai.ChatCompletionResponse, error)
}

// OpenAIClient implements plugins.LLMClient via the Chat Completions API.
type OpenAIClient struct {
	chat        ChatClient
	model       string
	temperature float64
	maxTokens   int
}

// NewOpenAI constructs a client from configuration. A BaseURL override points
// the client at any OpenAI-compatible endpoint.
func NewOpenAI(cfg config.LLMConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	if cfg.DefaultModel == "" {
		return nil, errors.New("openai: default model is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{
		chat:        openai.NewClientWithConfig(clientCfg),
		model:       cfg.DefaultModel,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// NewOpenAIWithClient wires an explicit chat client, for tests.
func NewOpenAIWithClient(chat ChatClient, cfg config.LLMConfig) *OpenAIClient {
	return &OpenAIClient{
		chat:        chat,
		model:       cfg.DefaultModel,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

// Query sends the conversation to the model and returns the first choice.
func (c *OpenAIClient) Query(ctx context.Context, req plugins.LLMRequest) (*plugins.LLMResponse, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("openai: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.model
	}
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	request := openai.ChatCompletionRequest{
		Model:       modelID,
		Messages:    messages,
		Temperature: float32(c.temperature),
		MaxTokens:   c.maxTokens,
	}
	if req.Temperature > 0 {
		request.Temperature = float32(req.Temperature)
	}
	if req.MaxTokens > 0 {
		request.MaxTokens = int(req.MaxTokens)
	}

	response, err := c.chat.CreateChatCompletion(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(response.Choices) == 0 {
		return nil, errors.New("openai: response has no choices")
	}
	return &plugins.LLMResponse{
		Status:   "success",
		Response: response.Choices[0].Message.Content,
		Model:    response.Model,
	}, nil
}
