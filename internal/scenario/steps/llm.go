package steps

import (
	"context"
	"fmt"

	"github.com/agentrun/agentrun/internal/plugins"
	"github.com/agentrun/agentrun/internal/scenario/executor"
	"github.com/agentrun/agentrun/internal/scenario/models"
)

// handleLLMQuery invokes the language model capability. The message list
// comes from params.messages when present, otherwise from params.system_prompt
// and params.prompt. The full response is bound under the step's output_var.
func (s *Set) handleLLMQuery(ctx context.Context, step *models.Step, _ map[string]any) executor.Outcome {
	if s.caps == nil || s.caps.LLM == nil {
		return missingCapability(step, "llm")
	}

	messages, err := buildMessages(step)
	if err != nil {
		return executor.Fail(fmt.Errorf("step %q: %w", step.ID, err))
	}

	req := plugins.LLMRequest{
		Messages: messages,
		Model:    step.ParamString("model"),
	}
	if temperature, ok := paramFloat(step, "temperature"); ok {
		req.Temperature = temperature
	}
	if maxTokens, ok := paramInt(step, "max_tokens"); ok {
		req.MaxTokens = maxTokens
	}

	resp, err := s.caps.LLM.Query(ctx, req)
	if err != nil {
		return executor.Fail(fmt.Errorf("step %q: llm query: %w", step.ID, err))
	}
	return executor.Bind(map[string]any{
		"status":   resp.Status,
		"response": resp.Response,
		"model":    resp.Model,
	})
}

func buildMessages(step *models.Step) ([]plugins.LLMMessage, error) {
	if raw, ok := step.Params["messages"]; ok {
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("params.messages must be a list")
		}
		messages := make([]plugins.LLMMessage, 0, len(list))
		for _, rawMsg := range list {
			entry, ok := rawMsg.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("params.messages entries must be mappings")
			}
			msg := plugins.LLMMessage{}
			msg.Role, _ = entry["role"].(string)
			msg.Content, _ = entry["content"].(string)
			if msg.Role == "" || msg.Content == "" {
				return nil, fmt.Errorf("params.messages entries need role and content")
			}
			messages = append(messages, msg)
		}
		if len(messages) == 0 {
			return nil, fmt.Errorf("params.messages is empty")
		}
		return messages, nil
	}

	prompt := step.ParamString("prompt")
	if prompt == "" {
		return nil, fmt.Errorf("params.messages or params.prompt is required")
	}
	var messages []plugins.LLMMessage
	if system := step.ParamString("system_prompt"); system != "" {
		messages = append(messages, plugins.LLMMessage{Role: "system", Content: system})
	}
	return append(messages, plugins.LLMMessage{Role: "user", Content: prompt}), nil
}
