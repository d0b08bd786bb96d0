package steps

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/agentrun/agentrun/internal/plugins"
	"github.com/agentrun/agentrun/internal/scenario/executor"
	"github.com/agentrun/agentrun/internal/scenario/models"
)

// handleTelegramSendMessage delivers a message with an optional inline
// keyboard and records the sent message id in context so a following input
// step can match the callback back to this execution.
func (s *Set) handleTelegramSendMessage(ctx context.Context, step *models.Step, execCtx map[string]any) executor.Outcome {
	if s.caps == nil || s.caps.Messenger == nil {
		return missingCapability(step, "messenger")
	}
	text := step.ParamString("text")
	if text == "" {
		return executor.Fail(fmt.Errorf("step %q: params.text is required", step.ID))
	}
	chatID := step.Params["chat_id"]
	if chatID == nil {
		chatID = execCtx[models.KeyTelegramChatID]
	}
	if chatID == nil {
		return executor.Fail(fmt.Errorf("step %q: no chat_id in params or context", step.ID))
	}

	buttons, err := parseKeyboard(step.Params["inline_keyboard"])
	if err != nil {
		return executor.Fail(fmt.Errorf("step %q: %w", step.ID, err))
	}

	sent, err := s.caps.Messenger.SendMessage(ctx, chatID, text, buttons)
	if err != nil {
		return executor.Fail(fmt.Errorf("step %q: send message: %w", step.ID, err))
	}
	s.logger.Debug("Telegram message sent",
		zap.String("step_id", step.ID),
		zap.Int64("message_id", sent.MessageID))

	execCtx[models.KeyLastMessageID] = sent.MessageID
	execCtx[models.KeyMessageWithButtons] = sent.MessageID
	return executor.Bind(map[string]any{
		"message_id": sent.MessageID,
		"chat_id":    sent.ChatID,
	})
}

// handleTelegramEditMessage edits a previously sent message. The target
// message id defaults to the last message sent with buttons.
func (s *Set) handleTelegramEditMessage(ctx context.Context, step *models.Step, execCtx map[string]any) executor.Outcome {
	if s.caps == nil || s.caps.Messenger == nil {
		return missingCapability(step, "messenger")
	}
	text := step.ParamString("text")
	if text == "" {
		return executor.Fail(fmt.Errorf("step %q: params.text is required", step.ID))
	}
	chatID := step.Params["chat_id"]
	if chatID == nil {
		chatID = execCtx[models.KeyTelegramChatID]
	}
	messageID := step.Params["message_id"]
	if messageID == nil {
		messageID = execCtx[models.KeyMessageWithButtons]
	}
	if chatID == nil || messageID == nil {
		return executor.Fail(fmt.Errorf("step %q: chat_id and message_id are required to edit", step.ID))
	}

	buttons, err := parseKeyboard(step.Params["inline_keyboard"])
	if err != nil {
		return executor.Fail(fmt.Errorf("step %q: %w", step.ID, err))
	}

	sent, err := s.caps.Messenger.EditMessage(ctx, chatID, messageID, text, buttons)
	if err != nil {
		return executor.Fail(fmt.Errorf("step %q: edit message: %w", step.ID, err))
	}
	return executor.Bind(map[string]any{
		"message_id": sent.MessageID,
		"chat_id":    sent.ChatID,
	})
}

// parseKeyboard converts params.inline_keyboard (a list of button rows, each
// row a list of {text, callback_data, url} mappings) into typed rows.
func parseKeyboard(raw any) ([][]plugins.InlineButton, error) {
	if raw == nil {
		return nil, nil
	}
	rows, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("inline_keyboard must be a list of rows")
	}
	keyboard := make([][]plugins.InlineButton, 0, len(rows))
	for _, rawRow := range rows {
		cells, ok := rawRow.([]any)
		if !ok {
			return nil, fmt.Errorf("inline_keyboard row must be a list of buttons")
		}
		row := make([]plugins.InlineButton, 0, len(cells))
		for _, rawCell := range cells {
			cell, ok := rawCell.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("inline_keyboard button must be a mapping")
			}
			button := plugins.InlineButton{}
			button.Text, _ = cell["text"].(string)
			button.CallbackData, _ = cell["callback_data"].(string)
			button.URL, _ = cell["url"].(string)
			if button.Text == "" {
				return nil, fmt.Errorf("inline_keyboard button text is required")
			}
			row = append(row, button)
		}
		keyboard = append(keyboard, row)
	}
	return keyboard, nil
}
