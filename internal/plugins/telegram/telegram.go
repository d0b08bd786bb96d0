// Package telegram implements the messenger capability on the Telegram Bot
// API. One client holds the bot token and is shared across all scenario
// instances; it is safe for concurrent use.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/agentrun/agentrun/internal/common/config"
	"github.com/agentrun/agentrun/internal/common/logger"
	"github.com/agentrun/agentrun/internal/plugins"
)

const (
	defaultAPIBase = "https://api.telegram.org"
	defaultTimeout = 30 * time.Second
)

// Client talks to the Telegram Bot API.
type Client struct {
	token      string
	apiBase    string
	httpClient *http.Client
	logger     *logger.Logger
}

// New creates a bot client from configuration.
func New(cfg config.TelegramConfig, log *logger.Logger) (*Client, error) {
	if cfg.BotToken == "" {
		return nil, errors.New("telegram: bot token is required")
	}
	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	return &Client{
		token:      cfg.BotToken,
		apiBase:    apiBase,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}, nil
}

// apiResponse is the Bot API envelope.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

type messageResult struct {
	MessageID int64 `json:"message_id"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
}

type replyMarkup struct {
	InlineKeyboard [][]plugins.InlineButton `json:"inline_keyboard"`
}

// SendMessage delivers a text message, optionally with an inline keyboard.
func (c *Client) SendMessage(ctx context.Context, chatID any, text string, buttons [][]plugins.InlineButton) (*plugins.SentMessage, error) {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if len(buttons) > 0 {
		payload["reply_markup"] = replyMarkup{InlineKeyboard: buttons}
	}
	return c.sendMessageCall(ctx, "sendMessage", payload)
}

// EditMessage rewrites the text (and keyboard) of a previously sent message.
func (c *Client) EditMessage(ctx context.Context, chatID any, messageID any, text string, buttons [][]plugins.InlineButton) (*plugins.SentMessage, error) {
	payload := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
	}
	if len(buttons) > 0 {
		payload["reply_markup"] = replyMarkup{InlineKeyboard: buttons}
	}
	return c.sendMessageCall(ctx, "editMessageText", payload)
}

// AnswerCallbackQuery acknowledges a pressed inline button so the client
// stops showing a spinner.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackQueryID string) error {
	_, err := c.call(ctx, "answerCallbackQuery", map[string]any{
		"callback_query_id": callbackQueryID,
	})
	return err
}

func (c *Client) sendMessageCall(ctx context.Context, method string, payload map[string]any) (*plugins.SentMessage, error) {
	raw, err := c.call(ctx, method, payload)
	if err != nil {
		return nil, err
	}
	var result messageResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("telegram: decode %s result: %w", method, err)
	}
	c.logger.Debug("Telegram message delivered",
		zap.String("method", method),
		zap.Int64("chat_id", result.Chat.ID),
		zap.Int64("message_id", result.MessageID))
	return &plugins.SentMessage{MessageID: result.MessageID, ChatID: result.Chat.ID}, nil
}

func (c *Client) call(ctx context.Context, method string, payload map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("telegram: marshal %s payload: %w", method, err)
	}
	url := fmt.Sprintf("%s/bot%s/%s", c.apiBase, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("telegram: build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: %s request: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("telegram: read %s response: %w", method, err)
	}
	var envelope apiResponse
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("telegram: decode %s response (status %d): %w", method, resp.StatusCode, err)
	}
	if !envelope.OK {
		return nil, fmt.Errorf("telegram: %s failed: %s", method, envelope.Description)
	}
	return envelope.Result, nil
}
