package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentrun/agentrun/internal/common/config"
	"github.com/agentrun/agentrun/internal/common/logger"
	"github.com/agentrun/agentrun/internal/scheduler/models"
)

const defaultDispatchTimeout = 30 * time.Second

// Dispatcher fires task actions over HTTP. Dispatch happens against the
// service's own API so scheduled runs take the same path as external callers.
type Dispatcher struct {
	executeEndpoint string
	notifyEndpoint  string
	httpClient      *http.Client
	logger          *logger.Logger
}

// NewDispatcher creates a dispatcher from scheduler configuration.
func NewDispatcher(cfg config.SchedulerConfig, log *logger.Logger) *Dispatcher {
	timeout := defaultDispatchTimeout
	if cfg.DispatchTimeout > 0 {
		timeout = time.Duration(cfg.DispatchTimeout) * time.Second
	}
	return &Dispatcher{
		executeEndpoint: strings.TrimRight(cfg.ExecuteEndpoint, "/"),
		notifyEndpoint:  strings.TrimRight(cfg.NotifyEndpoint, "/"),
		httpClient:      &http.Client{Timeout: timeout},
		logger:          log.WithFields(zap.String("component", "task-dispatcher")),
	}
}

// Dispatch fires one task action.
func (d *Dispatcher) Dispatch(ctx context.Context, task *models.Task) error {
	switch task.ActionType {
	case models.ActionRunAgent:
		return d.runAgent(ctx, task)
	case models.ActionSendNotification:
		return d.sendNotification(ctx, task)
	case models.ActionAPICall:
		return d.apiCall(ctx, task)
	default:
		return fmt.Errorf("unknown action type %q", task.ActionType)
	}
}

// runAgent POSTs to the agent execute endpoint with the task's stored
// initial payload, merged with the owning user and chat so the scenario
// can address the chat that scheduled it. Explicit payload values win.
func (d *Dispatcher) runAgent(ctx context.Context, task *models.Task) error {
	agentID, _ := task.ActionConfig["agent_id"].(string)
	if agentID == "" {
		return fmt.Errorf("run_agent task %q needs action_config.agent_id", task.TaskID)
	}

	callerCtx := map[string]any{}
	if payload, ok := task.ActionConfig["initial_payload"].(map[string]any); ok {
		if passed, ok := payload["context"].(map[string]any); ok {
			for key, value := range passed {
				callerCtx[key] = value
			}
		}
	}
	if task.UserID != "" {
		if _, ok := callerCtx["user_id"]; !ok {
			callerCtx["user_id"] = task.UserID
		}
	}
	if chatID, ok := task.ActionConfig["chat_id"]; ok {
		if _, present := callerCtx["chat_id"]; !present {
			callerCtx["chat_id"] = chatID
		}
	}

	body := map[string]any{}
	if len(callerCtx) > 0 {
		body["context"] = callerCtx
	}

	url := fmt.Sprintf("%s/api/v1/agent-actions/%s/execute", d.executeEndpoint, agentID)
	return d.post(ctx, url, body)
}

// sendNotification POSTs chat_id and text to the configured messaging
// endpoint.
func (d *Dispatcher) sendNotification(ctx context.Context, task *models.Task) error {
	if d.notifyEndpoint == "" {
		return fmt.Errorf("send_notification task %q: no notify endpoint configured", task.TaskID)
	}
	body := map[string]any{
		"chat_id": task.ActionConfig["chat_id"],
		"text":    task.ActionConfig["text"],
	}
	return d.post(ctx, d.notifyEndpoint, body)
}

// apiCall fires an arbitrary HTTP request described by the action config.
func (d *Dispatcher) apiCall(ctx context.Context, task *models.Task) error {
	url, _ := task.ActionConfig["url"].(string)
	if url == "" {
		return fmt.Errorf("api_call task %q needs action_config.url", task.TaskID)
	}
	method, _ := task.ActionConfig["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	var reader io.Reader
	if body, ok := task.ActionConfig["body"]; ok {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api_call task %q: marshal body: %w", task.TaskID, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), url, reader)
	if err != nil {
		return fmt.Errorf("api_call task %q: %w", task.TaskID, err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if headers, ok := task.ActionConfig["headers"].(map[string]any); ok {
		for key, value := range headers {
			if s, ok := value.(string); ok {
				req.Header.Set(key, s)
			}
		}
	}
	return d.do(req)
}

func (d *Dispatcher) post(ctx context.Context, url string, body map[string]any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal dispatch body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build dispatch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return d.do(req)
}

func (d *Dispatcher) do(req *http.Request) error {
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("dispatch to %s returned status %d: %s", req.URL, resp.StatusCode, data)
	}
	d.logger.Debug("dispatch delivered",
		zap.String("url", req.URL.String()),
		zap.Int("status", resp.StatusCode))
	return nil
}
