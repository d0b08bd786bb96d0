// Package plugins defines the capability contracts step handlers call into.
// Implementations live in subpackages; the executor receives them as a
// Registry of interfaces so scenarios stay testable against fakes.
package plugins

import (
	"context"

	"github.com/agentrun/agentrun/internal/scenario/models"
)

// InlineButton is one button of an inline keyboard row.
type InlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

// SentMessage is the messenger's acknowledgement of a delivered message.
type SentMessage struct {
	MessageID int64 `json:"message_id"`
	ChatID    int64 `json:"chat_id"`
}

// Messenger delivers and edits chat messages with optional inline keyboards.
type Messenger interface {
	SendMessage(ctx context.Context, chatID any, text string, buttons [][]InlineButton) (*SentMessage, error)
	EditMessage(ctx context.Context, chatID any, messageID any, text string, buttons [][]InlineButton) (*SentMessage, error)
}

// LLMMessage is one chat turn sent to a language model.
type LLMMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMRequest describes a single model invocation.
type LLMRequest struct {
	Messages    []LLMMessage `json:"messages"`
	Model       string       `json:"model,omitempty"`
	Temperature float64      `json:"temperature,omitempty"`
	MaxTokens   int64        `json:"max_tokens,omitempty"`
}

// LLMResponse mirrors what llm_query binds under its output_var.
type LLMResponse struct {
	Status   string `json:"status"`
	Response string `json:"response,omitempty"`
	Model    string `json:"model,omitempty"`
	Error    string `json:"error,omitempty"`
}

// LLMClient queries a language model provider.
type LLMClient interface {
	Query(ctx context.Context, req LLMRequest) (*LLMResponse, error)
}

// RAGResult is the retrieval response bound under a rag_search output_var.
type RAGResult struct {
	Status  string           `json:"status"`
	Results []map[string]any `json:"results,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// RAGClient searches a retrieval service.
type RAGClient interface {
	Search(ctx context.Context, query, collection string, topK int) (*RAGResult, error)
}

// DocumentStore exposes the document operations the mongo_* steps use.
// Returned documents have their ids stringified so they stay serializable in
// scenario context.
type DocumentStore interface {
	InsertOne(ctx context.Context, collection string, document map[string]any) (insertedID string, err error)
	FindOne(ctx context.Context, collection string, filter map[string]any) (map[string]any, error)
	UpdateOne(ctx context.Context, collection string, filter, update map[string]any) (modified int64, err error)
	DeleteOne(ctx context.Context, collection string, filter map[string]any) (deleted int64, err error)
}

// TaskSpec is the scheduler-facing description of a deferred scenario run.
type TaskSpec struct {
	Name          string         `json:"name"`
	TriggerType   string         `json:"trigger_type"`
	Datetime      string         `json:"datetime,omitempty"`
	MarginSeconds int            `json:"margin_seconds,omitempty"`
	ActionType    string         `json:"action_type"`
	ActionConfig  map[string]any `json:"action_config,omitempty"`
	UserID        string         `json:"user_id"`
	Enabled       bool           `json:"enabled"`
}

// TaskScheduler registers deferred tasks on behalf of schedule_scenario_run.
type TaskScheduler interface {
	AddTask(ctx context.Context, spec TaskSpec) (taskID string, err error)
}

// ScenarioRepository is the read surface execute_sub_scenario and the
// executor need from scenario storage.
type ScenarioRepository interface {
	GetScenarioByID(ctx context.Context, scenarioID string) (*models.Scenario, error)
	GetAgentByID(ctx context.Context, agentID string) (*models.Agent, error)
}

// Registry groups the capabilities available to one execution. Nil fields
// mean the capability is not configured; handlers report that as a step error.
type Registry struct {
	Messenger Messenger
	LLM       LLMClient
	RAG       RAGClient
	Store     DocumentStore
	Scheduler TaskScheduler
	Scenarios ScenarioRepository
}
