package main

import (
	"go.uber.org/zap"

	"github.com/agentrun/agentrun/internal/common/config"
	"github.com/agentrun/agentrun/internal/common/logger"
	"github.com/agentrun/agentrun/internal/plugins"
	"github.com/agentrun/agentrun/internal/plugins/llm"
	"github.com/agentrun/agentrun/internal/plugins/rag"
	"github.com/agentrun/agentrun/internal/plugins/telegram"
	schedulersvc "github.com/agentrun/agentrun/internal/scheduler/service"
)

// buildCapabilities assembles the plugin registry from configuration. A
// capability without credentials stays nil; the matching steps then fail
// with a step error instead of failing boot.
func buildCapabilities(cfg *config.Config, stores *storageSet, scheduler *schedulersvc.Service, log *logger.Logger) (*plugins.Registry, *telegram.Client) {
	caps := &plugins.Registry{
		Store:     stores.Documents,
		Scenarios: stores.Scenarios,
	}

	var telegramClient *telegram.Client
	if cfg.Telegram.BotToken != "" {
		client, err := telegram.New(cfg.Telegram, log)
		if err != nil {
			log.Warn("Telegram plugin disabled", zap.Error(err))
		} else {
			telegramClient = client
			caps.Messenger = client
			log.Info("Telegram plugin initialized")
		}
	} else {
		log.Info("Telegram plugin disabled (no bot token)")
	}

	if cfg.LLM.APIKey != "" {
		client, err := llm.New(cfg.LLM)
		if err != nil {
			log.Warn("LLM plugin disabled", zap.Error(err))
		} else {
			caps.LLM = client
			log.Info("LLM plugin initialized", zap.String("provider", cfg.LLM.Provider))
		}
	} else {
		log.Info("LLM plugin disabled (no api key)")
	}

	if cfg.RAG.URL != "" {
		client, err := rag.New(cfg.RAG)
		if err != nil {
			log.Warn("RAG plugin disabled", zap.Error(err))
		} else {
			caps.RAG = client
			log.Info("RAG plugin initialized", zap.String("url", cfg.RAG.URL))
		}
	} else {
		log.Info("RAG plugin disabled (no service url)")
	}

	if scheduler != nil {
		caps.Scheduler = scheduler
	}

	return caps, telegramClient
}
