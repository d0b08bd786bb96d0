package main

import (
	"fmt"
	"time"

	"github.com/agentrun/agentrun/internal/common/config"
	"github.com/agentrun/agentrun/internal/common/logger"
	"github.com/agentrun/agentrun/internal/events/bus"
	historysvc "github.com/agentrun/agentrun/internal/history/service"
	"github.com/agentrun/agentrun/internal/plugins"
	"github.com/agentrun/agentrun/internal/plugins/telegram"
	"github.com/agentrun/agentrun/internal/scenario/executor"
	scenariosvc "github.com/agentrun/agentrun/internal/scenario/service"
	"github.com/agentrun/agentrun/internal/scenario/steps"
	schedulersvc "github.com/agentrun/agentrun/internal/scheduler/service"
)

// appServices bundles the long-lived services the HTTP layer sits on.
type appServices struct {
	Pauses    *executor.PauseStore
	Executor  *executor.Executor
	Scenario  *scenariosvc.Service
	Scheduler *schedulersvc.Service
	History   *historysvc.Service
	Telegram  *telegram.Client
}

// schedulerConfig fills in the dispatch endpoint: scheduled run_agent tasks
// loop back through this service's own HTTP API.
func schedulerConfig(cfg *config.Config) config.SchedulerConfig {
	schedCfg := cfg.Scheduler
	if schedCfg.ExecuteEndpoint == "" {
		port := cfg.Server.Port
		if port == 0 {
			port = 8080
		}
		schedCfg.ExecuteEndpoint = fmt.Sprintf("http://127.0.0.1:%d", port)
	}
	return schedCfg
}

func buildServices(cfg *config.Config, stores *storageSet, eventBus bus.EventBus, log *logger.Logger) *appServices {
	schedCfg := schedulerConfig(cfg)
	scheduler := schedulersvc.NewService(
		stores.Tasks,
		schedulersvc.NewDispatcher(schedCfg, log),
		eventBus,
		schedCfg,
		log,
	)

	caps, telegramClient := buildCapabilities(cfg, stores, scheduler, log)

	pauses := executor.NewPauseStore(log)
	registry := executor.NewRegistry(log)
	exec := executor.New(registry, caps, pauses, eventBus, log, executor.Options{
		MaxSteps:    cfg.Executor.MaxSteps,
		StepTimeout: time.Duration(cfg.Executor.StepTimeout) * time.Second,
	})
	steps.Register(registry, caps, log)

	scenario := scenariosvc.NewService(stores.Scenarios, exec, eventBus, log)
	history := historysvc.NewService(stores.History, log)
	scenario.SetRecorder(history)

	return &appServices{
		Pauses:    pauses,
		Executor:  exec,
		Scenario:  scenario,
		Scheduler: scheduler,
		History:   history,
		Telegram:  telegramClient,
	}
}

var _ plugins.TaskScheduler = (*schedulersvc.Service)(nil)
