package main

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap"

	"github.com/agentrun/agentrun/internal/common/config"
	"github.com/agentrun/agentrun/internal/common/logger"
	"github.com/agentrun/agentrun/internal/db"
	historyrepo "github.com/agentrun/agentrun/internal/history/repository"
	"github.com/agentrun/agentrun/internal/plugins/storage"
	scenariorepo "github.com/agentrun/agentrun/internal/scenario/repository"
	schedulerrepo "github.com/agentrun/agentrun/internal/scheduler/repository"
)

// storageSet bundles the persistence layers: MongoDB for scenario, agent and
// task documents, SQL for the execution history.
type storageSet struct {
	Mongo     *mongo.Client
	Scenarios *scenariorepo.Repository
	Tasks     *schedulerrepo.Repository
	Documents *storage.Store

	historyPool *db.Pool
	History     *historyrepo.Repository
}

func openStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) (*storageSet, error) {
	mongoClient, err := storage.Connect(ctx, cfg.Mongo)
	if err != nil {
		return nil, err
	}
	log.Info("Connected to MongoDB", zap.String("database", cfg.Mongo.Database))

	historyPool, err := db.Open(cfg.History)
	if err != nil {
		disconnect(ctx, mongoClient, log)
		return nil, err
	}
	historyRepo, err := historyrepo.New(historyPool)
	if err != nil {
		_ = historyPool.Close()
		disconnect(ctx, mongoClient, log)
		return nil, err
	}
	log.Info("Execution history store initialized", zap.String("driver", cfg.History.Driver))

	return &storageSet{
		Mongo:       mongoClient,
		Scenarios:   scenariorepo.New(mongoClient, cfg.Mongo.Database),
		Tasks:       schedulerrepo.New(mongoClient, cfg.Mongo.Database),
		Documents:   storage.New(mongoClient, cfg.Mongo.Database, 0),
		historyPool: historyPool,
		History:     historyRepo,
	}, nil
}

func (s *storageSet) Close(ctx context.Context, log *logger.Logger) {
	if err := s.historyPool.Close(); err != nil {
		log.Error("Failed to close history database", zap.Error(err))
	}
	disconnect(ctx, s.Mongo, log)
}

func disconnect(ctx context.Context, client *mongo.Client, log *logger.Logger) {
	if err := client.Disconnect(ctx); err != nil {
		log.Error("Failed to disconnect from MongoDB", zap.Error(err))
	}
}
