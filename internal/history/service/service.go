// Package service records execution results and serves history queries.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/agentrun/agentrun/internal/common/logger"
	"github.com/agentrun/agentrun/internal/history/models"
	scenmodels "github.com/agentrun/agentrun/internal/scenario/models"
)

// HistoryStore is the persistence surface the service needs.
type HistoryStore interface {
	Insert(ctx context.Context, record *models.Record) error
	GetByID(ctx context.Context, id int64) (*models.Record, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.Record, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service provides the execution-history operations.
type Service struct {
	store  HistoryStore
	logger *logger.Logger
}

// NewService creates a history service.
func NewService(store HistoryStore, log *logger.Logger) *Service {
	return &Service{
		store:  store,
		logger: log.WithFields(zap.String("component", "history-service")),
	}
}

// Record stores one execution result. Nil results are ignored.
func (s *Service) Record(ctx context.Context, result *scenmodels.ExecutionResult) error {
	if result == nil {
		return nil
	}
	record := &models.Record{
		InstanceID: result.InstanceID,
		ScenarioID: result.ScenarioID,
		AgentID:    result.AgentID,
		Status:     result.Status,
		Message:    result.Message,
		Error:      result.Error,
		Context:    result.Context,
	}
	if err := s.store.Insert(ctx, record); err != nil {
		s.logger.Error("failed to record execution",
			zap.String("instance_id", result.InstanceID),
			zap.String("status", result.Status),
			zap.Error(err))
		return err
	}
	return nil
}

// Get retrieves a single history record.
func (s *Service) Get(ctx context.Context, id int64) (*models.Record, error) {
	return s.store.GetByID(ctx, id)
}

// List returns history records matching the filter, newest first.
func (s *Service) List(ctx context.Context, filter models.ListFilter) ([]*models.Record, error) {
	return s.store.List(ctx, filter)
}

// Prune deletes records older than the retention window.
func (s *Service) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	deleted, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.logger.Info("pruned execution history",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff))
	}
	return deleted, nil
}
