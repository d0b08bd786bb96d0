package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentrun/agentrun/internal/common/logger"
	"github.com/agentrun/agentrun/internal/scenario/engine"
	"github.com/agentrun/agentrun/internal/scenario/models"
)

// PausedRecord holds everything needed to resume a suspended execution.
type PausedRecord struct {
	InstanceID string          `json:"instance_id"`
	AgentID    string          `json:"agent_id,omitempty"`
	Scenario   *models.Scenario `json:"scenario"`
	Snapshot   engine.Snapshot `json:"snapshot"`
	CreatedAt  time.Time       `json:"created_at"`
}

// PauseStore keeps the waiting and paused tables for suspended executions.
// Both tables are shared process-wide and keyed by instance id.
type PauseStore struct {
	mu      sync.Mutex
	waiting map[string]models.WaitingRecord
	paused  map[string]PausedRecord
	logger  *logger.Logger
}

// NewPauseStore creates empty waiting/paused tables.
func NewPauseStore(log *logger.Logger) *PauseStore {
	return &PauseStore{
		waiting: make(map[string]models.WaitingRecord),
		paused:  make(map[string]PausedRecord),
		logger:  log,
	}
}

// PutWaiting registers the waiting record for an input step about to pause.
func (s *PauseStore) PutWaiting(rec models.WaitingRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waiting[rec.InstanceID] = rec
}

// PutPaused persists the paused machine state for an instance.
func (s *PauseStore) PutPaused(rec PausedRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused[rec.InstanceID] = rec
}

// Peek returns the records for an instance without consuming them.
func (s *PauseStore) Peek(instanceID string) (PausedRecord, models.WaitingRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	paused, ok := s.paused[instanceID]
	if !ok {
		return PausedRecord{}, models.WaitingRecord{}, false
	}
	return paused, s.waiting[instanceID], true
}

// Take removes and returns the records for an instance. A second Take for the
// same instance reports false, which makes resumes idempotent.
func (s *PauseStore) Take(instanceID string) (PausedRecord, models.WaitingRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	paused, ok := s.paused[instanceID]
	if !ok {
		return PausedRecord{}, models.WaitingRecord{}, false
	}
	waiting := s.waiting[instanceID]
	delete(s.paused, instanceID)
	delete(s.waiting, instanceID)
	return paused, waiting, true
}

// FindWaitingByMessage locates the waiting record matching a chat and message
// id, for routing messenger callbacks back to their instance.
func (s *PauseStore) FindWaitingByMessage(chatID, messageID any) (models.WaitingRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := fmt.Sprintf("%v:%v", chatID, messageID)
	for _, rec := range s.waiting {
		if fmt.Sprintf("%v:%v", rec.ChatID, rec.MessageID) == want {
			return rec, true
		}
	}
	return models.WaitingRecord{}, false
}

// Counts returns the current table sizes, for the status endpoint.
func (s *PauseStore) Counts() (waiting, paused int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waiting), len(s.paused)
}

// Sweep drops records older than ttl and returns how many were removed.
func (s *PauseStore) Sweep(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-ttl)
	removed := 0
	for id, rec := range s.paused {
		if rec.CreatedAt.Before(cutoff) {
			delete(s.paused, id)
			delete(s.waiting, id)
			removed++
		}
	}
	for id, rec := range s.waiting {
		if _, stillPaused := s.paused[id]; !stillPaused && rec.Timestamp.Before(cutoff) {
			delete(s.waiting, id)
			removed++
		}
	}
	return removed
}

// RunSweeper sweeps expired records every interval until ctx is cancelled.
func (s *PauseStore) RunSweeper(ctx context.Context, interval, ttl time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if removed := s.Sweep(ttl); removed > 0 {
				s.logger.Info("Swept expired paused scenarios",
					zap.Int("removed", removed),
					zap.Duration("ttl", ttl))
			}
		}
	}
}
