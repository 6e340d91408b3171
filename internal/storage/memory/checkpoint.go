package memory

import (
	"context"
	"sync"

	"recipe_importer/internal/domain"
)

// CheckpointStore keeps checkpoints in process memory. Nothing survives a
// restart; it backs tests and dry runs.
type CheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[string]*domain.Checkpoint
}

func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{checkpoints: make(map[string]*domain.Checkpoint)}
}

func (s *CheckpointStore) Get(_ context.Context, sourceName string) (*domain.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[sourceName]
	if !ok {
		return nil, domain.ErrCheckpointNotFound
	}
	return cp.Clone(), nil
}

func (s *CheckpointStore) Save(_ context.Context, cp *domain.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkpoints[cp.SourceName] = cp.Clone()
	return nil
}

func (s *CheckpointStore) Close() error {
	return nil
}
