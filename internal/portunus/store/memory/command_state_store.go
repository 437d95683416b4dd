package memory

import (
	"context"
	"sync"
)

type CommandStateStore struct {
	mu     sync.RWMutex
	lastID string
}

func NewCommandStateStore() *CommandStateStore {
	return &CommandStateStore{}
}

func (s *CommandStateStore) LastCommandID(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastID, nil
}

func (s *CommandStateStore) SetLastCommandID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastID = id
	return nil
}
