package store

import (
	"context"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

type MemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string][]Artifact
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{artifacts: map[string][]Artifact{}}
}

func (s *MemoryStore) Commit(ctx context.Context, a Artifact) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	if err := a.validate(); err != nil {
		return Artifact{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a.Seq = int64(len(s.artifacts[a.BusinessID]) + 1)
	s.artifacts[a.BusinessID] = append(s.artifacts[a.BusinessID], a)
	return a, nil
}

func (s *MemoryStore) Latest(_ context.Context, businessID string) (Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.artifacts[businessID]
	if len(list) == 0 {
		return Artifact{}, ErrArtifactNotFound
	}
	return list[len(list)-1], nil
}

// Get returns the newest artifact carrying version.
func (s *MemoryStore) Get(_ context.Context, businessID, version string) (Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.artifacts[businessID]
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].Version == version {
			return list[i], nil
		}
	}
	return Artifact{}, ErrArtifactNotFound
}
