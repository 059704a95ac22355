package version

import (
	"context"
	"sync"
)

// MemoryStore is the in-process Store used in tests and for ephemeral
// deployments. It owns its records outright: snapshots are deep-copied on
// the way in and out, so callers can never alias stored history.
type MemoryStore struct {
	mu       sync.RWMutex
	lineages map[string][]WorkflowVersion
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{lineages: make(map[string][]WorkflowVersion)}
}

func (s *MemoryStore) ListVersions(_ context.Context, workflowID string) ([]WorkflowVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lineage := s.lineages[workflowID]
	out := make([]WorkflowVersion, len(lineage))
	for i, v := range lineage {
		out[i] = copyVersion(v)
	}
	return out, nil
}

func (s *MemoryStore) GetVersion(_ context.Context, workflowID string, number int) (WorkflowVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.lineages[workflowID] {
		if v.Version == number {
			return copyVersion(v), nil
		}
	}
	return WorkflowVersion{}, ErrVersionNotFound
}

func (s *MemoryStore) ActiveVersion(_ context.Context, workflowID string) (WorkflowVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.lineages[workflowID] {
		if v.IsActive {
			return copyVersion(v), nil
		}
	}
	return WorkflowVersion{}, ErrVersionNotFound
}

func (s *MemoryStore) AppendVersion(_ context.Context, v WorkflowVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lineage := s.lineages[v.WorkflowID]
	for i := range lineage {
		lineage[i].IsActive = false
	}
	s.lineages[v.WorkflowID] = append(lineage, copyVersion(v))
	return nil
}

func (s *MemoryStore) DeleteVersion(_ context.Context, workflowID string, number int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lineage := s.lineages[workflowID]
	for i, v := range lineage {
		if v.Version != number {
			continue
		}
		s.lineages[workflowID] = append(lineage[:i:i], lineage[i+1:]...)
		return nil
	}
	return ErrVersionNotFound
}

func (s *MemoryStore) SetActive(_ context.Context, workflowID string, number int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lineage := s.lineages[workflowID]
	found := false
	for i := range lineage {
		lineage[i].IsActive = lineage[i].Version == number
		if lineage[i].IsActive {
			found = true
		}
	}
	if !found {
		return ErrVersionNotFound
	}
	return nil
}

func copyVersion(v WorkflowVersion) WorkflowVersion {
	v.Definition = v.Definition.Clone()
	if v.ParentVersion != nil {
		parent := *v.ParentVersion
		v.ParentVersion = &parent
	}
	return v
}
