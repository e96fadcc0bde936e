package archive

import (
	"context"
	"sync"
	"time"

	"github.com/devdraft-ai/devdraft/internal/spec"
)

// MemoryStore is an in-memory [Store] used in tests and when no database is
// configured.
type MemoryStore struct {
	mu       sync.Mutex
	nextID   int64
	specs    []SpecRecord
	projects []ProjectRecord
	now      func() time.Time
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1, now: time.Now}
}

// SaveSpec archives a deep copy of the specification.
func (s *MemoryStore) SaveSpec(_ context.Context, sessionID string, sp *spec.ProjectSpec) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.specs = append(s.specs, SpecRecord{
		ID:         id,
		SessionID:  sessionID,
		Spec:       sp.Clone(),
		ArchivedAt: s.now(),
	})
	return id, nil
}

// SaveProject archives the generated project.
func (s *MemoryStore) SaveProject(_ context.Context, sessionID string, p *spec.GeneratedProject) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.projects = append(s.projects, ProjectRecord{
		ID:         id,
		SessionID:  sessionID,
		Project:    p,
		ArchivedAt: s.now(),
	})
	return id, nil
}

// LatestSpec returns the newest record for the session, or nil.
func (s *MemoryStore) LatestSpec(_ context.Context, sessionID string) (*SpecRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.specs) - 1; i >= 0; i-- {
		if s.specs[i].SessionID == sessionID {
			rec := s.specs[i]
			return &rec, nil
		}
	}
	return nil, nil
}

// ListSpecs returns up to limit records for the session, newest first.
func (s *MemoryStore) ListSpecs(_ context.Context, sessionID string, limit int) ([]SpecRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var records []SpecRecord
	for i := len(s.specs) - 1; i >= 0 && len(records) < limit; i-- {
		if s.specs[i].SessionID == sessionID {
			records = append(records, s.specs[i])
		}
	}
	return records, nil
}
