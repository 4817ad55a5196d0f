package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/agentsocial/agentsocial/internal/common/errors"
	v1 "github.com/agentsocial/agentsocial/pkg/api/v1"
)

// MemoryStore provides in-memory command history storage.
type MemoryStore struct {
	records       map[string]*v1.CommandRecord
	byCorrelation map[string]string
	mu            sync.RWMutex
}

// Ensure MemoryStore implements Store interface
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory command store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:       make(map[string]*v1.CommandRecord),
		byCorrelation: make(map[string]string),
	}
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// Create persists a new command record.
func (s *MemoryStore) Create(ctx context.Context, rec *v1.CommandRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	stored := *rec
	s.records[rec.ID] = &stored
	if rec.CorrelationID != "" {
		s.byCorrelation[rec.CorrelationID] = rec.ID
	}
	return nil
}

// Get retrieves a record by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*v1.CommandRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, apperrors.NotFound("command", id)
	}
	out := *rec
	return &out, nil
}

// GetByCorrelation retrieves a record by correlation ID.
func (s *MemoryStore) GetByCorrelation(ctx context.Context, correlationID string) (*v1.CommandRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byCorrelation[correlationID]
	if !ok {
		return nil, apperrors.NotFound("command", correlationID)
	}
	out := *s.records[id]
	return &out, nil
}

// Update persists changes to an existing record.
func (s *MemoryStore) Update(ctx context.Context, rec *v1.CommandRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[rec.ID]
	if !ok {
		return apperrors.NotFound("command", rec.ID)
	}
	rec.CreatedAt = existing.CreatedAt
	rec.UpdatedAt = time.Now().UTC()

	stored := *rec
	s.records[rec.ID] = &stored
	return nil
}

// ListRecent returns the most recently updated records, newest first.
func (s *MemoryStore) ListRecent(ctx context.Context, limit int) ([]*v1.CommandRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(limit, func(*v1.CommandRecord) bool { return true }), nil
}

// ListByChat returns a conversation's records, newest first.
func (s *MemoryStore) ListByChat(ctx context.Context, appID, chatID string, limit int) ([]*v1.CommandRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(limit, func(r *v1.CommandRecord) bool {
		return r.AppID == appID && r.ChatID == chatID
	}), nil
}

func (s *MemoryStore) collect(limit int, match func(*v1.CommandRecord) bool) []*v1.CommandRecord {
	result := make([]*v1.CommandRecord, 0)
	for _, rec := range s.records {
		if match(rec) {
			out := *rec
			result = append(result, &out)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}
