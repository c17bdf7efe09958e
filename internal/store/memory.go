package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/haasonsaas/easel/internal/history"
	"github.com/haasonsaas/easel/pkg/models"
)

// MemoryStore provides an in-memory Store for testing and local usage.
type MemoryStore struct {
	mu        sync.RWMutex
	documents map[string]*models.Document
	histories map[string][]byte
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents: map[string]*models.Document{},
		histories: map[string][]byte{},
	}
}

func (s *MemoryStore) List(_ context.Context) ([]models.DocumentInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	infos := make([]models.DocumentInfo, 0, len(s.documents))
	for _, doc := range s.documents {
		infos = append(infos, models.DocumentInfo{
			ID:         doc.ID,
			Name:       doc.Name,
			ModifiedAt: doc.ModifiedAt,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].ModifiedAt.Equal(infos[j].ModifiedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].ModifiedAt.After(infos[j].ModifiedAt)
	})
	return infos, nil
}

func (s *MemoryStore) Create(_ context.Context, doc *models.Document) error {
	if doc == nil || doc.ID == "" {
		return ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.documents[doc.ID]; exists {
		return ErrAlreadyExists
	}
	clone := doc.Clone()
	now := time.Now().UTC()
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = now
	}
	if clone.ModifiedAt.IsZero() {
		clone.ModifiedAt = clone.CreatedAt
	}
	doc.CreatedAt = clone.CreatedAt
	doc.ModifiedAt = clone.ModifiedAt
	s.documents[clone.ID] = clone
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return doc.Clone(), nil
}

func (s *MemoryStore) Put(_ context.Context, doc *models.Document) (time.Time, error) {
	if doc == nil || doc.ID == "" {
		return time.Time{}, ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := doc.Clone()
	if clone.ModifiedAt.IsZero() {
		clone.ModifiedAt = time.Now().UTC()
	}
	if existing, ok := s.documents[clone.ID]; ok && clone.CreatedAt.IsZero() {
		clone.CreatedAt = existing.CreatedAt
	} else if clone.CreatedAt.IsZero() {
		clone.CreatedAt = clone.ModifiedAt
	}
	s.documents[clone.ID] = clone
	return clone.ModifiedAt, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[id]; !ok {
		return ErrNotFound
	}
	delete(s.documents, id)
	delete(s.histories, id)
	return nil
}

func (s *MemoryStore) ModifiedAt(_ context.Context, id string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return time.Time{}, ErrNotFound
	}
	return doc.ModifiedAt, nil
}

func (s *MemoryStore) GetHistory(_ context.Context, id string) (*history.Stack, error) {
	s.mu.RLock()
	raw, ok := s.histories[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	stack, err := history.DecodeStack(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptHistory, err)
	}
	return stack, nil
}

func (s *MemoryStore) PutHistory(_ context.Context, id string, stack *history.Stack) error {
	if id == "" || stack == nil {
		return ErrNotFound
	}
	raw, err := stack.MarshalJSON()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[id]; !ok {
		return ErrNotFound
	}
	s.histories[id] = raw
	return nil
}
