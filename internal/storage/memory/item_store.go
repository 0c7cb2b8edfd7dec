package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/truthscan/feedd/internal/ingest"
)

// ItemStore keeps items in memory, enforcing content-hash uniqueness the way
// the Postgres constraint does.
type ItemStore struct {
	mu     sync.Mutex
	byID   map[string]ingest.Item
	byHash map[string]string
}

// NewItemStore constructs an empty ItemStore.
func NewItemStore() *ItemStore {
	return &ItemStore{
		byID:   make(map[string]ingest.Item),
		byHash: make(map[string]string),
	}
}

// CreateItem inserts an item, absorbing content-hash conflicts.
func (s *ItemStore) CreateItem(_ context.Context, item ingest.Item) error {
	if item.ID == "" {
		return fmt.Errorf("item id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byHash[item.ContentHash]; ok {
		return fmt.Errorf("content hash %s: %w", item.ContentHash, ingest.ErrDuplicateContent)
	}
	s.byID[item.ID] = item
	s.byHash[item.ContentHash] = item.ID
	return nil
}

// GetItem loads one item by id.
func (s *ItemStore) GetItem(_ context.Context, itemID string) (ingest.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.byID[itemID]
	if !ok {
		return ingest.Item{}, fmt.Errorf("item %s: %w", itemID, ingest.ErrNotFound)
	}
	return item, nil
}

// Len reports the number of stored items.
func (s *ItemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}
