package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/marba/synapse/internal/models"
)

// MemoryStore is an in-process Store used in tests and when Redis is not configured.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]models.EnrichmentRecord
	now  Clock
}

func NewMemoryStore(now Clock) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		data: make(map[string]models.EnrichmentRecord),
		now:  now,
	}
}

func (m *MemoryStore) Get(ctx context.Context, brandID, section string) (*models.EnrichmentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.data[brandID+"\x00"+section]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (m *MemoryStore) Put(ctx context.Context, brandID, section string, data json.RawMessage, ttl time.Duration) (*models.EnrichmentRecord, error) {
	rec, err := newRecord(brandID, section, data, ttl, m.now())
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.data[brandID+"\x00"+section] = *rec
	m.mu.Unlock()

	return rec, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
