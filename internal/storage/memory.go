package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dharsanguruparan/ClassBuddy/internal/model"
)

// MemoryStore keeps records in a map guarded by an RWMutex. It backs tests
// and dry runs; nothing survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*model.ProcessingRecord
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*model.ProcessingRecord),
	}
}

// Put inserts or replaces a record.
func (m *MemoryStore) Put(_ context.Context, rec *model.ProcessingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.UpdatedAt = time.Now().UTC()
	m.records[rec.ItemID] = rec.Clone()
	return nil
}

// Get returns a record copy so callers cannot mutate internal state.
func (m *MemoryStore) Get(_ context.Context, itemID string) (*model.ProcessingRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[itemID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// AllIncomplete returns pending and partial records ordered by ItemID.
func (m *MemoryStore) AllIncomplete(ctx context.Context) ([]model.ProcessingRecord, error) {
	return m.List(ctx, Filter{Statuses: []model.Status{model.StatusPending, model.StatusPartial}})
}

// List returns the records matching filter ordered by ItemID.
func (m *MemoryStore) List(_ context.Context, filter Filter) ([]model.ProcessingRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.ProcessingRecord, 0, len(m.records))
	for _, rec := range m.records {
		if filter.CourseID != "" && rec.CourseID != filter.CourseID {
			continue
		}
		if len(filter.Statuses) > 0 && !hasStatus(filter.Statuses, rec.Status) {
			continue
		}
		out = append(out, *rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

func hasStatus(statuses []model.Status, s model.Status) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}
