package history

import (
	"context"
	"sort"
	"sync"

	"github.com/kapu/duochess/internal/domain"
)

// memrepo is an in-memory Repository used when no database is configured.
type memrepo struct {
	mu sync.RWMutex

	byGame map[string]*domain.HistoryRecord
	order  []*domain.HistoryRecord // append order, newest last
}

func NewMemoryRepository() Repository {
	return &memrepo{byGame: make(map[string]*domain.HistoryRecord)}
}

func (m *memrepo) Insert(ctx context.Context, rec *domain.HistoryRecord) error {
	if rec == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byGame[rec.GameID]; exists {
		return ErrDuplicateConclusion
	}
	cp := *rec
	m.byGame[rec.GameID] = &cp
	m.order = append(m.order, &cp)
	return nil
}

func (m *memrepo) Recent(ctx context.Context, limit int) ([]*domain.HistoryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := append([]*domain.HistoryRecord(nil), m.order...)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	out := make([]*domain.HistoryRecord, len(items))
	for i, it := range items {
		cp := *it
		out[i] = &cp
	}
	return out, nil
}
