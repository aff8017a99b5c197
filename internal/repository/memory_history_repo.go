package repository

import (
	"context"
	"sync"

	"github.com/hitoshi/textcheck/internal/model"
)

// MemoryHistoryRepo はミューテックスで保護されたインメモリの履歴リポジトリ。
type MemoryHistoryRepo struct {
	mu      sync.Mutex
	entries map[string][]*model.HistoryEntry // identityID -> 追加順
}

// NewMemoryHistoryRepo はMemoryHistoryRepoを生成する。
func NewMemoryHistoryRepo() *MemoryHistoryRepo {
	return &MemoryHistoryRepo{
		entries: make(map[string][]*model.HistoryEntry),
	}
}

// Append は履歴レコードを追加する。
func (r *MemoryHistoryRepo) Append(ctx context.Context, entry *model.HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *entry
	r.entries[entry.IdentityID] = append(r.entries[entry.IdentityID], &c)
	return nil
}

// ListByIdentity は指定アイデンティティの履歴を新しい順に最大limit件返す。
func (r *MemoryHistoryRepo) ListByIdentity(ctx context.Context, identityID string, limit int) ([]*model.HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := r.entries[identityID]
	result := make([]*model.HistoryEntry, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		c := *stored[i]
		result = append(result, &c)
	}
	return result, nil
}

// compile-time interface check
var _ HistoryRepository = (*MemoryHistoryRepo)(nil)
