package repository

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/textcheck/internal/model"
)

// MemoryIdentityRepo はミューテックスで保護されたインメモリのアイデンティティリポジトリ。
// プロセス起動時に1回初期化し、プロセス終了まで保持する。
// ReserveUsageは単一ロック内で確認と加算を行うため、アイデンティティごとに線形化可能。
type MemoryIdentityRepo struct {
	mu         sync.Mutex
	byID       map[string]*model.Identity
	byUsername map[string]string // username -> id
}

// NewMemoryIdentityRepo はMemoryIdentityRepoを生成する。
func NewMemoryIdentityRepo() *MemoryIdentityRepo {
	return &MemoryIdentityRepo{
		byID:       make(map[string]*model.Identity),
		byUsername: make(map[string]string),
	}
}

// Create はアイデンティティを新規作成する。
// ユーザー名が登録済みの場合はmodel.ErrDuplicateUsernameを返す。
func (r *MemoryIdentityRepo) Create(ctx context.Context, identity *model.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byUsername[identity.Username]; exists {
		return model.ErrDuplicateUsername
	}

	stored := cloneIdentity(identity)
	r.byID[stored.ID] = stored
	r.byUsername[stored.Username] = stored.ID
	return nil
}

// FindByID は指定IDのアイデンティティを取得する。見つからない場合はnilを返す。
func (r *MemoryIdentityRepo) FindByID(ctx context.Context, id string) (*model.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return cloneIdentity(identity), nil
}

// FindByUsername は指定ユーザー名のアイデンティティを取得する。見つからない場合はnilを返す。
func (r *MemoryIdentityRepo) FindByUsername(ctx context.Context, username string) (*model.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byUsername[username]
	if !ok {
		return nil, nil
	}
	return cloneIdentity(r.byID[id]), nil
}

// ReserveUsage は利用枠の確認とカウンタ加算を単一のクリティカルセクションで実行する。
// 2つの並行リクエストが同じ残枠を観測して両方許可されることはない。
func (r *MemoryIdentityRepo) ReserveUsage(ctx context.Context, id string, freeLimit int) (*model.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.byID[id]
	if !ok {
		return nil, model.ErrNotFound
	}

	if identity.Tier != model.TierPremium && identity.UsageCount >= freeLimit {
		return nil, model.ErrQuotaExceeded
	}

	identity.UsageCount++
	return cloneIdentity(identity), nil
}

// SetPremium は階層をプレミアムに更新する。冪等。
func (r *MemoryIdentityRepo) SetPremium(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.byID[id]
	if !ok {
		return model.ErrNotFound
	}
	identity.Tier = model.TierPremium
	return nil
}

// UpdateLastAuth は最終認証日時を更新する。
func (r *MemoryIdentityRepo) UpdateLastAuth(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.byID[id]
	if !ok {
		return model.ErrNotFound
	}
	t := at
	identity.LastAuthAt = &t
	return nil
}

// cloneIdentity は内部状態のエイリアスを防ぐためコピーを返す。
func cloneIdentity(identity *model.Identity) *model.Identity {
	c := *identity
	if identity.LastAuthAt != nil {
		t := *identity.LastAuthAt
		c.LastAuthAt = &t
	}
	return &c
}

// compile-time interface check
var _ IdentityRepository = (*MemoryIdentityRepo)(nil)
