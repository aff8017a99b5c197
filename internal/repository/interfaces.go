// Package repository はデータ永続化のインターフェースと実装を提供する。
// DATABASE_URLが設定されている場合はPostgreSQL実装を、
// 未設定の場合はミューテックスで保護されたインメモリ実装を使用する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/textcheck/internal/model"
)

// IdentityRepository はアイデンティティの永続化インターフェース。
type IdentityRepository interface {
	// Create はアイデンティティを新規作成する。
	// ユーザー名が登録済みの場合はmodel.ErrDuplicateUsernameを返す。
	Create(ctx context.Context, identity *model.Identity) error

	// FindByID は指定IDのアイデンティティを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Identity, error)

	// FindByUsername は指定ユーザー名のアイデンティティを取得する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.Identity, error)

	// ReserveUsage は利用枠の確認とカウンタ加算を単一のアトミック操作として実行する。
	// 無料階層でusage_countがfreeLimitに達している場合はmodel.ErrQuotaExceededを返し、
	// カウンタは加算しない。プレミアム階層は常に許可し、レポート用にカウンタを加算する。
	// アイデンティティが存在しない場合はmodel.ErrNotFoundを返す。
	// 成功時は加算後のアイデンティティを返す。
	ReserveUsage(ctx context.Context, id string, freeLimit int) (*model.Identity, error)

	// SetPremium は階層をプレミアムに更新する。既にプレミアムの場合も成功として扱う。
	SetPremium(ctx context.Context, id string) error

	// UpdateLastAuth は最終認証日時を更新する。
	UpdateLastAuth(ctx context.Context, id string, at time.Time) error
}

// HistoryRepository はジョブ実行履歴の永続化インターフェース。
type HistoryRepository interface {
	// Append は履歴レコードを追加する。
	Append(ctx context.Context, entry *model.HistoryEntry) error

	// ListByIdentity は指定アイデンティティの履歴を新しい順に最大limit件返す。
	ListByIdentity(ctx context.Context, identityID string, limit int) ([]*model.HistoryEntry, error)
}
