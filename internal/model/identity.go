// Package model はドメインモデルを定義する。
package model

import "time"

// Tier はアイデンティティのアクセス階層を表す。
// 階層によって利用回数の上限が決まる。
type Tier string

const (
	// TierFree は無料階層（生涯10回まで）。
	TierFree Tier = "free"
	// TierPremium は有料階層（無制限）。
	TierPremium Tier = "premium"
)

// Identity はサービス利用者を表す。
// UsageCountの更新はrepositoryのReserveUsage（QuotaLedger経由）のみが行い、
// Tierの更新はアップグレード操作のみが行う。
type Identity struct {
	ID             string
	Username       string
	Email          string
	CredentialHash string
	Tier           Tier
	UsageCount     int
	CreatedAt      time.Time
	LastAuthAt     *time.Time
}

// IsPremium は有料階層かどうかを返す。
func (i *Identity) IsPremium() bool {
	return i.Tier == TierPremium
}

// HistoryEntry はアイデンティティが実行したジョブの履歴レコードを表す。
type HistoryEntry struct {
	ID          string
	IdentityID  string
	Kind        JobKind
	Fingerprint string
	Excerpt     string
	CreatedAt   time.Time
}
