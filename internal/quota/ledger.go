// Package quota はアイデンティティごとの利用カウンタと階層上限の管理を提供する。
package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/textcheck/internal/model"
	"github.com/hitoshi/textcheck/internal/repository"
)

// DefaultFreeLimit は無料階層の生涯利用上限のデフォルト値。
const DefaultFreeLimit = 10

// UsageReport は利用状況のスナップショットを表す。
type UsageReport struct {
	UsageCount int
	// Remaining は無料枠の残り回数。プレミアム階層の場合は-1（無制限）。
	Remaining int
	Tier      model.Tier
}

// Ledger はアイデンティティごとの利用枠を管理する。
// 確認とカウンタ加算のアトミック性はリポジトリのReserveUsageに委譲する。
type Ledger struct {
	repo      repository.IdentityRepository
	freeLimit int
}

// NewLedger はLedgerを生成する。
// freeLimitが0以下の場合はDefaultFreeLimitを使用する。
func NewLedger(repo repository.IdentityRepository, freeLimit int) *Ledger {
	if freeLimit <= 0 {
		freeLimit = DefaultFreeLimit
	}
	return &Ledger{
		repo:      repo,
		freeLimit: freeLimit,
	}
}

// FreeLimit は無料階層の利用上限を返す。
func (l *Ledger) FreeLimit() int {
	return l.freeLimit
}

// CheckAndReserve は利用枠を確認し、許可する場合はカウンタを加算する。
// 確認と加算は単一のアトミック操作として実行される。
// 無料階層で上限に達している場合はmodel.ErrQuotaExceededを返す。
func (l *Ledger) CheckAndReserve(ctx context.Context, identityID string) (*model.Identity, error) {
	identity, err := l.repo.ReserveUsage(ctx, identityID, l.freeLimit)
	if err != nil {
		if errors.Is(err, model.ErrQuotaExceeded) {
			slog.Warn("free tier quota exceeded",
				slog.String("identity_id", identityID),
				slog.Int("free_limit", l.freeLimit),
			)
			return nil, model.ErrQuotaExceeded
		}
		return nil, fmt.Errorf("failed to reserve usage: %w", err)
	}

	return identity, nil
}

// Report は利用状況を返す。純粋な読み取りでカウンタは変更しない。
func (l *Ledger) Report(ctx context.Context, identityID string) (*UsageReport, error) {
	identity, err := l.repo.FindByID(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}
	if identity == nil {
		return nil, model.ErrNotFound
	}

	report := &UsageReport{
		UsageCount: identity.UsageCount,
		Tier:       identity.Tier,
	}
	if identity.IsPremium() {
		report.Remaining = -1
	} else {
		remaining := l.freeLimit - identity.UsageCount
		if remaining < 0 {
			remaining = 0
		}
		report.Remaining = remaining
	}

	return report, nil
}

// Upgrade は階層をプレミアムに更新する。
// 既にプレミアムのアイデンティティに対しては何もしない（冪等）。
func (l *Ledger) Upgrade(ctx context.Context, identityID string) error {
	if err := l.repo.SetPremium(ctx, identityID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.ErrNotFound
		}
		return fmt.Errorf("failed to upgrade identity: %w", err)
	}

	slog.Info("identity upgraded to premium",
		slog.String("identity_id", identityID),
	)
	return nil
}
