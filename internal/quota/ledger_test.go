package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/hitoshi/textcheck/internal/model"
	"github.com/hitoshi/textcheck/internal/repository"
)

func newTestLedger(t *testing.T, freeLimit int, identities ...*model.Identity) (*Ledger, *repository.MemoryIdentityRepo) {
	t.Helper()
	repo := repository.NewMemoryIdentityRepo()
	for _, identity := range identities {
		if err := repo.Create(context.Background(), identity); err != nil {
			t.Fatalf("failed to seed identity: %v", err)
		}
	}
	return NewLedger(repo, freeLimit), repo
}

func TestCheckAndReserve_FreeTierWithinLimit(t *testing.T) {
	ledger, _ := newTestLedger(t, 10, &model.Identity{
		ID:       "id-1",
		Username: "alice",
		Tier:     model.TierFree,
	})

	// 上限ぴったりまでは全て許可される
	for i := 1; i <= 10; i++ {
		identity, err := ledger.CheckAndReserve(context.Background(), "id-1")
		if err != nil {
			t.Fatalf("CheckAndReserve() #%d error = %v", i, err)
		}
		if identity.UsageCount != i {
			t.Errorf("UsageCount after #%d = %d, want %d", i, identity.UsageCount, i)
		}
	}
}

func TestCheckAndReserve_FreeTierExceeded(t *testing.T) {
	ledger, _ := newTestLedger(t, 10, &model.Identity{
		ID:       "id-1",
		Username: "alice",
		Tier:     model.TierFree,
	})

	for i := 0; i < 10; i++ {
		if _, err := ledger.CheckAndReserve(context.Background(), "id-1"); err != nil {
			t.Fatalf("CheckAndReserve() #%d error = %v", i+1, err)
		}
	}

	// 11回目は拒否され、カウンタは加算されない
	_, err := ledger.CheckAndReserve(context.Background(), "id-1")
	if !errors.Is(err, model.ErrQuotaExceeded) {
		t.Fatalf("CheckAndReserve() #11 error = %v, want ErrQuotaExceeded", err)
	}

	report, err := ledger.Report(context.Background(), "id-1")
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if report.UsageCount != 10 {
		t.Errorf("UsageCount after rejection = %d, want 10 (rejected attempt must not increment)", report.UsageCount)
	}
}

func TestCheckAndReserve_PremiumUnlimited(t *testing.T) {
	ledger, _ := newTestLedger(t, 10, &model.Identity{
		ID:       "id-1",
		Username: "alice",
		Tier:     model.TierPremium,
	})

	// 上限を超えても全て許可される
	for i := 1; i <= 25; i++ {
		identity, err := ledger.CheckAndReserve(context.Background(), "id-1")
		if err != nil {
			t.Fatalf("CheckAndReserve() #%d error = %v", i, err)
		}
		// プレミアムもレポート用にカウンタは加算される
		if identity.UsageCount != i {
			t.Errorf("UsageCount after #%d = %d, want %d", i, identity.UsageCount, i)
		}
	}
}

func TestCheckAndReserve_UnknownIdentity(t *testing.T) {
	ledger, _ := newTestLedger(t, 10)

	_, err := ledger.CheckAndReserve(context.Background(), "unknown")
	if err == nil {
		t.Fatal("CheckAndReserve() on unknown identity error = nil, want error")
	}
}

func TestCheckAndReserve_ConcurrentNeverOverAdmits(t *testing.T) {
	ledger, _ := newTestLedger(t, 10, &model.Identity{
		ID:       "id-1",
		Username: "alice",
		Tier:     model.TierFree,
	})

	const attempts = 50
	var wg sync.WaitGroup
	admitted := make(chan struct{}, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.CheckAndReserve(context.Background(), "id-1"); err == nil {
				admitted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(admitted)

	count := 0
	for range admitted {
		count++
	}
	// 同じ残枠を2つのリクエストが観測して両方許可されることはない
	if count != 10 {
		t.Errorf("admitted = %d, want exactly 10", count)
	}
}

func TestReport_FreeTier(t *testing.T) {
	ledger, _ := newTestLedger(t, 10, &model.Identity{
		ID:       "id-1",
		Username: "alice",
		Tier:     model.TierFree,
	})

	for i := 0; i < 3; i++ {
		if _, err := ledger.CheckAndReserve(context.Background(), "id-1"); err != nil {
			t.Fatalf("CheckAndReserve() error = %v", err)
		}
	}

	report, err := ledger.Report(context.Background(), "id-1")
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if report.UsageCount != 3 {
		t.Errorf("UsageCount = %d, want 3", report.UsageCount)
	}
	if report.Remaining != 7 {
		t.Errorf("Remaining = %d, want 7", report.Remaining)
	}
	if report.Tier != model.TierFree {
		t.Errorf("Tier = %q, want %q", report.Tier, model.TierFree)
	}

	// Reportは純粋な読み取りでカウンタを変更しない
	report2, _ := ledger.Report(context.Background(), "id-1")
	if report2.UsageCount != 3 {
		t.Errorf("UsageCount after second Report = %d, want 3", report2.UsageCount)
	}
}

func TestReport_PremiumRemainingIsUnlimited(t *testing.T) {
	ledger, _ := newTestLedger(t, 10, &model.Identity{
		ID:       "id-1",
		Username: "alice",
		Tier:     model.TierPremium,
	})

	report, err := ledger.Report(context.Background(), "id-1")
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if report.Remaining != -1 {
		t.Errorf("Remaining = %d, want -1 (unlimited)", report.Remaining)
	}
}

func TestReport_UnknownIdentity(t *testing.T) {
	ledger, _ := newTestLedger(t, 10)

	_, err := ledger.Report(context.Background(), "unknown")
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Report() error = %v, want ErrNotFound", err)
	}
}

func TestUpgrade_AllowsFurtherUse(t *testing.T) {
	ledger, _ := newTestLedger(t, 10, &model.Identity{
		ID:       "id-1",
		Username: "alice",
		Tier:     model.TierFree,
	})

	for i := 0; i < 10; i++ {
		if _, err := ledger.CheckAndReserve(context.Background(), "id-1"); err != nil {
			t.Fatalf("CheckAndReserve() error = %v", err)
		}
	}
	if _, err := ledger.CheckAndReserve(context.Background(), "id-1"); !errors.Is(err, model.ErrQuotaExceeded) {
		t.Fatalf("CheckAndReserve() at limit error = %v, want ErrQuotaExceeded", err)
	}

	// 昇格後は即座に許可される。カウンタはリセットされない。
	if err := ledger.Upgrade(context.Background(), "id-1"); err != nil {
		t.Fatalf("Upgrade() error = %v", err)
	}

	identity, err := ledger.CheckAndReserve(context.Background(), "id-1")
	if err != nil {
		t.Fatalf("CheckAndReserve() after upgrade error = %v", err)
	}
	if identity.UsageCount != 11 {
		t.Errorf("UsageCount after upgrade = %d, want 11 (counter preserved)", identity.UsageCount)
	}
}

func TestUpgrade_Idempotent(t *testing.T) {
	ledger, _ := newTestLedger(t, 10, &model.Identity{
		ID:       "id-1",
		Username: "alice",
		Tier:     model.TierPremium,
	})

	if err := ledger.Upgrade(context.Background(), "id-1"); err != nil {
		t.Errorf("Upgrade() on premium identity error = %v, want nil", err)
	}
}

func TestUpgrade_UnknownIdentity(t *testing.T) {
	ledger, _ := newTestLedger(t, 10)

	if err := ledger.Upgrade(context.Background(), "unknown"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Upgrade() error = %v, want ErrNotFound", err)
	}
}

// wrappingIdentityRepo はセンチネルエラーをラップして返すリポジトリ。
// 将来の実装がエラーに文脈を付加してもセンチネル判定が壊れないことを検証する。
type wrappingIdentityRepo struct {
	repository.IdentityRepository
}

func (r *wrappingIdentityRepo) ReserveUsage(ctx context.Context, id string, freeLimit int) (*model.Identity, error) {
	identity, err := r.IdentityRepository.ReserveUsage(ctx, id, freeLimit)
	if err != nil {
		return nil, fmt.Errorf("reserve usage: %w", err)
	}
	return identity, nil
}

func (r *wrappingIdentityRepo) SetPremium(ctx context.Context, id string) error {
	if err := r.IdentityRepository.SetPremium(ctx, id); err != nil {
		return fmt.Errorf("set premium: %w", err)
	}
	return nil
}

func TestLedger_RecognizesWrappedSentinels(t *testing.T) {
	inner := repository.NewMemoryIdentityRepo()
	if err := inner.Create(context.Background(), &model.Identity{
		ID:         "id-1",
		Username:   "alice",
		Tier:       model.TierFree,
		UsageCount: 10,
	}); err != nil {
		t.Fatalf("failed to seed identity: %v", err)
	}
	ledger := NewLedger(&wrappingIdentityRepo{IdentityRepository: inner}, 10)

	if _, err := ledger.CheckAndReserve(context.Background(), "id-1"); !errors.Is(err, model.ErrQuotaExceeded) {
		t.Errorf("CheckAndReserve() error = %v, want model.ErrQuotaExceeded through wrapping", err)
	}

	if err := ledger.Upgrade(context.Background(), "unknown"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Upgrade() error = %v, want model.ErrNotFound through wrapping", err)
	}
}

func TestNewLedger_DefaultsFreeLimit(t *testing.T) {
	ledger, _ := newTestLedger(t, 0)

	if got := ledger.FreeLimit(); got != DefaultFreeLimit {
		t.Errorf("FreeLimit() = %d, want %d", got, DefaultFreeLimit)
	}
}
