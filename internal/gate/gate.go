// Package gate はジョブ投入前の単一の関門を提供する。
// トークン検証と利用枠の予約を合成し、許可・拒否を判定する。
// すべてのジョブ投入はこの関門を通過しなければならない。
package gate

import (
	"context"
	"errors"
	"fmt"

	"github.com/hitoshi/textcheck/internal/model"
)

// ErrUnauthenticated は匿名利用が許可されていないデプロイで
// トークンなしのリクエストが拒否されたことを示す。
var ErrUnauthenticated = errors.New("authentication required")

// TokenVerifier はトークン検証のインターフェース。
// token.Authorityの部分集合として定義する。
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// QuotaReserver は利用枠予約のインターフェース。
// quota.Ledgerの部分集合として定義する。
type QuotaReserver interface {
	CheckAndReserve(ctx context.Context, identityID string) (*model.Identity, error)
}

// Decision は関門の許可判定結果を表す。
type Decision struct {
	// Anonymous は匿名利用者として許可されたことを示す。
	Anonymous bool
	// Identity は認証済み利用者。匿名の場合はnil。
	Identity *model.Identity
}

// IdentityID は許可された利用者のIDを返す。匿名の場合は空文字列。
func (d *Decision) IdentityID() string {
	if d.Identity == nil {
		return ""
	}
	return d.Identity.ID
}

// Gate はAccessGateの実装。状態を所有せず、読み取りと編成のみを行う。
type Gate struct {
	verifier       TokenVerifier
	ledger         QuotaReserver
	allowAnonymous bool
}

// New はGateを生成する。
func New(verifier TokenVerifier, ledger QuotaReserver, allowAnonymous bool) *Gate {
	return &Gate{
		verifier:       verifier,
		ledger:         ledger,
		allowAnonymous: allowAnonymous,
	}
}

// Admit はBearerトークンを検証し、利用枠を予約する。
// トークンが空の場合、匿名利用が許可されていれば匿名として許可し、
// そうでなければErrUnauthenticatedを返す。
// トークン検証の失敗はtokenパッケージのセンチネルエラーを、
// 利用枠超過はmodel.ErrQuotaExceededをそのまま返す。
func (g *Gate) Admit(ctx context.Context, bearer string) (*Decision, error) {
	if bearer == "" {
		if g.allowAnonymous {
			return &Decision{Anonymous: true}, nil
		}
		return nil, ErrUnauthenticated
	}

	identityID, err := g.verifier.Verify(bearer)
	if err != nil {
		return nil, err
	}

	identity, err := g.ledger.CheckAndReserve(ctx, identityID)
	if err != nil {
		if errors.Is(err, model.ErrQuotaExceeded) || errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to reserve quota: %w", err)
	}

	return &Decision{Identity: identity}, nil
}
