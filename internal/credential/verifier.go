// Package credential はユーザーシークレットの一方向ハッシュ化と検証を提供する。
package credential

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Verifier はbcryptによるパスワードのハッシュ化と検証を行う。
// bcryptは計算コストが高く設計されており、総当たり攻撃への耐性を持つ。
type Verifier struct {
	cost int
}

// NewVerifier はデフォルトコストのVerifierを生成する。
func NewVerifier() *Verifier {
	return &Verifier{cost: bcrypt.DefaultCost}
}

// NewVerifierWithCost は指定コストのVerifierを生成する。
// コストが範囲外の場合はデフォルトコストを使用する。
func NewVerifierWithCost(cost int) *Verifier {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Verifier{cost: cost}
}

// Hash はシークレットのソルト付きダイジェストを生成する。
func (v *Verifier) Hash(secret string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(secret), v.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(digest), nil
}

// Verify はシークレットがダイジェストと一致するかを定数時間比較で検証する。
// ダイジェスト形式不正などの検証エラーはすべてfalseとして扱う（フェイルクローズ）。
func (v *Verifier) Verify(secret, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
}
