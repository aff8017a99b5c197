// Package jobcache はジョブ入力のフィンガープリント計算と
// コンテンツアドレス方式の結果キャッシュを提供する。
package jobcache

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/hitoshi/textcheck/internal/model"
)

// Fingerprint は正規化済みのジョブ種別と入力テキストから
// 暗号学的ハッシュ（SHA-256）のフィンガープリントを計算する。
// 同一入力はプロセス再起動をまたいでも常に同じキーに写り、
// 異なる入力が衝突することはない。
func Fingerprint(kind model.JobKind, text string) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}
