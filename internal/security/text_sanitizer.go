// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizerService は利用者が投稿した解析対象テキストを正規化する。
// HTMLタグを除去し前後の空白を取り除いた正規形は、フィンガープリント計算と
// プロバイダ呼び出しの両方に使われるため、同一内容のテキストが
// マークアップの差異だけで別の入力として扱われることを防ぐ。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService は解析対象テキストの正規化インターフェースを定義する。
type TextSanitizerService interface {
	// Sanitize はテキストからHTMLタグをすべて除去し、前後の空白を取り除く。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのStrictPolicy（全タグ除去）を保持し、スレッドセーフに動作する。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// タグを一切許可しないポリシーを構築する。scriptタグやon*イベント属性を
// 含むあらゆるマークアップがプレーンテキストに落とされる。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はテキストからHTMLタグを除去し、前後の空白を取り除く。
func (s *textSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}
