// Package provider は外部テキスト解析プロバイダとの契約を定義する。
// 剽窃チェックと言い換えのアルゴリズム本体は外部コラボレータであり、
// このパッケージは固定のリクエスト/レスポンス契約と障害分類のみを扱う。
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/hitoshi/textcheck/internal/model"
)

// Provider は外部解析プロバイダのインターフェース。
type Provider interface {
	// CheckPlagiarism はテキストの剽窃スコアを計算する。
	CheckPlagiarism(ctx context.Context, text string) (*model.PlagiarismResult, error)
	// Rephrase はテキストを言い換える。
	Rephrase(ctx context.Context, text string) (*model.RephraseResult, error)
}

// FailureKind はプロバイダ障害の分類を表す。
type FailureKind int

const (
	// FailureTransient は一時的な障害（タイムアウト、接続エラー、429/5xx相当）。
	// リトライ対象。
	FailureTransient FailureKind = iota
	// FailurePermanent は恒久的な障害（プロバイダによる入力拒否、認可失敗）。
	// リトライしない。
	FailurePermanent
)

// Error はプロバイダ呼び出しの失敗を分類付きで表す。
type Error struct {
	Kind       FailureKind
	StatusCode int // HTTPステータスコード。接続エラー等の場合は0。
	Message    string
	cause      error
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider error: %s", e.Message)
}

// Unwrap は元のエラーを返す。
func (e *Error) Unwrap() error {
	return e.cause
}

// NewTransientError は一時的障害のErrorを生成する。
func NewTransientError(statusCode int, message string, cause error) *Error {
	return &Error{Kind: FailureTransient, StatusCode: statusCode, Message: message, cause: cause}
}

// NewPermanentError は恒久的障害のErrorを生成する。
func NewPermanentError(statusCode int, message string, cause error) *Error {
	return &Error{Kind: FailurePermanent, StatusCode: statusCode, Message: message, cause: cause}
}

// IsPermanent はエラーが恒久的障害かどうかを返す。
// 分類されていないエラー（接続断など）は一時的障害として扱う。
func IsPermanent(err error) bool {
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr.Kind == FailurePermanent
	}
	return false
}
