package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, quota, job, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeInvalidToken       = "INVALID_TOKEN"
	ErrCodeTokenExpired       = "TOKEN_EXPIRED"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeQuotaExceeded      = "QUOTA_EXCEEDED"
	ErrCodeEmptyText          = "EMPTY_TEXT"
	ErrCodeTextTooLong        = "TEXT_TOO_LONG"
	ErrCodeWeakPassword       = "WEAK_PASSWORD"
	ErrCodeInvalidEmail       = "INVALID_EMAIL"
	ErrCodeDuplicateUsername  = "DUPLICATE_USERNAME"
	ErrCodeTaskNotFound       = "TASK_NOT_FOUND"
	ErrCodeProviderFailed     = "PROVIDER_FAILED"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// サービス層とリポジトリ層で共有するセンチネルエラー。
// 呼び出し側はerrors.Isで判定する。
var (
	// ErrQuotaExceeded は無料階層の利用上限超過を示す。
	ErrQuotaExceeded = errors.New("free tier quota exceeded")
	// ErrNotFound は対象リソースが存在しないことを示す。
	ErrNotFound = errors.New("not found")
	// ErrDuplicateUsername はユーザー名が登録済みであることを示す。
	ErrDuplicateUsername = errors.New("username already registered")
	// ErrInvalidCredentials は認証情報の不一致を示す。
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// NewInvalidCredentialsError は認証失敗エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "ユーザー名またはパスワードが正しくありません。",
		Category: "auth",
		Action:   "認証情報を確認して再度お試しください。",
	}
}

// NewTokenExpiredError はトークン期限切れエラーを生成する。
func NewTokenExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenExpired,
		Message:  "アクセストークンの有効期限が切れています。",
		Category: "auth",
		Action:   "再度ログインしてトークンを取得し直してください。",
	}
}

// NewInvalidTokenError は不正トークンエラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "アクセストークンが無効です。",
		Category: "auth",
		Action:   "正しいBearerトークンを指定してください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewQuotaExceededError は無料階層の利用上限超過エラーを生成する。
func NewQuotaExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeQuotaExceeded,
		Message:  "無料階層の利用上限に達しています。",
		Category: "quota",
		Action:   "プレミアムにアップグレードしてください。",
	}
}

// NewEmptyTextError は空テキストエラーを生成する。
func NewEmptyTextError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyText,
		Message:  "テキストが空です。",
		Category: "validation",
		Action:   "解析対象のテキストを入力してください。",
	}
}

// NewTextTooLongError はテキスト長超過エラーを生成する。
func NewTextTooLongError(maxLength int) *APIError {
	return &APIError{
		Code:     ErrCodeTextTooLong,
		Message:  fmt.Sprintf("テキストが長すぎます（最大%d文字）。", maxLength),
		Category: "validation",
		Action:   "テキストを分割して再度お試しください。",
	}
}

// NewWeakPasswordError はパスワード強度不足エラーを生成する。
func NewWeakPasswordError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeWeakPassword,
		Message:  fmt.Sprintf("パスワードが強度要件を満たしていません: %s", reason),
		Category: "validation",
		Action:   "8文字以上で、数字と大文字をそれぞれ1文字以上含めてください。",
	}
}

// NewInvalidEmailError はメールアドレス形式エラーを生成する。
func NewInvalidEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  "メールアドレスの形式が正しくありません。",
		Category: "validation",
		Action:   "正しいメールアドレスを入力してください。",
	}
}

// NewDuplicateUsernameError はユーザー名重複エラーを生成する。
func NewDuplicateUsernameError(username string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateUsername,
		Message:  fmt.Sprintf("ユーザー名は既に登録されています: %s", username),
		Category: "validation",
		Action:   "別のユーザー名を指定してください。",
	}
}

// NewTaskNotFoundError はタスク未検出エラーを生成する。
func NewTaskNotFoundError(taskID string) *APIError {
	return &APIError{
		Code:     ErrCodeTaskNotFound,
		Message:  fmt.Sprintf("指定されたタスクが見つかりません: %s", taskID),
		Category: "job",
		Action:   "タスクIDを確認してください。",
	}
}

// NewProviderFailedError はプロバイダ呼び出し失敗エラーを生成する。
func NewProviderFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeProviderFailed,
		Message:  "解析プロバイダの呼び出しに失敗しました。",
		Category: "job",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewRateLimitExceededError はリクエストレート超過エラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエストが多すぎます。しばらく待ってから再度お試しください。",
		Category: "system",
		Action:   "指定された時間が経過してから再度お試しください。",
	}
}

// NewInvalidRequestError はリクエスト形式エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}
