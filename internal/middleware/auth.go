// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/textcheck/internal/model"
	"github.com/hitoshi/textcheck/internal/token"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityIDContextKey はリクエストコンテキストにアイデンティティIDを格納するためのキー。
var identityIDContextKey = contextKey("identity_id")

// TokenVerifier はトークン検証に必要なインターフェース。
// token.Authorityの部分集合として定義する。
type TokenVerifier interface {
	Verify(tokenString string) (string, error)
}

// BearerToken はAuthorizationヘッダーからBearerトークンを抽出する。
// ヘッダーが存在しない、またはBearerスキームでない場合は空文字列を返す。
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	scheme, value, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(value)
}

// NewAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証し、
// アイデンティティIDをリクエストコンテキストに注入するミドルウェアを返す。
// トークンなし・無効・期限切れのリクエストには401を統一エラーフォーマットで返す。
func NewAuthMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearer := BearerToken(r)
			if bearer == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			identityID, err := verifier.Verify(bearer)
			if err != nil {
				switch {
				case errors.Is(err, token.ErrExpired):
					WriteErrorResponse(w, http.StatusUnauthorized, model.NewTokenExpiredError())
				default:
					WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidTokenError())
				}
				return
			}

			ctx := context.WithValue(r.Context(), identityIDContextKey, identityID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityIDFromContext はリクエストコンテキストからアイデンティティIDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func IdentityIDFromContext(ctx context.Context) (string, error) {
	identityID, ok := ctx.Value(identityIDContextKey).(string)
	if !ok || identityID == "" {
		return "", fmt.Errorf("identity ID not found in context")
	}
	return identityID, nil
}

// ContextWithIdentityID はコンテキストにアイデンティティIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentityID(ctx context.Context, identityID string) context.Context {
	return context.WithValue(ctx, identityIDContextKey, identityID)
}
