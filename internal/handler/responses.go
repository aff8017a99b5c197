// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/textcheck/internal/gate"
	"github.com/hitoshi/textcheck/internal/model"
	"github.com/hitoshi/textcheck/internal/token"
)

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeJSON(w, statusCode, apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// サービス層のセンチネルエラーをAPIErrorに変換する
	switch {
	case errors.Is(err, model.ErrInvalidCredentials):
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewInvalidCredentialsError())
		return
	case errors.Is(err, model.ErrQuotaExceeded):
		writeAPIErrorResponse(w, http.StatusTooManyRequests, model.NewQuotaExceededError())
		return
	case errors.Is(err, model.ErrNotFound):
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewInvalidTokenError())
		return
	case errors.Is(err, token.ErrExpired):
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewTokenExpiredError())
		return
	case errors.Is(err, token.ErrInvalidSignature), errors.Is(err, token.ErrMalformed):
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewInvalidTokenError())
		return
	case errors.Is(err, gate.ErrUnauthenticated):
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	// 未分類のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     model.ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidCredentials, model.ErrCodeInvalidToken,
		model.ErrCodeTokenExpired, model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeQuotaExceeded, model.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case model.ErrCodeEmptyText, model.ErrCodeTextTooLong, model.ErrCodeWeakPassword,
		model.ErrCodeInvalidEmail, model.ErrCodeDuplicateUsername, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeTaskNotFound:
		return http.StatusNotFound
	case model.ErrCodeProviderFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
