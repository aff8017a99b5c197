package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/textcheck/internal/middleware"
	"github.com/hitoshi/textcheck/internal/model"
	"github.com/hitoshi/textcheck/internal/quota"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Register はアイデンティティを新規登録する。
	Register(ctx context.Context, username, email, password string) (*model.Identity, error)
	// Login は資格情報を検証しアクセストークンを発行する。
	Login(ctx context.Context, username, password string) (string, time.Time, error)
	// GetByID は指定IDのアイデンティティを取得する。
	GetByID(ctx context.Context, id string) (*model.Identity, error)
	// TokenLifetime は発行するトークンの有効期間を返す。
	TokenLifetime() time.Duration
}

// QuotaServiceInterface は利用状況ハンドラーが必要とするサービスインターフェース。
type QuotaServiceInterface interface {
	Report(ctx context.Context, identityID string) (*quota.UsageReport, error)
	Upgrade(ctx context.Context, identityID string) error
	FreeLimit() int
}

// HistoryListerInterface は履歴一覧のためのインターフェース。
// repository.HistoryRepositoryの部分集合として定義する。
type HistoryListerInterface interface {
	ListByIdentity(ctx context.Context, identityID string, limit int) ([]*model.HistoryEntry, error)
}

// historyListLimit は1回の履歴取得で返す最大件数。
const historyListLimit = 50

// UserHandler はアカウント管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	quota   QuotaServiceInterface
	history HistoryListerInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, quota QuotaServiceInterface, history HistoryListerInterface) *UserHandler {
	return &UserHandler{
		service: service,
		quota:   quota,
		history: history,
	}
}

// registerRequest はアカウント登録リクエストのボディ。
type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// identityResponse はアイデンティティの公開フィールドのAPIレスポンス。
type identityResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Tier      string `json:"tier"`
	CreatedAt string `json:"created_at"`
}

// tokenResponse はトークン発行のAPIレスポンス。
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// usageResponse は利用状況のAPIレスポンス。
type usageResponse struct {
	TotalChecks         int  `json:"total_checks"`
	RemainingFreeChecks int  `json:"remaining_free_checks"`
	IsPremium           bool `json:"is_premium"`
}

// historyEntryResponse は履歴1件のAPIレスポンス。
type historyEntryResponse struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Fingerprint string `json:"fingerprint"`
	Excerpt     string `json:"excerpt"`
	CreatedAt   string `json:"created_at"`
}

// Register はアカウント登録を処理する。
// POST /api/register
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	identity, err := h.service.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toIdentityResponse(identity))
}

// Token は資格情報を検証しアクセストークンを発行する。
// POST /api/token （application/x-www-form-urlencoded）
func (h *UserHandler) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewInvalidCredentialsError())
		return
	}

	accessToken, _, err := h.service.Login(r.Context(), username, password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: accessToken,
		TokenType:   "bearer",
		ExpiresIn:   int(h.service.TokenLifetime().Seconds()),
	})
}

// Me は認証済みアイデンティティの公開フィールドを返す。
// GET /api/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	identityID, err := middleware.IdentityIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	identity, err := h.service.GetByID(r.Context(), identityID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toIdentityResponse(identity))
}

// Usage は認証済みアイデンティティの利用状況を返す。
// GET /api/usage
func (h *UserHandler) Usage(w http.ResponseWriter, r *http.Request) {
	identityID, err := middleware.IdentityIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	report, err := h.quota.Report(r.Context(), identityID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	remaining := report.Remaining
	if remaining < 0 {
		// プレミアムは無料枠の概念を持たないため0で報告する
		remaining = 0
	}

	writeJSON(w, http.StatusOK, usageResponse{
		TotalChecks:         report.UsageCount,
		RemainingFreeChecks: remaining,
		IsPremium:           report.Tier == model.TierPremium,
	})
}

// Premium はプレミアム階層への昇格を処理する。冪等。
// POST /api/premium
func (h *UserHandler) Premium(w http.ResponseWriter, r *http.Request) {
	identityID, err := middleware.IdentityIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := h.quota.Upgrade(r.Context(), identityID); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "プレミアム階層へ昇格しました。",
	})
}

// History は認証済みアイデンティティのジョブ実行履歴を新しい順に返す。
// GET /api/history
func (h *UserHandler) History(w http.ResponseWriter, r *http.Request) {
	identityID, err := middleware.IdentityIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	entries, err := h.history.ListByIdentity(r.Context(), identityID, historyListLimit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]historyEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, historyEntryResponse{
			ID:          e.ID,
			Kind:        string(e.Kind),
			Fingerprint: e.Fingerprint,
			Excerpt:     e.Excerpt,
			CreatedAt:   e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// toIdentityResponse はアイデンティティを公開フィールドのレスポンスに変換する。
func toIdentityResponse(identity *model.Identity) identityResponse {
	return identityResponse{
		ID:        identity.ID,
		Username:  identity.Username,
		Email:     identity.Email,
		Tier:      string(identity.Tier),
		CreatedAt: identity.CreatedAt.UTC().Format(time.RFC3339),
	}
}
