package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"
)

// OpsHandler は運用系エンドポイント（ルート、ヘルスチェック）のHTTPハンドラー。
type OpsHandler struct {
	db      *sql.DB
	version string
}

// NewOpsHandler はOpsHandlerを生成する。dbはnil可（DBなし構成）。
func NewOpsHandler(db *sql.DB, version string) *OpsHandler {
	return &OpsHandler{
		db:      db,
		version: version,
	}
}

// Root はサービス情報を返す。
// GET /
func (h *OpsHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "textcheck",
		"version": h.version,
	})
}

// Health はヘルスチェックを処理する。
// DBが構成されている場合は接続確認も行う。
// GET /health
func (h *OpsHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		if err := h.db.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"reason": "database unreachable",
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
