package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/textcheck/internal/executor"
	"github.com/hitoshi/textcheck/internal/gate"
	"github.com/hitoshi/textcheck/internal/middleware"
	"github.com/hitoshi/textcheck/internal/model"
)

// AdmitterInterface はジョブハンドラーが必要とする関門インターフェース。
// gate.Gateの部分集合として定義する。
type AdmitterInterface interface {
	Admit(ctx context.Context, bearer string) (*gate.Decision, error)
}

// ExecutorInterface はジョブハンドラーが必要とする実行層インターフェース。
type ExecutorInterface interface {
	Submit(ctx context.Context, kind model.JobKind, text string) (*executor.Task, error)
	Poll(taskID string) (*executor.Task, error)
}

// TextSanitizerInterface は入力テキストの正規化インターフェース。
type TextSanitizerInterface interface {
	Sanitize(raw string) string
}

// HistoryAppenderInterface は履歴追記のためのインターフェース。
// repository.HistoryRepositoryの部分集合として定義する。
type HistoryAppenderInterface interface {
	Append(ctx context.Context, entry *model.HistoryEntry) error
}

// historyExcerptLength は履歴に保存する入力テキストの先頭文字数。
const historyExcerptLength = 100

// JobHandler は解析ジョブ投入とポーリングのHTTPハンドラー。
type JobHandler struct {
	admitter      AdmitterInterface
	executor      ExecutorInterface
	sanitizer     TextSanitizerInterface
	history       HistoryAppenderInterface
	maxTextLength int
}

// NewJobHandler はJobHandlerを生成する。
func NewJobHandler(admitter AdmitterInterface, exec ExecutorInterface, sanitizer TextSanitizerInterface, history HistoryAppenderInterface, maxTextLength int) *JobHandler {
	return &JobHandler{
		admitter:      admitter,
		executor:      exec,
		sanitizer:     sanitizer,
		history:       history,
		maxTextLength: maxTextLength,
	}
}

// submitRequest はジョブ投入リクエストのボディ。
type submitRequest struct {
	Text string `json:"text"`
}

// taskStatusResponse は非終端タスクのAPIレスポンス。
type taskStatusResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// SubmitPlagiarism は剽窃チェックジョブの投入を処理する。
// POST /api/check-plagiarism
func (h *JobHandler) SubmitPlagiarism(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, model.JobKindPlagiarism)
}

// SubmitRephrase は言い換えジョブの投入を処理する。
// POST /api/rephrase
func (h *JobHandler) SubmitRephrase(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, model.JobKindRephrase)
}

// PollPlagiarism は剽窃チェックタスクの状態を返す。
// GET /api/check-plagiarism/{taskID}
func (h *JobHandler) PollPlagiarism(w http.ResponseWriter, r *http.Request) {
	h.poll(w, r, model.JobKindPlagiarism)
}

// PollRephrase は言い換えタスクの状態を返す。
// GET /api/rephrase/{taskID}
func (h *JobHandler) PollRephrase(w http.ResponseWriter, r *http.Request) {
	h.poll(w, r, model.JobKindRephrase)
}

// submit は入力検証、関門通過、ジョブ投入の共通フローを実行する。
// 入力検証は利用枠の予約より前に行う。400で拒否されるリクエストが
// 無料枠を消費してはならない。
// デフォルトは同期モードで終端状態までブロックする。
// async=1クエリパラメータで非同期モードとなり、202でタスクIDを返す。
func (h *JobHandler) submit(w http.ResponseWriter, r *http.Request, kind model.JobKind) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	text := h.sanitizer.Sanitize(req.Text)
	if text == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewEmptyTextError())
		return
	}
	if utf8.RuneCountInString(text) > h.maxTextLength {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewTextTooLongError(h.maxTextLength))
		return
	}

	decision, err := h.admitter.Admit(r.Context(), middleware.BearerToken(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	task, err := h.executor.Submit(r.Context(), kind, text)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// 認証済み投入は履歴に記録する。失敗してもジョブ自体は継続する。
	if identityID := decision.IdentityID(); identityID != "" {
		h.appendHistory(r.Context(), identityID, kind, task.Fingerprint, text)
	}

	if r.URL.Query().Get("async") == "1" {
		status := task.Status()
		// キャッシュヒットで合成されたタスクは既に終端状態で、
		// ポーリング対象として登録されないため、結果を直接返す。
		if status.State.IsTerminal() {
			h.writeTaskResult(w, task)
			return
		}
		writeJSON(w, http.StatusAccepted, taskStatusResponse{
			TaskID: status.TaskID,
			Status: string(status.State),
		})
		return
	}

	if err := task.Wait(r.Context()); err != nil {
		// クライアント切断。タスクはバックグラウンドで継続する。
		return
	}

	h.writeTaskResult(w, task)
}

// poll はタスクIDから状態または結果を返す。
// 存在しないID、種別が一致しないIDはどちらも404として扱う。
func (h *JobHandler) poll(w http.ResponseWriter, r *http.Request, kind model.JobKind) {
	taskID := chi.URLParam(r, "taskID")

	task, err := h.executor.Poll(taskID)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewTaskNotFoundError(taskID))
		return
	}
	if task.Kind != kind {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewTaskNotFoundError(taskID))
		return
	}

	status := task.Status()
	if !status.State.IsTerminal() {
		writeJSON(w, http.StatusOK, taskStatusResponse{
			TaskID: status.TaskID,
			Status: string(status.State),
		})
		return
	}

	h.writeTaskResult(w, task)
}

// writeTaskResult は終端状態のタスクの結果レスポンスを書き込む。
func (h *JobHandler) writeTaskResult(w http.ResponseWriter, task *executor.Task) {
	status := task.Status()

	switch status.State {
	case model.TaskStateSucceeded:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(status.Result)
	case model.TaskStateFailed:
		slog.Warn("task failed",
			slog.String("task_id", status.TaskID),
			slog.String("kind", string(status.Kind)),
			slog.Int("attempts", status.Attempts),
			slog.String("error", status.Err.Error()),
		)
		writeAPIErrorResponse(w, http.StatusBadGateway, model.NewProviderFailedError())
	default:
		writeJSON(w, http.StatusOK, taskStatusResponse{
			TaskID: status.TaskID,
			Status: string(status.State),
		})
	}
}

// appendHistory は投入履歴を追記する。
func (h *JobHandler) appendHistory(ctx context.Context, identityID string, kind model.JobKind, fingerprint, text string) {
	excerpt := text
	if utf8.RuneCountInString(excerpt) > historyExcerptLength {
		runes := []rune(excerpt)
		excerpt = string(runes[:historyExcerptLength])
	}

	entry := &model.HistoryEntry{
		ID:          uuid.New().String(),
		IdentityID:  identityID,
		Kind:        kind,
		Fingerprint: fingerprint,
		Excerpt:     excerpt,
		CreatedAt:   time.Now(),
	}
	if err := h.history.Append(ctx, entry); err != nil {
		slog.Error("failed to append job history",
			slog.String("identity_id", identityID),
			slog.String("error", err.Error()),
		)
	}
}
