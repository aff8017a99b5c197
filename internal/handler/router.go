package handler

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/textcheck/internal/metrics"
	"github.com/hitoshi/textcheck/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// アカウント
	UserService  UserServiceInterface
	QuotaService QuotaServiceInterface
	HistoryRepo  HistoryListerInterface

	// ジョブ
	Admitter      AdmitterInterface
	Executor      ExecutorInterface
	Sanitizer     TextSanitizerInterface
	HistoryWriter HistoryAppenderInterface
	MaxTextLength int

	// 運用
	Metrics  metrics.MetricsCollector
	Gatherer prometheus.Gatherer
	DB       *sql.DB // nilの場合、healthはDB pingを省略する
	Version  string
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Recovery → Logging
//
// アカウント系の保護ルートにはAuth → RateLimitを追加で適用する。
// ジョブ投入ルートは関門（AccessGate）をハンドラー内部で通すため、
// 認証ミドルウェアは適用しない（匿名許可デプロイのため）。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Metrics))

	userHandler := NewUserHandler(deps.UserService, deps.QuotaService, deps.HistoryRepo)
	jobHandler := NewJobHandler(deps.Admitter, deps.Executor, deps.Sanitizer, deps.HistoryWriter, deps.MaxTextLength)
	opsHandler := NewOpsHandler(deps.DB, deps.Version)

	// --- 認証不要のルート ---

	r.Get("/", opsHandler.Root)
	r.Get("/health", opsHandler.Health)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Post("/api/register", userHandler.Register)
	r.Post("/api/token", userHandler.Token)

	// ジョブ投入・ポーリング。関門がハンドラー内部で認証と利用枠を判定する。
	r.Group(func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		r.Post("/api/check-plagiarism", jobHandler.SubmitPlagiarism)
		r.Get("/api/check-plagiarism/{taskID}", jobHandler.PollPlagiarism)
		r.Post("/api/rephrase", jobHandler.SubmitRephrase)
		r.Get("/api/rephrase/{taskID}", jobHandler.PollRephrase)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.TokenVerifier))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		r.Get("/api/me", userHandler.Me)
		r.Get("/api/usage", userHandler.Usage)
		r.Post("/api/premium", userHandler.Premium)
		r.Get("/api/history", userHandler.History)
	})

	return r
}
