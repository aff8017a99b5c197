// Package app はアプリケーションの起動と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/textcheck/internal/config"
	"github.com/hitoshi/textcheck/internal/credential"
	"github.com/hitoshi/textcheck/internal/database"
	"github.com/hitoshi/textcheck/internal/executor"
	"github.com/hitoshi/textcheck/internal/gate"
	"github.com/hitoshi/textcheck/internal/handler"
	"github.com/hitoshi/textcheck/internal/jobcache"
	"github.com/hitoshi/textcheck/internal/logger"
	"github.com/hitoshi/textcheck/internal/metrics"
	"github.com/hitoshi/textcheck/internal/middleware"
	"github.com/hitoshi/textcheck/internal/provider"
	"github.com/hitoshi/textcheck/internal/quota"
	"github.com/hitoshi/textcheck/internal/repository"
	"github.com/hitoshi/textcheck/internal/security"
	"github.com/hitoshi/textcheck/internal/token"
	"github.com/hitoshi/textcheck/internal/user"
)

// Version はサービスのバージョン文字列。ビルド時に-ldflagsで上書きする。
var Version = "dev"

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8000"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーを起動する。
// DATABASE_URLが未設定の場合はインメモリストアで稼働する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. ストレージの初期化
	var (
		db          *sql.DB
		identRepo   repository.IdentityRepository
		historyRepo repository.HistoryRepository
	)

	if cfg.DatabaseURL != "" {
		var err error
		db, err = database.Open(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		if err := db.Ping(); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}

		slog.Info("database connection established")

		identRepo = repository.NewPostgresIdentityRepo(db)
		historyRepo = repository.NewPostgresHistoryRepo(db)
	} else {
		slog.Info("DATABASE_URL not set, using in-memory stores")

		identRepo = repository.NewMemoryIdentityRepo()
		historyRepo = repository.NewMemoryHistoryRepo()
	}

	// 2. トークンと資格情報
	authority, err := token.New([]byte(cfg.SigningSecret), cfg.SigningAlgorithm, cfg.TokenLifetime)
	if err != nil {
		return fmt.Errorf("failed to initialize token authority: %w", err)
	}
	verifier := credential.NewVerifier()

	// 3. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. プロバイダの選択。PROVIDER_URL未設定の場合はモックで稼働する。
	var textProvider provider.Provider
	if cfg.ProviderURL != "" {
		textProvider = provider.NewHTTPClient(cfg.ProviderURL, cfg.ProviderAPIKey, &http.Client{
			Timeout: cfg.ProviderTimeout,
		})
		slog.Info("using HTTP provider", slog.String("url", cfg.ProviderURL))
	} else {
		textProvider = &provider.Mock{}
		slog.Info("PROVIDER_URL not set, using mock provider")
	}

	// 5. ドメインサービスの初期化
	cache := jobcache.NewStore()
	exec := executor.New(textProvider, cache, collector, slog.Default(), executor.Config{
		MaxAttempts:   cfg.ProviderMaxAttempts,
		RetryBackoff:  cfg.ProviderRetryBackoff,
		CallTimeout:   cfg.ProviderTimeout,
		MaxConcurrent: int64(cfg.TaskMaxConcurrent),
	})

	ledger := quota.NewLedger(identRepo, cfg.FreeTierLimit)
	accessGate := gate.New(authority, ledger, cfg.AllowAnonymous)
	userService := user.NewService(identRepo, verifier, authority)
	sanitizer := security.NewTextSanitizer()

	// 6. レートリミッターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfigFromHourly(cfg.RateLimitGeneral))
	defer rateLimiter.Stop()

	// 7. ルーターの構築
	deps := &handler.RouterDeps{
		TokenVerifier:     authority,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),

		UserService:  userService,
		QuotaService: ledger,
		HistoryRepo:  historyRepo,

		Admitter:      accessGate,
		Executor:      exec,
		Sanitizer:     sanitizer,
		HistoryWriter: historyRepo,
		MaxTextLength: cfg.MaxTextLength,

		Metrics:  collector,
		Gatherer: registry,
		DB:       db,
		Version:  Version,
	}

	router := handler.NewRouter(deps)

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // 同期モードはプロバイダのリトライ完了までブロックする
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for migrate")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
