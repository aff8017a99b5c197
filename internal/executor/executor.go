package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hitoshi/textcheck/internal/jobcache"
	"github.com/hitoshi/textcheck/internal/metrics"
	"github.com/hitoshi/textcheck/internal/model"
	"github.com/hitoshi/textcheck/internal/provider"
)

// Config はタスク実行層の設定。
type Config struct {
	// MaxAttempts は一時的障害に対する最大試行回数（初回を含む）。
	MaxAttempts int
	// RetryBackoff はリトライ間の固定遅延。
	RetryBackoff time.Duration
	// CallTimeout はプロバイダ呼び出し1回あたりのタイムアウト。
	// 超過は一時的障害として扱う。
	CallTimeout time.Duration
	// MaxConcurrent は同時に実行するプロバイダ呼び出しの最大数。
	MaxConcurrent int64
}

// DefaultConfig はデフォルトの実行設定を返す。
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		RetryBackoff:  5 * time.Second,
		CallTimeout:   5 * time.Minute,
		MaxConcurrent: 4,
	}
}

// Executor は解析ジョブを外部プロバイダに対して実行する。
// 同一フィンガープリントの計算は同時に最大1つ。2つ目の並行投入は
// 実行中タスクの完了に合流する。結果はキャッシュのPutIfAbsentで
// 収束するため、競合下でも正準な結果は1つに定まる。
type Executor struct {
	provider provider.Provider
	cache    *jobcache.Store
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
	config   Config

	sem *semaphore.Weighted

	mu       sync.Mutex
	tasks    map[string]*Task // taskID -> タスク（終端状態も保持）
	inflight map[string]*Task // fingerprint -> 実行中タスク

	// baseCtx はタスク実行用のコンテキスト。呼び出し元の離脱で
	// タスクがキャンセルされないよう、リクエストコンテキストとは分離する。
	baseCtx context.Context
}

// New はExecutorを生成する。
// collectorがnilの場合はメトリクスを記録しない。
func New(p provider.Provider, cache *jobcache.Store, collector metrics.MetricsCollector, logger *slog.Logger, config Config) *Executor {
	if collector == nil {
		collector = metrics.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if config.MaxAttempts < 1 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = defaults.RetryBackoff
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = defaults.CallTimeout
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = defaults.MaxConcurrent
	}

	return &Executor{
		provider: p,
		cache:    cache,
		metrics:  collector,
		logger:   logger,
		config:   config,
		sem:      semaphore.NewWeighted(config.MaxConcurrent),
		tasks:    make(map[string]*Task),
		inflight: make(map[string]*Task),
		baseCtx:  context.Background(),
	}
}

// Submit は解析ジョブを投入し、タスクハンドルを返す。
// キャッシュヒットの場合はプロバイダを呼び出さず、succeeded状態の
// タスクを即座に返す。同一フィンガープリントのタスクが実行中の場合は
// そのタスクに合流する。
func (e *Executor) Submit(ctx context.Context, kind model.JobKind, text string) (*Task, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unsupported job kind: %s", kind)
	}

	fingerprint := jobcache.Fingerprint(kind, text)
	e.metrics.RecordSubmission(string(kind))

	e.mu.Lock()

	if entry, ok := e.cache.Get(fingerprint); ok {
		// 合成タスクは既に終端状態のため登録しない。
		// 登録するとキャッシュヒットのたびにタスクマップが際限なく成長する。
		task := newCachedTask(kind, fingerprint, entry.Result)
		e.mu.Unlock()

		e.metrics.RecordCacheHit(string(kind))
		e.logger.Info("job served from cache",
			slog.String("task_id", task.ID),
			slog.String("kind", string(kind)),
			slog.String("fingerprint", fingerprint),
		)
		return task, nil
	}

	if running, ok := e.inflight[fingerprint]; ok {
		e.mu.Unlock()

		e.logger.Info("job joined in-flight task",
			slog.String("task_id", running.ID),
			slog.String("kind", string(kind)),
			slog.String("fingerprint", fingerprint),
		)
		return running, nil
	}

	task := newTask(kind, fingerprint)
	e.tasks[task.ID] = task
	e.inflight[fingerprint] = task
	e.mu.Unlock()

	go e.run(task, text)

	return task, nil
}

// TaskCount は登録済みタスク数を返す。
func (e *Executor) TaskCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks)
}

// Poll は指定タスクの現在の状態を返す。
// 不明なIDの場合はmodel.ErrNotFoundを返す。
func (e *Executor) Poll(taskID string) (*Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, ok := e.tasks[taskID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return task, nil
}

// run はタスクを終端状態まで実行する。
// 一時的障害は固定バックオフでMaxAttemptsまでリトライし、
// 恒久的障害は即座に失敗させる。
func (e *Executor) run(task *Task, text string) {
	defer func() {
		e.mu.Lock()
		delete(e.inflight, task.Fingerprint)
		e.mu.Unlock()
	}()

	if err := e.sem.Acquire(e.baseCtx, 1); err != nil {
		task.fail(fmt.Errorf("failed to acquire executor slot: %w", err))
		return
	}
	defer e.sem.Release(1)

	task.setRunning()

	var lastErr error
	for {
		attempt := task.recordAttempt()
		e.metrics.RecordProviderCall(string(task.Kind))

		callCtx, cancel := context.WithTimeout(e.baseCtx, e.config.CallTimeout)
		start := time.Now()
		result, err := e.invoke(callCtx, task.Kind, text)
		cancel()
		e.metrics.RecordProviderLatency(time.Since(start))

		if err == nil {
			// 競合した挿入があっても勝者のエントリを正とする
			entry := e.cache.PutIfAbsent(task.Fingerprint, result)
			task.succeed(entry.Result)

			e.logger.Info("task succeeded",
				slog.String("task_id", task.ID),
				slog.String("kind", string(task.Kind)),
				slog.Int("attempts", attempt),
			)
			return
		}

		permanent := provider.IsPermanent(err)
		e.metrics.RecordProviderFailure(string(task.Kind), !permanent)
		lastErr = err

		if permanent {
			task.fail(lastErr)
			e.logger.Warn("task failed permanently",
				slog.String("task_id", task.ID),
				slog.String("kind", string(task.Kind)),
				slog.Int("attempts", attempt),
				slog.String("error", lastErr.Error()),
			)
			return
		}

		if attempt >= e.config.MaxAttempts {
			task.fail(lastErr)
			e.logger.Error("task failed after exhausting retries",
				slog.String("task_id", task.ID),
				slog.String("kind", string(task.Kind)),
				slog.Int("attempts", attempt),
				slog.String("error", lastErr.Error()),
			)
			return
		}

		e.metrics.RecordRetry(string(task.Kind))
		e.logger.Warn("transient provider failure, retrying",
			slog.String("task_id", task.ID),
			slog.String("kind", string(task.Kind)),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", e.config.RetryBackoff),
			slog.String("error", err.Error()),
		)

		select {
		case <-e.baseCtx.Done():
			task.fail(lastErr)
			return
		case <-time.After(e.config.RetryBackoff):
		}
	}
}

// invoke はジョブ種別に応じてプロバイダを呼び出し、結果をJSONに直列化する。
func (e *Executor) invoke(ctx context.Context, kind model.JobKind, text string) (json.RawMessage, error) {
	switch kind {
	case model.JobKindPlagiarism:
		result, err := e.provider.CheckPlagiarism(ctx, text)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)
	case model.JobKindRephrase:
		result, err := e.provider.Rephrase(ctx, text)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)
	default:
		return nil, fmt.Errorf("unsupported job kind: %s", kind)
	}
}
