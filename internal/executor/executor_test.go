package executor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/textcheck/internal/jobcache"
	"github.com/hitoshi/textcheck/internal/model"
	"github.com/hitoshi/textcheck/internal/provider"
)

// --- モック ---

type fakeProvider struct {
	mu               sync.Mutex
	plagiarismCalls  int
	rephraseCalls    int
	checkPlagiarismFn func(ctx context.Context, text string) (*model.PlagiarismResult, error)
	rephraseFn        func(ctx context.Context, text string) (*model.RephraseResult, error)
}

func (f *fakeProvider) CheckPlagiarism(ctx context.Context, text string) (*model.PlagiarismResult, error) {
	f.mu.Lock()
	f.plagiarismCalls++
	f.mu.Unlock()
	if f.checkPlagiarismFn != nil {
		return f.checkPlagiarismFn(ctx, text)
	}
	return &model.PlagiarismResult{Percentage: 10.5, Sources: []string{"https://example.com/a"}}, nil
}

func (f *fakeProvider) Rephrase(ctx context.Context, text string) (*model.RephraseResult, error) {
	f.mu.Lock()
	f.rephraseCalls++
	f.mu.Unlock()
	if f.rephraseFn != nil {
		return f.rephraseFn(ctx, text)
	}
	return &model.RephraseResult{Rephrased: "rephrased: " + text}, nil
}

func (f *fakeProvider) PlagiarismCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.plagiarismCalls
}

// fastConfig はテスト用にバックオフを縮めた実行設定を返す。
func fastConfig() Config {
	return Config{
		MaxAttempts:   3,
		RetryBackoff:  time.Millisecond,
		CallTimeout:   time.Second,
		MaxConcurrent: 4,
	}
}

func waitTerminal(t *testing.T, task *Task) TaskStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := task.Wait(ctx); err != nil {
		t.Fatalf("task did not reach terminal state: %v", err)
	}
	return task.Status()
}

func TestSubmit_RejectsInvalidKind(t *testing.T) {
	e := New(&fakeProvider{}, jobcache.NewStore(), nil, nil, fastConfig())

	if _, err := e.Submit(context.Background(), model.JobKind("translate"), "text"); err == nil {
		t.Error("Submit() with invalid kind error = nil, want error")
	}
}

func TestSubmit_SuccessStoresResultInCache(t *testing.T) {
	cache := jobcache.NewStore()
	fake := &fakeProvider{}
	e := New(fake, cache, nil, nil, fastConfig())

	task, err := e.Submit(context.Background(), model.JobKindPlagiarism, "some text")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	status := waitTerminal(t, task)
	if status.State != model.TaskStateSucceeded {
		t.Fatalf("State = %q, want succeeded", status.State)
	}

	var result model.PlagiarismResult
	if err := json.Unmarshal(status.Result, &result); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if result.Percentage != 10.5 {
		t.Errorf("Percentage = %v, want 10.5", result.Percentage)
	}

	if _, ok := cache.Get(task.Fingerprint); !ok {
		t.Error("result was not stored in the cache")
	}
}

func TestSubmit_CacheHitSkipsProvider(t *testing.T) {
	cache := jobcache.NewStore()
	fake := &fakeProvider{}
	e := New(fake, cache, nil, nil, fastConfig())

	first, err := e.Submit(context.Background(), model.JobKindPlagiarism, "cached text")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitTerminal(t, first)

	second, err := e.Submit(context.Background(), model.JobKindPlagiarism, "cached text")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	status := second.Status()
	if status.State != model.TaskStateSucceeded {
		t.Fatalf("cached task State = %q, want succeeded immediately", status.State)
	}
	// キャッシュヒットはプロバイダ呼び出しもリトライ管理も発生しない
	if status.Attempts != 0 {
		t.Errorf("cached task Attempts = %d, want 0", status.Attempts)
	}
	if got := fake.PlagiarismCalls(); got != 1 {
		t.Errorf("provider calls = %d, want 1 (second submission must not call provider)", got)
	}
	if second.ID == first.ID {
		t.Error("cached task must have its own task ID")
	}
}

// キャッシュヒットで合成されたタスクはタスクマップに登録されない。
// 登録すると同一テキストの反復投入でマップが際限なく成長する。
func TestSubmit_CacheHitDoesNotGrowTaskMap(t *testing.T) {
	e := New(&fakeProvider{}, jobcache.NewStore(), nil, nil, fastConfig())

	first, err := e.Submit(context.Background(), model.JobKindPlagiarism, "repeated text")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitTerminal(t, first)

	before := e.TaskCount()

	var cached *Task
	for i := 0; i < 100; i++ {
		cached, err = e.Submit(context.Background(), model.JobKindPlagiarism, "repeated text")
		if err != nil {
			t.Fatalf("Submit() %d error = %v", i, err)
		}
	}

	if got := e.TaskCount(); got != before {
		t.Errorf("TaskCount() = %d after 100 cached submissions, want %d", got, before)
	}

	// 合成タスクはポーリング対象外
	if _, err := e.Poll(cached.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Poll(cached task) error = %v, want model.ErrNotFound", err)
	}
}

func TestSubmit_TransientFailureRetriesUntilMaxAttempts(t *testing.T) {
	fake := &fakeProvider{
		checkPlagiarismFn: func(ctx context.Context, text string) (*model.PlagiarismResult, error) {
			return nil, provider.NewTransientError(503, "service unavailable", nil)
		},
	}
	e := New(fake, jobcache.NewStore(), nil, nil, fastConfig())

	task, err := e.Submit(context.Background(), model.JobKindPlagiarism, "failing text")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	status := waitTerminal(t, task)
	if status.State != model.TaskStateFailed {
		t.Fatalf("State = %q, want failed", status.State)
	}
	if status.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", status.Attempts)
	}
	if got := fake.PlagiarismCalls(); got != 3 {
		t.Errorf("provider calls = %d, want 3", got)
	}
	if status.Err == nil {
		t.Error("failed task Err = nil, want last provider error")
	}
}

func TestSubmit_TransientThenSuccess(t *testing.T) {
	var calls atomic.Int32
	fake := &fakeProvider{
		checkPlagiarismFn: func(ctx context.Context, text string) (*model.PlagiarismResult, error) {
			if calls.Add(1) < 3 {
				return nil, provider.NewTransientError(429, "rate limited", nil)
			}
			return &model.PlagiarismResult{Percentage: 1.0}, nil
		},
	}
	e := New(fake, jobcache.NewStore(), nil, nil, fastConfig())

	task, _ := e.Submit(context.Background(), model.JobKindPlagiarism, "eventually ok")
	status := waitTerminal(t, task)

	if status.State != model.TaskStateSucceeded {
		t.Fatalf("State = %q, want succeeded", status.State)
	}
	if status.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", status.Attempts)
	}
}

func TestSubmit_PermanentFailureDoesNotRetry(t *testing.T) {
	fake := &fakeProvider{
		checkPlagiarismFn: func(ctx context.Context, text string) (*model.PlagiarismResult, error) {
			return nil, provider.NewPermanentError(400, "bad request", nil)
		},
	}
	e := New(fake, jobcache.NewStore(), nil, nil, fastConfig())

	task, _ := e.Submit(context.Background(), model.JobKindPlagiarism, "rejected text")
	status := waitTerminal(t, task)

	if status.State != model.TaskStateFailed {
		t.Fatalf("State = %q, want failed", status.State)
	}
	// 恒久的障害は正確に1回の試行で失敗する
	if status.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", status.Attempts)
	}
	if got := fake.PlagiarismCalls(); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}
}

func TestSubmit_FailedResultIsNotCached(t *testing.T) {
	cache := jobcache.NewStore()
	fake := &fakeProvider{
		checkPlagiarismFn: func(ctx context.Context, text string) (*model.PlagiarismResult, error) {
			return nil, provider.NewPermanentError(422, "unprocessable", nil)
		},
	}
	e := New(fake, cache, nil, nil, fastConfig())

	task, _ := e.Submit(context.Background(), model.JobKindPlagiarism, "bad text")
	waitTerminal(t, task)

	if cache.Len() != 0 {
		t.Errorf("cache.Len() = %d, want 0 (failures must not be cached)", cache.Len())
	}
}

func TestSubmit_ConcurrentSameFingerprintJoinsInflight(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	fake := &fakeProvider{
		checkPlagiarismFn: func(ctx context.Context, text string) (*model.PlagiarismResult, error) {
			calls.Add(1)
			<-release
			return &model.PlagiarismResult{Percentage: 5.0}, nil
		},
	}
	e := New(fake, jobcache.NewStore(), nil, nil, fastConfig())

	first, err := e.Submit(context.Background(), model.JobKindPlagiarism, "shared text")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	// プロバイダ呼び出し開始を待つ
	deadline := time.After(5 * time.Second)
	for calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("provider was never called")
		case <-time.After(time.Millisecond):
		}
	}

	second, err := e.Submit(context.Background(), model.JobKindPlagiarism, "shared text")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	// 実行中タスクに合流し、同じハンドルを共有する
	if second.ID != first.ID {
		t.Errorf("second task ID = %q, want joined task %q", second.ID, first.ID)
	}

	close(release)
	status := waitTerminal(t, first)

	if status.State != model.TaskStateSucceeded {
		t.Fatalf("State = %q, want succeeded", status.State)
	}
	// 同一フィンガープリントの計算は同時に最大1つ
	if got := calls.Load(); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}
}

func TestPoll(t *testing.T) {
	e := New(&fakeProvider{}, jobcache.NewStore(), nil, nil, fastConfig())

	task, err := e.Submit(context.Background(), model.JobKindRephrase, "poll me")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitTerminal(t, task)

	polled, err := e.Poll(task.ID)
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if polled.ID != task.ID {
		t.Errorf("Poll() returned task %q, want %q", polled.ID, task.ID)
	}
	if polled.State() != model.TaskStateSucceeded {
		t.Errorf("polled State = %q, want succeeded", polled.State())
	}

	// 終端状態に達した後もタスクは照会可能なまま残る
	if _, err := e.Poll(task.ID); err != nil {
		t.Errorf("Poll() after terminal state error = %v", err)
	}
}

func TestPoll_UnknownTaskID(t *testing.T) {
	e := New(&fakeProvider{}, jobcache.NewStore(), nil, nil, fastConfig())

	_, err := e.Poll("no-such-task")
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Poll() error = %v, want ErrNotFound", err)
	}
}

func TestTaskWait_CallerAbandonmentDoesNotCancelTask(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	fake := &fakeProvider{
		checkPlagiarismFn: func(ctx context.Context, text string) (*model.PlagiarismResult, error) {
			close(started)
			<-release
			return &model.PlagiarismResult{Percentage: 2.0}, nil
		},
	}
	e := New(fake, jobcache.NewStore(), nil, nil, fastConfig())

	task, _ := e.Submit(context.Background(), model.JobKindPlagiarism, "abandoned text")
	<-started

	// 呼び出し元が離脱してもタスクはキャンセルされない
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := task.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait() with cancelled ctx error = %v, want context.Canceled", err)
	}

	close(release)
	status := waitTerminal(t, task)
	if status.State != model.TaskStateSucceeded {
		t.Errorf("State after abandonment = %q, want succeeded", status.State)
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	e := New(&fakeProvider{}, jobcache.NewStore(), nil, nil, Config{})

	defaults := DefaultConfig()
	if e.config.MaxAttempts != defaults.MaxAttempts {
		t.Errorf("MaxAttempts = %d, want %d", e.config.MaxAttempts, defaults.MaxAttempts)
	}
	if e.config.RetryBackoff != defaults.RetryBackoff {
		t.Errorf("RetryBackoff = %v, want %v", e.config.RetryBackoff, defaults.RetryBackoff)
	}
	if e.config.MaxConcurrent != defaults.MaxConcurrent {
		t.Errorf("MaxConcurrent = %d, want %d", e.config.MaxConcurrent, defaults.MaxConcurrent)
	}
}
