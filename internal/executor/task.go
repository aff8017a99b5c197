// Package executor は解析ジョブの実行層を提供する。
// タスクの状態遷移、一時的障害のバックオフ付きリトライ、
// フィンガープリント単位の実行重複排除を含む。
package executor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/textcheck/internal/model"
)

// Task は1件の解析ジョブの実行状態を表す。
// 状態遷移はExecutorのみが行う。pending -> running -> {succeeded | failed}。
type Task struct {
	ID          string
	Kind        model.JobKind
	Fingerprint string
	CreatedAt   time.Time

	mu       sync.Mutex
	state    model.TaskState
	attempts int
	result   json.RawMessage
	err      error
	done     chan struct{}
}

// TaskStatus はタスク状態のスナップショット。
type TaskStatus struct {
	TaskID      string
	Kind        model.JobKind
	State       model.TaskState
	Attempts    int
	Result      json.RawMessage // succeededの場合のみ非nil
	Err         error           // failedの場合のみ非nil
}

// newTask はpending状態のタスクを生成する。
func newTask(kind model.JobKind, fingerprint string) *Task {
	return &Task{
		ID:          uuid.New().String(),
		Kind:        kind,
		Fingerprint: fingerprint,
		CreatedAt:   time.Now(),
		state:       model.TaskStatePending,
		done:        make(chan struct{}),
	}
}

// newCachedTask はキャッシュヒット時に合成するsucceeded状態のタスクを生成する。
// プロバイダ呼び出しもリトライ管理も行われない。
func newCachedTask(kind model.JobKind, fingerprint string, result json.RawMessage) *Task {
	t := newTask(kind, fingerprint)
	t.state = model.TaskStateSucceeded
	t.result = result
	close(t.done)
	return t
}

// Status は現在の状態のスナップショットを返す。
func (t *Task) Status() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	return TaskStatus{
		TaskID:   t.ID,
		Kind:     t.Kind,
		State:    t.state,
		Attempts: t.attempts,
		Result:   t.result,
		Err:      t.err,
	}
}

// State は現在の状態を返す。
func (t *Task) State() model.TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Wait はタスクが終端状態に達するまでブロックする。
// コンテキストのキャンセルで待機を打ち切ってもタスク自体は継続し、
// 後続のポーリングは一貫した結果を観測できる。
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return nil
	}
}

func (t *Task) setRunning() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = model.TaskStateRunning
}

func (t *Task) recordAttempt() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts++
	return t.attempts
}

func (t *Task) succeed(result json.RawMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.IsTerminal() {
		return
	}
	t.state = model.TaskStateSucceeded
	t.result = result
	close(t.done)
}

func (t *Task) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.IsTerminal() {
		return
	}
	t.state = model.TaskStateFailed
	t.err = err
	close(t.done)
}
