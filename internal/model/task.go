package model

import (
	"encoding/json"
	"time"
)

// JobKind はテキスト解析ジョブの種別を表す。
type JobKind string

const (
	// JobKindPlagiarism は剽窃チェックジョブ。
	JobKindPlagiarism JobKind = "plagiarism"
	// JobKindRephrase は言い換えジョブ。
	JobKindRephrase JobKind = "rephrase"
)

// Valid はサポートされているジョブ種別かどうかを返す。
func (k JobKind) Valid() bool {
	return k == JobKindPlagiarism || k == JobKindRephrase
}

// TaskState はタスクの状態遷移を表す。
// pending -> running -> {succeeded | failed} の順にのみ遷移する。
type TaskState string

const (
	// TaskStatePending は実行待ちの状態。
	TaskStatePending TaskState = "pending"
	// TaskStateRunning はプロバイダ呼び出し中の状態。
	TaskStateRunning TaskState = "running"
	// TaskStateSucceeded は成功の終端状態。
	TaskStateSucceeded TaskState = "succeeded"
	// TaskStateFailed は失敗の終端状態。
	TaskStateFailed TaskState = "failed"
)

// IsTerminal は終端状態かどうかを返す。
func (s TaskState) IsTerminal() bool {
	return s == TaskStateSucceeded || s == TaskStateFailed
}

// CacheEntry はフィンガープリントをキーとする計算結果のキャッシュエントリ。
// 一度挿入されたエントリは変更されない（明示的な無効化のみ）。
type CacheEntry struct {
	Fingerprint string
	Result      json.RawMessage
	CreatedAt   time.Time
}

// PlagiarismResult は剽窃チェックプロバイダのレスポンス契約。
type PlagiarismResult struct {
	Percentage float64  `json:"percentage"`
	Sources    []string `json:"sources"`
}

// RephraseResult は言い換えプロバイダのレスポンス契約。
type RephraseResult struct {
	Rephrased string `json:"rephrased"`
}
