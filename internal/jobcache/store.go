package jobcache

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/hitoshi/textcheck/internal/model"
)

// Store はフィンガープリントをキーとする計算結果のインメモリキャッシュ。
// 1つのフィンガープリントに対して存在するエントリは常に最大1つ。
// エントリは挿入後に変更されず、明示的な無効化によってのみ削除される（TTLなし）。
type Store struct {
	mu      sync.Mutex
	entries map[string]*model.CacheEntry
}

// NewStore はStoreを生成する。
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*model.CacheEntry),
	}
}

// Get は指定フィンガープリントのエントリを返す。
// 存在しない場合は(nil, false)を返す。
func (s *Store) Get(fingerprint string) (*model.CacheEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[fingerprint]
	return entry, ok
}

// PutIfAbsent はエントリが存在しない場合のみ挿入する。
// 並行する挿入が先に勝っていた場合は、上書きせずに既存（勝者）の
// エントリを返す。これにより1つのフィンガープリントに対する
// 正準な結果が並行キャッシュミス競合下でも1つに収束する。
func (s *Store) PutIfAbsent(fingerprint string, result json.RawMessage) *model.CacheEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[fingerprint]; ok {
		return existing
	}

	entry := &model.CacheEntry{
		Fingerprint: fingerprint,
		Result:      result,
		CreatedAt:   time.Now(),
	}
	s.entries[fingerprint] = entry
	return entry
}

// Invalidate は指定フィンガープリントのエントリを削除する。
// 次回の同一入力は再計算される。
func (s *Store) Invalidate(fingerprint string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, fingerprint)
}

// Len は現在のエントリ数を返す。テストおよびメトリクス用。
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}
