package provider

import (
	"context"
	"time"

	"github.com/hitoshi/textcheck/internal/model"
)

// Mock はAPIキーなしのデプロイで使用するシミュレーションプロバイダ。
// 固定の結果を返す。Delayを設定すると外部API呼び出しの遅延を模擬する。
type Mock struct {
	Delay time.Duration
}

// CheckPlagiarism はシミュレーション結果を返す。
func (m *Mock) CheckPlagiarism(ctx context.Context, text string) (*model.PlagiarismResult, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	return &model.PlagiarismResult{
		Percentage: 10.5,
		Sources: []string{
			"https://example.com/source1",
			"https://example.com/source2",
		},
	}, nil
}

// Rephrase はシミュレーション結果を返す。
func (m *Mock) Rephrase(ctx context.Context, text string) (*model.RephraseResult, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	return &model.RephraseResult{
		Rephrased: "The swift brown fox leaps over the idle dog.",
	}, nil
}

func (m *Mock) wait(ctx context.Context) error {
	if m.Delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return NewTransientError(0, "simulated call cancelled", ctx.Err())
	case <-time.After(m.Delay):
		return nil
	}
}

// compile-time interface check
var _ Provider = (*Mock)(nil)
