package provider

// ClassifyHTTPStatus はプロバイダのHTTPステータスコードを障害分類に写す。
// 429と5xxはバックオフ付きリトライの対象、それ以外の4xxは
// 入力拒否または認可失敗としてリトライせず即座に失敗させる。
func ClassifyHTTPStatus(statusCode int) FailureKind {
	switch {
	case statusCode == 429:
		return FailureTransient
	case statusCode >= 500:
		return FailureTransient
	default:
		return FailurePermanent
	}
}
