package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/hitoshi/textcheck/internal/model"
)

// errorBodyLimit はエラーメッセージに含めるレスポンスボディの最大バイト数。
const errorBodyLimit = 512

// HTTPClient はHTTP経由で外部解析プロバイダを呼び出すクライアント。
// タイムアウトは呼び出し側のコンテキストで制御する。
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient はHTTPClientを生成する。
// httpClientがnilの場合はhttp.DefaultClientを使用する。
func NewHTTPClient(baseURL, apiKey string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  httpClient,
	}
}

// CheckPlagiarism は剽窃チェックAPIを呼び出す。
func (c *HTTPClient) CheckPlagiarism(ctx context.Context, text string) (*model.PlagiarismResult, error) {
	result := &model.PlagiarismResult{}
	if err := c.post(ctx, "/plagiarism", text, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Rephrase は言い換えAPIを呼び出す。
func (c *HTTPClient) Rephrase(ctx context.Context, text string) (*model.RephraseResult, error) {
	result := &model.RephraseResult{}
	if err := c.post(ctx, "/rephrase", text, result); err != nil {
		return nil, err
	}
	return result, nil
}

// post は{text}をPOSTし、レスポンスJSONをoutにデコードする。
// 失敗はClassifyHTTPStatusに基づき*Errorに分類する。
func (c *HTTPClient) post(ctx context.Context, path, text string, out any) error {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return NewPermanentError(0, "failed to encode request payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return NewPermanentError(0, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// タイムアウト・接続エラーは一時的障害として扱う
		return NewTransientError(0, fmt.Sprintf("request failed: %v", err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		message := fmt.Sprintf("unexpected response: %s", bytes.TrimSpace(body))
		if ClassifyHTTPStatus(resp.StatusCode) == FailurePermanent {
			return NewPermanentError(resp.StatusCode, message, nil)
		}
		return NewTransientError(resp.StatusCode, message, nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return NewTransientError(resp.StatusCode, "failed to decode response body", err)
	}

	return nil
}

// compile-time interface check
var _ Provider = (*HTTPClient)(nil)
