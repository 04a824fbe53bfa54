package auditclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/auditlog/pkg/audit"
)

// defaultTimeout はHTTPリクエストのタイムアウト。
const defaultTimeout = 30 * time.Second

// headerRequestID はリクエストIDを伝播するHTTPヘッダーキー。
const headerRequestID = "X-Request-ID"

// Client は監査ログサービス用のHTTPクライアント。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL は監査ログサービスのベースURL。
	baseURL string
}

// Option はClientの設定を変更する。
type Option func(*Client)

// WithHTTPClient は内部で使用するHTTPクライアントを差し替える。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New は新しい監査ログクライアントを生成する。
// baseURLには監査ログサービスのベースURL（例: "http://auditlog:8085"）を指定する。
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ack はイベント記録の応答。
type Ack struct {
	// Status は常に"event_logged"。
	Status string `json:"status"`
	// ID は付番されたレコードID。
	ID int64 `json:"id"`
	// CreatedAt は追記時刻。
	CreatedAt time.Time `json:"created_at"`
}

// Log は監査イベントを記録する。
// 必須フィールドが欠けている場合は送信せずにErrValidationを返す。
func (c *Client) Log(ctx context.Context, ev audit.Event) (Ack, error) {
	if err := ev.Validate(); err != nil {
		return Ack{}, err
	}
	var ack Ack
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/events", ev, &ack); err != nil {
		return Ack{}, err
	}
	return ack, nil
}

// Query は条件に一致する監査レコードを新しい順に取得する。
// f.Limitはそのまま送信されるため、0を指定すると空の結果になる。
func (c *Client) Query(ctx context.Context, f audit.Filter) ([]audit.Record, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	params := url.Values{}
	if f.Actor != "" {
		params.Set("actor", f.Actor)
	}
	if f.Action != "" {
		params.Set("action", f.Action)
	}
	if f.Resource != "" {
		params.Set("resource", f.Resource)
	}
	params.Set("limit", strconv.Itoa(f.Limit))

	var records []audit.Record
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/logs?"+params.Encode(), nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Health はサービスの死活を確認する。
func (c *Client) Health(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("予期しないヘルスチェック結果: %q", resp.Status)
	}
	return nil
}

// APIError はサービスが2xx以外のステータスを返したことを表す。
type APIError struct {
	// StatusCode はHTTPステータスコード。
	StatusCode int
	// Message はレスポンスのerrorフィールド、またはボディそのもの。
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTPエラー: status=%d, message=%s", e.StatusCode, e.Message)
}

// Unwrap は400をaudit.ErrValidationとして、5xxをaudit.ErrStorageとして辿れるようにする。
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusBadRequest:
		return audit.ErrValidation
	case e.StatusCode >= http.StatusInternalServerError:
		return audit.ErrStorage
	}
	return nil
}

// doJSON はJSON形式のHTTPリクエストを実行する共通処理。
func (c *Client) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("リクエストボディのシリアライズに失敗: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	// コンテキストからリクエストIDを伝播する
	if id, ok := ctx.Value(contextKeyRequestID).(string); ok && id != "" {
		req.Header.Set(headerRequestID, id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの送信に失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("レスポンスボディのデシリアライズに失敗: %w", err)
		}
	}
	return nil
}

// newAPIError はエラーレスポンスからAPIErrorを組み立てる。
func newAPIError(resp *http.Response) error {
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(respBody))
	if err := json.Unmarshal(respBody, &payload); err == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}

// IsAPIError はerrがAPIErrorであればそれを返す。
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// contextKey はコンテキストキーの型。
type contextKey string

// contextKeyRequestID はコンテキストにリクエストIDを格納するためのキー。
const contextKeyRequestID contextKey = "request_id"

// WithRequestID はコンテキストにリクエストIDを設定する。
// 呼び出し元のリクエストIDを監査ログサービスまで伝播するために使用する。
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, id)
}
