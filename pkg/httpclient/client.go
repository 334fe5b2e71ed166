package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// defaultTimeout はリクエスト全体のタイムアウト。
const defaultTimeout = 30 * time.Second

// Client はkhanza-apiへのHTTPクライアント。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL は接続先のベースURL。
	baseURL string
	// token はAuthorizationヘッダーに付与するBearerトークン。
	token string
}

// Option はClientの設定を変更する。
type Option func(*Client)

// WithHTTPClient は内部で使うHTTPクライアントを差し替える。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout はリクエストのタイムアウトを変更する。
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// New は新しいクライアントを生成する。
// baseURLには接続先のベースURL（例: "http://localhost:8080"）を指定する。
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

// WithToken はBearerトークンを付与するクライアントを返す。元のクライアントは変更しない。
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = token
	return &clone
}

// Envelope はAPIレスポンスの共通形式。
type Envelope struct {
	// Success は処理が成功したかどうか。
	Success bool `json:"success"`
	// Message は結果のメッセージ。
	Message string `json:"message"`
	// Data は結果データ。
	Data json.RawMessage `json:"data,omitempty"`
	// TotalRecords は一覧の件数。一覧以外ではnil。
	TotalRecords *int `json:"total_records,omitempty"`
}

// Response はステータスコードと解釈済みのレスポンス。
type Response struct {
	// StatusCode はHTTPステータスコード。
	StatusCode int
	// Envelope はボディを共通形式として解釈した結果。
	Envelope Envelope
	// Body はレスポンスボディそのもの。
	Body []byte
	// Header はレスポンスヘッダー。
	Header http.Header
}

// Decode はボディをvにデシリアライズする。
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("レスポンスボディのデシリアライズに失敗: %w", err)
	}
	return nil
}

// Get は指定パスにクエリ付きでGETリクエストを送信する。
// ステータスコードに関わらずレスポンスを返し、エラーは通信失敗時のみ返す。
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, path, nil)
}

// Post は指定パスにJSONボディでPOSTリクエストを送信する。
// ステータスコードに関わらずレスポンスを返し、エラーは通信失敗時のみ返す。
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

// PostJSON は指定パスにJSONボディでPOSTリクエストを送信する。
// 2xx以外はエラーとし、レスポンスボディをresultにデシリアライズする。
func (c *Client) PostJSON(ctx context.Context, path string, body any, result any) error {
	return c.doJSON(ctx, http.MethodPost, path, body, result)
}

// GetJSON は指定パスにGETリクエストを送信する。
// 2xx以外はエラーとし、レスポンスボディをresultにデシリアライズする。
func (c *Client) GetJSON(ctx context.Context, path string, result any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, result)
}

// doJSON は2xxのみを成功とするJSONリクエストの共通処理。
func (c *Client) doJSON(ctx context.Context, method, path string, body any, result any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Message: resp.Envelope.Message, Body: string(resp.Body)}
	}
	if result != nil {
		return resp.Decode(result)
	}
	return nil
}

// do はリクエストを送信してレスポンスを読み込む。
func (c *Client) do(ctx context.Context, method, path string, body any) (*Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("リクエストボディのシリアライズに失敗: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの送信に失敗: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み込みに失敗: %w", err)
	}

	out := &Response{StatusCode: resp.StatusCode, Body: respBody, Header: resp.Header}
	// JSONでないボディはEnvelopeを空のままにする。
	_ = json.Unmarshal(respBody, &out.Envelope) //nolint:errcheck
	return out, nil
}

// StatusError は2xx以外のステータスを表すエラー。
type StatusError struct {
	// StatusCode はHTTPステータスコード。
	StatusCode int
	// Message はレスポンスのmessageフィールド。
	Message string
	// Body はレスポンスボディ。
	Body string
}

// Error はエラーメッセージを返す。
func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTPエラー: status=%d, body=%s", e.StatusCode, e.Body)
}
