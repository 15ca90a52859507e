package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shouni/go-http-kit/pkg/httpkit"

	"github.com/shouni/go-csv-fetch/pkg/retry"
)

const (
	// HTTPクライアント関連の定数
	DefaultHTTPTimeout = 30 * time.Second
	MaxBodySize        = int64(50 * 1024 * 1024) // 50MB: ダウンロード対象のレスポンスボディの最大読み込みサイズ

	// サイトからのブロックを避けるためのUser-Agent
	UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36"
)

// Doer は、標準の *http.Client.Do() と互換性のあるHTTPクライアントのインターフェースを定義します。
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Resource は、1回のフェッチで取得したレスポンスボディとメタデータを保持します。
type Resource struct {
	Body        []byte
	ContentType string // Content-Typeヘッダーの値（拡張子推定のフォールバックに使用）
}

// NonRetryableHTTPError はHTTP 4xx系のステータスコードエラーを示すカスタムエラー型です。
type NonRetryableHTTPError struct {
	StatusCode int
}

func (e *NonRetryableHTTPError) Error() string {
	return fmt.Sprintf("HTTPクライアントエラー (非リトライ対象): ステータスコード %d", e.StatusCode)
}

// IsNonRetryableError は与えられたエラーが非リトライ対象のHTTPエラーであるかを判断します。
func IsNonRetryableError(err error) bool {
	var nonRetryable *NonRetryableHTTPError
	return errors.As(err, &nonRetryable)
}

// Client はHTTP GETによるリソース取得と、リトライ設定をカプセル化します。
// デフォルトのリトライ回数は0回（一度失敗したフェッチはスキップ）です。
type Client struct {
	httpClient  Doer
	retryConfig retry.Config
}

// ClientOption はClientの設定を行うための関数型です。
type ClientOption func(*Client)

// WithHTTPClient はカスタムのDoerを設定します。主にテストでのモック差し替えに使用します。
func WithHTTPClient(doer Doer) ClientOption {
	return func(c *Client) {
		c.httpClient = doer
	}
}

// WithMaxRetries は最大リトライ回数を設定します。
func WithMaxRetries(max uint64) ClientOption {
	return func(c *Client) {
		c.retryConfig.MaxRetries = max
	}
}

// New は、新しいClientを生成します。
// デフォルトのDoerとして httpkit.Client を使用します。リトライはこのClient側の
// retry.Do が管理するため、httpkit 側のリトライは無効化しておきます。
func New(timeout time.Duration, options ...ClientOption) *Client {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}

	c := &Client{
		httpClient:  httpkit.New(timeout, httpkit.WithMaxRetries(0)),
		retryConfig: retry.DefaultConfig(),
	}

	for _, opt := range options {
		opt(c)
	}

	return c
}

// Fetch はURLからリソースをHTTP GETで取得し、本体とContent-Typeを返します。
// 4xx系のステータスコードは非リトライ対象、ネットワークエラーと5xx系は
// リトライ対象として扱われます（リトライ回数が0の場合はどちらも即時失敗）。
func (c *Client) Fetch(ctx context.Context, url string) (*Resource, error) {
	var res *Resource

	op := func() error {
		var fetchErr error
		res, fetchErr = c.doFetch(ctx, url)
		return fetchErr
	}

	err := retry.Do(
		ctx,
		c.retryConfig,
		fmt.Sprintf("URL(%s)のフェッチ", url),
		op,
		isRetryableError,
	)

	if err != nil {
		return nil, err
	}
	return res, nil
}

// doFetch は実際の一度のHTTP GETリクエストとボディ読み込みを実行します。
func (c *Client) doFetch(ctx context.Context, url string) (*Resource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("GETリクエスト作成に失敗しました: %w", err)
	}
	c.addCommonHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストに失敗しました (ネットワーク/接続エラー): %w", err)
	}

	defer resp.Body.Close()

	if err := checkResponseStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み込みに失敗しました: %w", err)
	}

	return &Resource{
		Body:        body,
		ContentType: strings.TrimSpace(resp.Header.Get("Content-Type")),
	}, nil
}

// addCommonHeaders は共通のHTTPヘッダーを設定します。
func (c *Client) addCommonHeaders(req *http.Request) {
	req.Header.Set("User-Agent", UserAgent)
}

// checkResponseStatus は、レスポンスのステータスコードをエラー分類に変換します。
// 2xxは成功、4xxは非リトライ対象エラー、それ以外はリトライ対象エラーです。
func checkResponseStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &NonRetryableHTTPError{StatusCode: resp.StatusCode}
	default:
		return fmt.Errorf("HTTPステータスエラー (リトライ対象): ステータスコード %d", resp.StatusCode)
	}
}

// isRetryableError は、retry.Do に渡すエラー判定関数です。
func isRetryableError(err error) bool {
	return !IsNonRetryableError(err)
}
