package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultMaxBytes 默认下载上限（50MB，与 Bot API 上传上限一致）
const DefaultMaxBytes int64 = 50 << 20

// Payload 下载结果
type Payload struct {
	Data        []byte
	ContentType string
}

// Fetcher 远程下载接口
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Payload, error)
}

// HTTPFetcher 整体缓冲响应体的 HTTP 下载器
type HTTPFetcher struct {
	httpClient *http.Client
	maxBytes   int64
	userAgent  string
}

// FetcherOption 自定义下载器行为
type FetcherOption func(*HTTPFetcher)

// WithHTTPClient 自定义 HTTP 客户端（测试时使用）
func WithHTTPClient(hc *http.Client) FetcherOption {
	return func(f *HTTPFetcher) {
		if hc != nil {
			f.httpClient = hc
		}
	}
}

// WithMaxBytes 自定义大小上限
func WithMaxBytes(limit int64) FetcherOption {
	return func(f *HTTPFetcher) {
		if limit > 0 {
			f.maxBytes = limit
		}
	}
}

// WithUserAgent 自定义 User-Agent
func WithUserAgent(ua string) FetcherOption {
	return func(f *HTTPFetcher) {
		f.userAgent = ua
	}
}

// NewHTTPFetcher 创建下载器
func NewHTTPFetcher(opts ...FetcherOption) *HTTPFetcher {
	f := &HTTPFetcher{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		maxBytes:   DefaultMaxBytes,
		userAgent:  "go_bridge/1.0",
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch 下载并缓冲完整响应体
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Payload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch media failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch media failed: http status %d", resp.StatusCode)
	}
	if resp.ContentLength > f.maxBytes {
		return nil, fmt.Errorf("%w: content-length=%d limit=%d", ErrTooLarge, resp.ContentLength, f.maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read media body failed: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: limit=%d", ErrTooLarge, f.maxBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("fetch media failed: empty body")
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	return &Payload{Data: data, ContentType: contentType}, nil
}
