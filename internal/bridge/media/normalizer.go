package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go_bridge/internal/bridge/models"
	"go_bridge/internal/logger"
)

// Form 媒体载体形式
type Form int

const (
	FormAny    Form = iota // 任意形式
	FormBuffer             // 内存数据
	FormPath               // 本地文件
	FormURL                // 远程地址
)

func (f Form) String() string {
	switch f {
	case FormBuffer:
		return "buffer"
	case FormPath:
		return "path"
	case FormURL:
		return "url"
	default:
		return "any"
	}
}

// Options 解析选项
type Options struct {
	ForceDownload bool            // 要求结果为内存数据
	Preferred     Form            // 目标端偏好的形式
	Source        models.Platform // 媒体来源平台，用于选择原生下载器
}

// Resolved 可直接投递的媒体载体（Data/Path/URL 恰有一个非空）
type Resolved struct {
	Data     []byte
	Path     string
	URL      string
	Name     string
	MimeType string
}

// Form 返回载体形式
func (r *Resolved) Form() Form {
	switch {
	case len(r.Data) > 0:
		return FormBuffer
	case r.Path != "":
		return FormPath
	case r.URL != "":
		return FormURL
	default:
		return FormAny
	}
}

// Apply 把解析结果写回媒体段
func (r *Resolved) Apply(m *models.Media) {
	m.Data = r.Data
	m.Path = r.Path
	m.URL = r.URL
	if r.Name != "" {
		m.Name = r.Name
	}
	if r.MimeType != "" {
		m.MimeType = r.MimeType
	}
	if len(r.Data) > 0 {
		m.Size = int64(len(r.Data))
	}
}

// NativeDownloader 平台原生下载（由文件句柄换取本地路径或下载地址）
type NativeDownloader interface {
	Download(ctx context.Context, handle string) (*Resolved, error)
}

type strategy struct {
	name string
	run  func(ctx context.Context, m *models.Media, opts Options, state *attemptState) (*Resolved, error)
}

// attemptState 同一次解析内各策略共享的中间结果
type attemptState struct {
	discoveredURL string
}

// Normalizer 按固定顺序尝试多种策略把媒体引用变成可投递载体
type Normalizer struct {
	fetcher    Fetcher
	natives    map[models.Platform]NativeDownloader
	strategies []strategy
}

// NewNormalizer 创建媒体规范化器
func NewNormalizer(fetcher Fetcher) *Normalizer {
	if fetcher == nil {
		fetcher = NewHTTPFetcher()
	}
	n := &Normalizer{
		fetcher: fetcher,
		natives: make(map[models.Platform]NativeDownloader),
	}
	n.strategies = []strategy{
		{name: "buffer", run: n.fromBuffer},
		{name: "local", run: n.fromLocalPath},
		{name: "url", run: n.fromURL},
		{name: "native", run: n.fromNative},
		{name: "url-retry", run: n.retryURL},
	}
	return n
}

// RegisterNative 注册某平台的原生下载器
func (n *Normalizer) RegisterNative(platform models.Platform, downloader NativeDownloader) {
	if downloader == nil {
		return
	}
	n.natives[platform] = downloader
}

// Resolve 依次尝试：内存数据、本地路径、URL 下载、平台原生下载、URL 重试
//
// 全部失败返回包装了 ErrNoPayload 的错误，附带每个策略的失败原因。
func (n *Normalizer) Resolve(ctx context.Context, m *models.Media, opts Options) (*Resolved, error) {
	if m == nil {
		return nil, ErrNoPayload
	}

	state := &attemptState{}
	var diagnostics []error

	for _, s := range n.strategies {
		if err := ctx.Err(); err != nil {
			diagnostics = append(diagnostics, err)
			break
		}

		resolved, err := s.run(ctx, m, opts, state)
		if err != nil {
			logger.L().Debugf("Media strategy failed: strategy=%s name=%s err=%v", s.name, m.Name, err)
			diagnostics = append(diagnostics, fmt.Errorf("%s: %w", s.name, err))
			continue
		}
		if resolved == nil {
			continue
		}

		if resolved.Name == "" {
			resolved.Name = m.Name
		}
		if resolved.MimeType == "" {
			resolved.MimeType = m.MimeType
		}
		return resolved, nil
	}

	if len(diagnostics) == 0 {
		return nil, fmt.Errorf("%w: no source available", ErrNoPayload)
	}
	return nil, fmt.Errorf("%w: %w", ErrNoPayload, errors.Join(diagnostics...))
}

func (n *Normalizer) fromBuffer(ctx context.Context, m *models.Media, opts Options, state *attemptState) (*Resolved, error) {
	if len(m.Data) == 0 {
		return nil, nil
	}
	return &Resolved{Data: m.Data}, nil
}

func (n *Normalizer) fromLocalPath(ctx context.Context, m *models.Media, opts Options, state *attemptState) (*Resolved, error) {
	if m.Path == "" {
		return nil, nil
	}

	path, err := LocateDrifted(m.Path)
	if err != nil {
		return nil, fmt.Errorf("local file %s: %w", m.Path, err)
	}
	if path != m.Path {
		logger.L().Debugf("Media path drift resolved: want=%s got=%s", m.Path, path)
	}

	if opts.ForceDownload || opts.Preferred == FormBuffer {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read local file: %w", err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("local file %s is empty", path)
		}
		return &Resolved{Data: data, Name: nameOr(m.Name, path)}, nil
	}
	return &Resolved{Path: path, Name: nameOr(m.Name, path)}, nil
}

func (n *Normalizer) fromURL(ctx context.Context, m *models.Media, opts Options, state *attemptState) (*Resolved, error) {
	if m.URL == "" {
		return nil, nil
	}
	if opts.Preferred == FormURL && !opts.ForceDownload {
		return &Resolved{URL: m.URL}, nil
	}
	return n.fetch(ctx, m.URL)
}

func (n *Normalizer) fromNative(ctx context.Context, m *models.Media, opts Options, state *attemptState) (*Resolved, error) {
	if m.Handle == "" {
		return nil, nil
	}
	downloader, ok := n.natives[opts.Source]
	if !ok {
		return nil, fmt.Errorf("no native downloader for %s", opts.Source)
	}

	resolved, err := downloader.Download(ctx, m.Handle)
	if err != nil {
		return nil, err
	}
	if resolved == nil {
		return nil, fmt.Errorf("native download returned nothing")
	}

	switch resolved.Form() {
	case FormBuffer:
		return resolved, nil
	case FormPath:
		local := &models.Media{Path: resolved.Path, Name: nameOr(resolved.Name, resolved.Path)}
		out, err := n.fromLocalPath(ctx, local, opts, state)
		if err == nil && out != nil {
			return out, nil
		}
		if resolved.URL == "" {
			return nil, err
		}
		fallthrough
	case FormURL:
		state.discoveredURL = resolved.URL
		if opts.Preferred == FormURL && !opts.ForceDownload {
			return &Resolved{URL: resolved.URL, Name: resolved.Name}, nil
		}
		out, err := n.fetch(ctx, resolved.URL)
		if out != nil && out.Name == "" {
			out.Name = resolved.Name
		}
		return out, err
	}
	return nil, fmt.Errorf("native download returned empty payload")
}

// retryURL 最后一次尝试：原生下载发现的新地址优先，否则原地址再试一次
func (n *Normalizer) retryURL(ctx context.Context, m *models.Media, opts Options, state *attemptState) (*Resolved, error) {
	url := state.discoveredURL
	if url == "" {
		url = m.URL
	}
	if url == "" {
		return nil, nil
	}
	return n.fetch(ctx, url)
}

func (n *Normalizer) fetch(ctx context.Context, url string) (*Resolved, error) {
	payload, err := n.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return &Resolved{Data: payload.Data, MimeType: payload.ContentType}, nil
}

func nameOr(name, path string) string {
	if name != "" {
		return name
	}
	return filepath.Base(path)
}
