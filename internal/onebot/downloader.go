package onebot

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"go_bridge/internal/bridge/media"
)

// Downloader 通过 get_image / get_record / get_file 把句柄换成文件
type Downloader struct {
	caller      Caller
	voiceFormat string
}

// NewDownloader 创建 A 侧原生下载器
func NewDownloader(caller Caller) *Downloader {
	return &Downloader{caller: caller, voiceFormat: "mp3"}
}

// Download 解析 "<类型>:<标识>" 形式的句柄
//
// 返回的本地路径位于 OneBot 实现所在主机，跨主机部署时依赖同时返回的 URL。
func (d *Downloader) Download(ctx context.Context, handle string) (*media.Resolved, error) {
	kind, ident, ok := strings.Cut(handle, ":")
	if !ok || ident == "" {
		return nil, fmt.Errorf("invalid onebot media handle %q", handle)
	}

	var (
		action string
		params map[string]any
	)
	switch kind {
	case handleImage:
		action, params = "get_image", map[string]any{"file": ident}
	case handleRecord:
		action, params = "get_record", map[string]any{"file": ident, "out_format": d.voiceFormat}
	case handleVideo, handleFile:
		action, params = "get_file", map[string]any{"file_id": ident, "file": ident}
	default:
		return nil, fmt.Errorf("unsupported onebot media kind %q", kind)
	}

	data, err := d.caller.Call(ctx, action, params)
	if err != nil {
		return nil, err
	}
	var result fileResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode %s result: %w", action, err)
	}

	resolved := &media.Resolved{
		Path: result.File,
		URL:  result.URL,
		Name: result.FileName,
	}
	if result.Base64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(result.Base64)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", action, err)
		}
		resolved = &media.Resolved{Data: decoded, Name: result.FileName}
	}
	if resolved.Form() == media.FormAny {
		return nil, fmt.Errorf("%s returned no file", action)
	}
	return resolved, nil
}
