package telegram

import (
	"context"
	"fmt"
	"path"

	"go_bridge/internal/bridge/media"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

// FileAPI 文件下载用到的 Bot API 子集
type FileAPI interface {
	GetFile(ctx context.Context, params *bot.GetFileParams) (*botModels.File, error)
	FileDownloadLink(f *botModels.File) string
}

// Downloader 通过 file_id 换取下载地址
type Downloader struct {
	api FileAPI
}

// NewDownloader 创建 B 侧原生下载器
func NewDownloader(api FileAPI) *Downloader {
	return &Downloader{api: api}
}

// Download 解析 file_id，返回带文件名的下载 URL
func (d *Downloader) Download(ctx context.Context, handle string) (*media.Resolved, error) {
	if handle == "" {
		return nil, fmt.Errorf("empty file id")
	}

	file, err := d.api.GetFile(ctx, &bot.GetFileParams{FileID: handle})
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	if file.FilePath == "" {
		return nil, fmt.Errorf("file %s has no download path", handle)
	}

	return &media.Resolved{
		URL:  d.api.FileDownloadLink(file),
		Name: path.Base(file.FilePath),
	}, nil
}
