package forward

import (
	"context"
	"errors"
	"fmt"

	"go_bridge/internal/bridge/header"
	"go_bridge/internal/bridge/models"
)

// ErrMissingCapability 目标端缺少必需的能力
var ErrMissingCapability = errors.New("missing capability")

// Destination 投递目标
type Destination struct {
	Platform models.Platform
	ChatID   int64
	ThreadID *int64
}

func (d Destination) String() string {
	if d.ThreadID == nil {
		return fmt.Sprintf("%s:%d", d.Platform, d.ChatID)
	}
	return fmt.Sprintf("%s:%d/%d", d.Platform, d.ChatID, *d.ThreadID)
}

// Outbound 一次投递的内容：文本（含昵称头）加至多一个媒体
type Outbound struct {
	Text        string
	HTML        bool
	LinkPreview *header.LinkPreview
	ReplyToID   int64
	Media       []models.MediaSegment
}

// AlbumOptions 相册投递选项
type AlbumOptions struct {
	Caption   string
	HTML      bool
	ReplyToID int64
}

// SendResult 投递结果，MessageIDs 按送达顺序排列
type SendResult struct {
	MessageIDs []int64
}

// PrimaryID 第一条送达的消息 ID
func (r *SendResult) PrimaryID() (int64, bool) {
	if r == nil || len(r.MessageIDs) == 0 {
		return 0, false
	}
	return r.MessageIDs[0], true
}

// Sender 目标端投递能力
type Sender interface {
	Send(ctx context.Context, dest Destination, msg *Outbound) (*SendResult, error)
	SendMediaAlbum(ctx context.Context, dest Destination, items []models.MediaSegment, opts AlbumOptions) (*SendResult, error)
	SupportsAlbum() bool
}

// Deleter 可选能力：撤回已投递的消息
type Deleter interface {
	Delete(ctx context.Context, dest Destination, msgID int64) error
}
