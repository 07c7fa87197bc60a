package forward

import (
	"context"
	"fmt"

	"go_bridge/internal/bridge/models"
)

// dispatch 投递到目标端
//
// 两个及以上媒体且目标端支持相册：单条消息先发文本再发相册，媒体组把文本作为相册说明。
// 其余情况逐个发送，文本随第一个媒体。
// 返回的 SendResult 包含已送达的部分；第一部分失败时 MessageIDs 为空。
func dispatch(ctx context.Context, sender Sender, dest Destination, out *Outbound, captionInAlbum bool) (*SendResult, error) {
	result := &SendResult{}

	if len(out.Media) >= 2 && sender.SupportsAlbum() {
		opts := AlbumOptions{ReplyToID: out.ReplyToID}

		if captionInAlbum {
			opts.Caption = out.Text
			opts.HTML = out.HTML
		} else if out.Text != "" {
			textOnly := &Outbound{
				Text:        out.Text,
				HTML:        out.HTML,
				LinkPreview: out.LinkPreview,
				ReplyToID:   out.ReplyToID,
			}
			sent, err := sender.Send(ctx, dest, textOnly)
			if err != nil {
				return result, fmt.Errorf("send text: %w", err)
			}
			result.append(sent)
			opts.ReplyToID = 0
		}

		sent, err := sender.SendMediaAlbum(ctx, dest, out.Media, opts)
		if err != nil {
			return result, fmt.Errorf("send album: %w", err)
		}
		result.append(sent)
		return result, nil
	}

	parts := splitIndividually(out)
	for i, part := range parts {
		sent, err := sender.Send(ctx, dest, part)
		if err != nil {
			return result, fmt.Errorf("send part %d/%d: %w", i+1, len(parts), err)
		}
		result.append(sent)
	}
	return result, nil
}

func splitIndividually(out *Outbound) []*Outbound {
	first := &Outbound{
		Text:        out.Text,
		HTML:        out.HTML,
		LinkPreview: out.LinkPreview,
		ReplyToID:   out.ReplyToID,
	}
	if len(out.Media) == 0 {
		return []*Outbound{first}
	}

	first.Media = []models.MediaSegment{out.Media[0]}
	parts := []*Outbound{first}
	for _, item := range out.Media[1:] {
		parts = append(parts, &Outbound{Media: []models.MediaSegment{item}})
	}
	return parts
}

func (r *SendResult) append(other *SendResult) {
	if other == nil {
		return
	}
	r.MessageIDs = append(r.MessageIDs, other.MessageIDs...)
}
