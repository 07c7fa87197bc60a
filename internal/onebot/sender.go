package onebot

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"

	"go_bridge/internal/bridge/forward"
	"go_bridge/internal/bridge/media"
	"go_bridge/internal/bridge/models"
)

// Caller 动作调用能力（*Client 实现）
type Caller interface {
	Call(ctx context.Context, action string, params any) (json.RawMessage, error)
}

// Sender A 侧投递实现
//
// 图片可与文本同条发送；语音、视频、文件必须单独成条。
type Sender struct {
	caller Caller
}

// NewSender 创建 A 侧投递器
func NewSender(caller Caller) *Sender {
	return &Sender{caller: caller}
}

// SupportsAlbum 多张图片可合并为一条消息
func (s *Sender) SupportsAlbum() bool {
	return true
}

// Send 投递文本与媒体
func (s *Sender) Send(ctx context.Context, dest forward.Destination, out *forward.Outbound) (*forward.SendResult, error) {
	return s.sendCombined(ctx, dest.ChatID, out.Text, out.ReplyToID, out.Media)
}

// SendMediaAlbum 图片合并为一条消息，其余媒体逐条发送
func (s *Sender) SendMediaAlbum(ctx context.Context, dest forward.Destination, items []models.MediaSegment, opts forward.AlbumOptions) (*forward.SendResult, error) {
	return s.sendCombined(ctx, dest.ChatID, opts.Caption, opts.ReplyToID, items)
}

// Delete 撤回消息
func (s *Sender) Delete(ctx context.Context, dest forward.Destination, msgID int64) error {
	if _, err := s.caller.Call(ctx, "delete_msg", map[string]any{"message_id": msgID}); err != nil {
		return fmt.Errorf("delete message failed: %w", err)
	}
	return nil
}

func (s *Sender) sendCombined(ctx context.Context, groupID int64, text string, replyTo int64, items []models.MediaSegment) (*forward.SendResult, error) {
	var (
		head       []Segment
		standalone []Segment
	)
	if replyTo > 0 {
		head = append(head, NewSegment("reply", map[string]any{"id": strconv.FormatInt(replyTo, 10)}))
	}
	if text != "" {
		head = append(head, NewSegment("text", map[string]any{"text": text}))
	}
	for _, item := range items {
		seg, err := mediaSegment(item)
		if err != nil {
			return nil, err
		}
		if seg.Type == "image" {
			head = append(head, seg)
		} else {
			standalone = append(standalone, seg)
		}
	}

	result := &forward.SendResult{}
	if len(head) > 0 && (len(head) > 1 || replyTo == 0) {
		id, err := s.sendGroupMsg(ctx, groupID, head)
		if err != nil {
			return nil, err
		}
		result.MessageIDs = append(result.MessageIDs, id)
	}
	for _, seg := range standalone {
		id, err := s.sendGroupMsg(ctx, groupID, []Segment{seg})
		if err != nil {
			if len(result.MessageIDs) > 0 {
				return result, err
			}
			return nil, err
		}
		result.MessageIDs = append(result.MessageIDs, id)
	}
	if len(result.MessageIDs) == 0 {
		return nil, fmt.Errorf("nothing to send to group %d", groupID)
	}
	return result, nil
}

func (s *Sender) sendGroupMsg(ctx context.Context, groupID int64, message []Segment) (int64, error) {
	data, err := s.caller.Call(ctx, "send_group_msg", map[string]any{
		"group_id": groupID,
		"message":  message,
	})
	if err != nil {
		return 0, fmt.Errorf("send group message failed: %w", err)
	}

	var result sendMsgResult
	if err := json.Unmarshal(data, &result); err != nil {
		return 0, fmt.Errorf("failed to decode send result: %w", err)
	}
	return result.MessageID, nil
}

func mediaSegment(item models.MediaSegment) (Segment, error) {
	m := item.MediaRef()
	file, err := fileValue(m)
	if err != nil {
		return Segment{}, err
	}

	switch item.(type) {
	case *models.Image:
		return NewSegment("image", map[string]any{"file": file}), nil
	case *models.Audio:
		return NewSegment("record", map[string]any{"file": file}), nil
	case *models.Video:
		return NewSegment("video", map[string]any{"file": file}), nil
	default:
		name := m.Name
		if name == "" && m.Path != "" {
			name = filepath.Base(m.Path)
		}
		return NewSegment("file", map[string]any{"file": file, "name": name}), nil
	}
}

// fileValue 内存数据用 base64://，本地文件用 file://，远程直接给 URL
func fileValue(m *models.Media) (string, error) {
	switch {
	case len(m.Data) > 0:
		return "base64://" + base64.StdEncoding.EncodeToString(m.Data), nil
	case m.Path != "":
		abs, err := filepath.Abs(m.Path)
		if err != nil {
			return "", fmt.Errorf("%w: %v", media.ErrNoPayload, err)
		}
		return "file://" + filepath.ToSlash(abs), nil
	case m.URL != "":
		return m.URL, nil
	default:
		return "", media.ErrNoPayload
	}
}
