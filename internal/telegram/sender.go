package telegram

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go_bridge/internal/bridge/forward"
	"go_bridge/internal/bridge/media"
	"go_bridge/internal/bridge/models"
	"go_bridge/internal/logger"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

const (
	captionLimit  = 1024 // 媒体说明长度上限
	albumMaxItems = 10   // 单个相册最多 10 项
)

// API Sender 用到的 Bot API 子集（*bot.Bot 实现）
type API interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*botModels.Message, error)
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*botModels.Message, error)
	SendVideo(ctx context.Context, params *bot.SendVideoParams) (*botModels.Message, error)
	SendVoice(ctx context.Context, params *bot.SendVoiceParams) (*botModels.Message, error)
	SendAudio(ctx context.Context, params *bot.SendAudioParams) (*botModels.Message, error)
	SendDocument(ctx context.Context, params *bot.SendDocumentParams) (*botModels.Message, error)
	SendMediaGroup(ctx context.Context, params *bot.SendMediaGroupParams) ([]*botModels.Message, error)
	DeleteMessage(ctx context.Context, params *bot.DeleteMessageParams) (bool, error)
}

// Sender B 侧投递实现
type Sender struct {
	api     API
	limiter *RateLimiter
}

// NewSender 创建 B 侧投递器
func NewSender(api API, limiter *RateLimiter) *Sender {
	return &Sender{api: api, limiter: limiter}
}

// SupportsAlbum B 侧支持相册
func (s *Sender) SupportsAlbum() bool {
	return true
}

// Send 发送文本或单个媒体（文本作为说明）
//
// 带链接预览的文本或超长说明先单独发送文本，再发送不带说明的媒体。
func (s *Sender) Send(ctx context.Context, dest forward.Destination, out *forward.Outbound) (*forward.SendResult, error) {
	result := &forward.SendResult{}

	if len(out.Media) == 0 {
		id, err := s.sendText(ctx, dest, out)
		if err != nil {
			return nil, err
		}
		result.MessageIDs = append(result.MessageIDs, id)
		return result, nil
	}

	caption := out.Text
	replyTo := out.ReplyToID
	if out.Text != "" && (out.LinkPreview != nil || len([]rune(out.Text)) > captionLimit) {
		id, err := s.sendText(ctx, dest, out)
		if err != nil {
			return nil, err
		}
		result.MessageIDs = append(result.MessageIDs, id)
		caption = ""
		replyTo = 0
	}

	for _, item := range out.Media {
		id, err := s.sendMedia(ctx, dest, item, caption, out.HTML, replyTo)
		if err != nil {
			if len(result.MessageIDs) > 0 {
				return result, err
			}
			return nil, err
		}
		result.MessageIDs = append(result.MessageIDs, id)
		caption = ""
		replyTo = 0
	}
	return result, nil
}

// SendMediaAlbum 以相册发送，超过 10 项时拆分为多个相册
func (s *Sender) SendMediaAlbum(ctx context.Context, dest forward.Destination, items []models.MediaSegment, opts forward.AlbumOptions) (*forward.SendResult, error) {
	result := &forward.SendResult{}

	for start := 0; start < len(items); start += albumMaxItems {
		end := min(start+albumMaxItems, len(items))
		chunk := items[start:end]

		caption := ""
		replyTo := int64(0)
		if start == 0 {
			caption = truncateRunes(opts.Caption, captionLimit)
			replyTo = opts.ReplyToID
		}

		var messages []*botModels.Message
		err := s.withRetry(ctx, dest.ChatID, "Send media group", shouldRetryDispatch, func(ctx context.Context) error {
			inputs, err := buildInputMedia(chunk, caption, opts.HTML)
			if err != nil {
				return err
			}
			messages, err = s.api.SendMediaGroup(ctx, &bot.SendMediaGroupParams{
				ChatID:          dest.ChatID,
				MessageThreadID: threadID(dest),
				Media:           inputs,
				ReplyParameters: replyParameters(replyTo),
			})
			return err
		})
		if err != nil {
			return partial(result, fmt.Errorf("send media group failed: %w", err))
		}
		for _, m := range messages {
			result.MessageIDs = append(result.MessageIDs, int64(m.ID))
		}
	}
	return result, nil
}

// Delete 删除消息
func (s *Sender) Delete(ctx context.Context, dest forward.Destination, msgID int64) error {
	err := s.withRetry(ctx, dest.ChatID, "Delete message", shouldRetrySend, func(ctx context.Context) error {
		_, err := s.api.DeleteMessage(ctx, &bot.DeleteMessageParams{
			ChatID:    dest.ChatID,
			MessageID: int(msgID),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("delete message failed: %w", err)
	}
	return nil
}

func (s *Sender) sendText(ctx context.Context, dest forward.Destination, out *forward.Outbound) (int64, error) {
	params := &bot.SendMessageParams{
		ChatID:          dest.ChatID,
		MessageThreadID: threadID(dest),
		Text:            out.Text,
		ReplyParameters: replyParameters(out.ReplyToID),
	}
	if out.HTML {
		params.ParseMode = botModels.ParseModeHTML
	}
	if out.LinkPreview != nil {
		params.LinkPreviewOptions = &botModels.LinkPreviewOptions{
			URL:              ptr(out.LinkPreview.URL),
			ShowAboveText:    ptr(out.LinkPreview.ShowAboveText),
			PreferSmallMedia: ptr(out.LinkPreview.PreferSmall),
		}
	}

	var msg *botModels.Message
	err := s.withRetry(ctx, dest.ChatID, "Send message", shouldRetryDispatch, func(ctx context.Context) error {
		var err error
		msg, err = s.api.SendMessage(ctx, params)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("send message failed: %w", err)
	}
	return int64(msg.ID), nil
}

func (s *Sender) sendMedia(ctx context.Context, dest forward.Destination, item models.MediaSegment, caption string, html bool, replyTo int64) (int64, error) {
	var parseMode botModels.ParseMode
	if html && caption != "" {
		parseMode = botModels.ParseModeHTML
	}
	chatID := dest.ChatID
	thread := threadID(dest)
	reply := replyParameters(replyTo)

	var msg *botModels.Message
	err := s.withRetry(ctx, chatID, "Send "+string(item.Kind()), shouldRetryDispatch, func(ctx context.Context) error {
		// 每次尝试重新打开载体，上一次失败可能已读取过 reader
		file, err := inputFile(item.MediaRef())
		if err != nil {
			return err
		}

		switch seg := item.(type) {
		case *models.Image:
			msg, err = s.api.SendPhoto(ctx, &bot.SendPhotoParams{
				ChatID: chatID, MessageThreadID: thread, Photo: file,
				Caption: caption, ParseMode: parseMode, ReplyParameters: reply,
			})
		case *models.Video:
			msg, err = s.api.SendVideo(ctx, &bot.SendVideoParams{
				ChatID: chatID, MessageThreadID: thread, Video: file,
				Caption: caption, ParseMode: parseMode, ReplyParameters: reply,
			})
		case *models.Audio:
			if seg.Voice {
				msg, err = s.api.SendVoice(ctx, &bot.SendVoiceParams{
					ChatID: chatID, MessageThreadID: thread, Voice: file, Duration: seg.Duration,
					Caption: caption, ParseMode: parseMode, ReplyParameters: reply,
				})
			} else {
				msg, err = s.api.SendAudio(ctx, &bot.SendAudioParams{
					ChatID: chatID, MessageThreadID: thread, Audio: file, Duration: seg.Duration,
					Caption: caption, ParseMode: parseMode, ReplyParameters: reply,
				})
			}
		default:
			msg, err = s.api.SendDocument(ctx, &bot.SendDocumentParams{
				ChatID: chatID, MessageThreadID: thread, Document: file,
				Caption: caption, ParseMode: parseMode, ReplyParameters: reply,
			})
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("send %s failed: %w", item.Kind(), err)
	}
	return int64(msg.ID), nil
}

func (s *Sender) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait error: %w", err)
	}
	return nil
}

// buildInputMedia 相册项：内存/本地文件以 attach:// 上传，URL 直接引用
func buildInputMedia(items []models.MediaSegment, caption string, html bool) ([]botModels.InputMedia, error) {
	var parseMode botModels.ParseMode
	if html && caption != "" {
		parseMode = botModels.ParseModeHTML
	}

	result := make([]botModels.InputMedia, 0, len(items))
	for i, item := range items {
		ref, attachment, err := mediaSource(item.MediaRef(), i)
		if err != nil {
			return nil, err
		}

		itemCaption := ""
		if i == 0 {
			itemCaption = caption
		}

		switch item.(type) {
		case *models.Image:
			result = append(result, &botModels.InputMediaPhoto{
				Media: ref, MediaAttachment: attachment, Caption: itemCaption, ParseMode: parseMode,
			})
		case *models.Video:
			result = append(result, &botModels.InputMediaVideo{
				Media: ref, MediaAttachment: attachment, Caption: itemCaption, ParseMode: parseMode,
			})
		case *models.Audio:
			result = append(result, &botModels.InputMediaAudio{
				Media: ref, MediaAttachment: attachment, Caption: itemCaption, ParseMode: parseMode,
			})
		default:
			result = append(result, &botModels.InputMediaDocument{
				Media: ref, MediaAttachment: attachment, Caption: itemCaption, ParseMode: parseMode,
			})
		}
	}
	return result, nil
}

func mediaSource(m *models.Media, index int) (string, io.Reader, error) {
	switch {
	case len(m.Data) > 0:
		return fmt.Sprintf("attach://file%d", index), bytes.NewReader(m.Data), nil
	case m.Path != "":
		data, err := os.ReadFile(m.Path)
		if err != nil {
			return "", nil, fmt.Errorf("%w: read media file: %v", media.ErrNoPayload, err)
		}
		return fmt.Sprintf("attach://file%d", index), bytes.NewReader(data), nil
	case m.URL != "":
		return m.URL, nil, nil
	default:
		return "", nil, media.ErrNoPayload
	}
}

func inputFile(m *models.Media) (botModels.InputFile, error) {
	name := m.Name
	switch {
	case len(m.Data) > 0:
		if name == "" {
			name = "file"
		}
		return &botModels.InputFileUpload{Filename: name, Data: bytes.NewReader(m.Data)}, nil
	case m.Path != "":
		data, err := os.ReadFile(m.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: read media file: %v", media.ErrNoPayload, err)
		}
		if name == "" {
			name = filepath.Base(m.Path)
		}
		return &botModels.InputFileUpload{Filename: name, Data: bytes.NewReader(data)}, nil
	case m.URL != "":
		return &botModels.InputFileString{Data: m.URL}, nil
	default:
		return nil, media.ErrNoPayload
	}
}

func threadID(dest forward.Destination) int {
	if dest.ThreadID == nil {
		return 0
	}
	return int(*dest.ThreadID)
}

func replyParameters(msgID int64) *botModels.ReplyParameters {
	if msgID <= 0 {
		return nil
	}
	return &botModels.ReplyParameters{
		MessageID:                int(msgID),
		AllowSendingWithoutReply: true,
	}
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	logger.L().Debugf("Caption truncated: length=%d limit=%d", len(runes), limit)
	return string(runes[:limit])
}

func partial(result *forward.SendResult, err error) (*forward.SendResult, error) {
	if len(result.MessageIDs) == 0 {
		return nil, err
	}
	return result, err
}

func ptr[T any](v T) *T {
	return &v
}
