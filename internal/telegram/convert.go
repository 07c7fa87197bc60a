package telegram

import (
	"fmt"
	"strings"
	"time"

	"go_bridge/internal/bridge/models"

	botModels "github.com/go-telegram/bot/models"
)

// ToUnified 把 Telegram 消息转换为统一消息，不支持的会话类型返回 nil
func ToUnified(msg *botModels.Message) *models.UnifiedMessage {
	if msg == nil {
		return nil
	}
	switch msg.Chat.Type {
	case botModels.ChatTypeGroup, botModels.ChatTypeSupergroup, botModels.ChatTypeChannel:
	default:
		return nil
	}

	unified := &models.UnifiedMessage{
		ID:       int64(msg.ID),
		Platform: models.PlatformB,
		Sender:   senderOf(msg),
		Chat: models.Chat{
			ID:   msg.Chat.ID,
			Type: string(msg.Chat.Type),
			Name: msg.Chat.Title,
		},
		Timestamp: time.Unix(int64(msg.Date), 0),
		Metadata: models.Metadata{
			Raw:          msg,
			ThreadID:     threadOf(msg),
			MediaGroupID: msg.MediaGroupID,
		},
	}

	if reply := replyOf(msg); reply != nil {
		unified.Content = append(unified.Content, reply)
	}
	if text := firstNonEmpty(msg.Text, msg.Caption); text != "" {
		unified.Content = append(unified.Content, &models.Text{Text: text})
	}
	unified.Content = append(unified.Content, attachmentsOf(msg)...)
	return unified
}

func senderOf(msg *botModels.Message) models.Sender {
	if msg.SenderChat != nil {
		return models.Sender{
			ID:   fmt.Sprintf("%d", msg.SenderChat.ID),
			Name: msg.SenderChat.Title,
		}
	}
	if msg.From == nil {
		return models.Sender{Name: msg.Chat.Title}
	}

	name := strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	if name == "" {
		name = msg.From.Username
	}
	return models.Sender{
		ID:   fmt.Sprintf("%d", msg.From.ID),
		Name: name,
	}
}

// threadOf 仅论坛话题消息携带话题 ID
func threadOf(msg *botModels.Message) *int64 {
	if !msg.IsTopicMessage || msg.MessageThreadID == 0 {
		return nil
	}
	id := int64(msg.MessageThreadID)
	return &id
}

// replyOf 话题内的消息默认回复话题创建消息，不算作回复
func replyOf(msg *botModels.Message) *models.Reply {
	target := msg.ReplyToMessage
	if target == nil {
		return nil
	}
	if msg.IsTopicMessage && target.ID == msg.MessageThreadID {
		return nil
	}

	reply := &models.Reply{
		MessageID: int64(target.ID),
		Text:      firstNonEmpty(target.Text, target.Caption),
	}
	reply.SenderName = senderOf(target).Name
	return reply
}

func attachmentsOf(msg *botModels.Message) []models.Segment {
	var segments []models.Segment

	if n := len(msg.Photo); n > 0 {
		largest := msg.Photo[n-1]
		segments = append(segments, &models.Image{Media: models.Media{
			Handle: largest.FileID,
			Name:   "photo.jpg",
			Size:   int64(largest.FileSize),
		}})
	}
	if v := msg.Video; v != nil {
		segments = append(segments, &models.Video{Media: models.Media{
			Handle:   v.FileID,
			Name:     firstNonEmpty(v.FileName, "video.mp4"),
			MimeType: v.MimeType,
			Size:     int64(v.FileSize),
		}})
	}
	if a := msg.Animation; a != nil && msg.Document == nil {
		segments = append(segments, &models.Video{Media: models.Media{
			Handle:   a.FileID,
			Name:     firstNonEmpty(a.FileName, "animation.mp4"),
			MimeType: a.MimeType,
			Size:     int64(a.FileSize),
		}})
	}
	if v := msg.Voice; v != nil {
		segments = append(segments, &models.Audio{
			Media: models.Media{
				Handle:   v.FileID,
				Name:     "voice.ogg",
				MimeType: v.MimeType,
				Size:     int64(v.FileSize),
			},
			Duration: v.Duration,
			Voice:    true,
		})
	}
	if a := msg.Audio; a != nil {
		segments = append(segments, &models.Audio{
			Media: models.Media{
				Handle:   a.FileID,
				Name:     firstNonEmpty(a.FileName, "audio.mp3"),
				MimeType: a.MimeType,
				Size:     int64(a.FileSize),
			},
			Duration: a.Duration,
		})
	}
	if d := msg.Document; d != nil {
		segments = append(segments, &models.File{Media: models.Media{
			Handle:   d.FileID,
			Name:     firstNonEmpty(d.FileName, "file"),
			MimeType: d.MimeType,
			Size:     int64(d.FileSize),
		}})
	}
	if s := msg.Sticker; s != nil {
		name := "sticker.webp"
		switch {
		case s.IsVideo:
			name = "sticker.webm"
		case s.IsAnimated:
			name = "sticker.tgs"
		}
		segments = append(segments, &models.Image{
			Media:   models.Media{Handle: s.FileID, Name: name, Size: int64(s.FileSize)},
			Sticker: true,
		})
	}
	if v := msg.Venue; v != nil {
		segments = append(segments, &models.Location{
			Latitude:  v.Location.Latitude,
			Longitude: v.Location.Longitude,
			Title:     v.Title,
		})
	} else if l := msg.Location; l != nil {
		segments = append(segments, &models.Location{
			Latitude:  l.Latitude,
			Longitude: l.Longitude,
		})
	}
	if d := msg.Dice; d != nil {
		segments = append(segments, &models.Dice{Emoji: d.Emoji, Value: d.Value})
	}
	return segments
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
