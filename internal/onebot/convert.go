package onebot

import (
	"strconv"
	"strings"
	"time"

	"go_bridge/internal/bridge/models"
	"go_bridge/internal/logger"
)

// 原生句柄格式 "<类型>:<标识>"，由 Downloader 解析
const (
	handleImage  = "image"
	handleRecord = "record"
	handleVideo  = "video"
	handleFile   = "file"
)

// ToUnified 把群消息事件转换为统一消息，非群消息返回 nil
func ToUnified(ev *Event) *models.UnifiedMessage {
	if ev == nil || ev.PostType != PostTypeMessage || ev.MessageType != MessageTypeGroup {
		return nil
	}

	segments, err := ev.Segments()
	if err != nil {
		logger.L().Warnf("OneBot message %d decode failed, using raw text: %v", ev.MessageID, err)
		segments = []Segment{textSegment(ev.RawMessage)}
	}

	msg := &models.UnifiedMessage{
		ID:       ev.MessageID,
		Platform: models.PlatformA,
		Sender: models.Sender{
			ID:   strconv.FormatInt(ev.UserID, 10),
			Name: senderName(ev.Sender, ev.UserID),
		},
		Chat: models.Chat{
			ID:   ev.GroupID,
			Type: MessageTypeGroup,
			Name: ev.GroupName,
		},
		Timestamp: time.Unix(ev.Time, 0),
		Metadata: models.Metadata{
			Raw: ev,
			Seq: ev.MessageID,
		},
	}
	for _, seg := range segments {
		if converted := convertSegment(seg); converted != nil {
			msg.Content = append(msg.Content, converted)
		}
	}
	return msg
}

func senderName(sender EventSender, userID int64) string {
	switch {
	case sender.Card != "":
		return sender.Card
	case sender.Nickname != "":
		return sender.Nickname
	default:
		return strconv.FormatInt(userID, 10)
	}
}

func convertSegment(seg Segment) models.Segment {
	switch seg.Type {
	case "text":
		if text := seg.Str("text"); text != "" {
			return &models.Text{Text: text}
		}
	case "image":
		return &models.Image{
			Media:   mediaOf(seg, handleImage, seg.Str("file")),
			Sticker: seg.Str("sub_type") == "1" || seg.Str("type") == "flash",
		}
	case "record":
		return &models.Audio{
			Media: mediaOf(seg, handleRecord, seg.Str("file")),
			Voice: true,
		}
	case "video":
		return &models.Video{Media: mediaOf(seg, handleVideo, seg.Str("file"))}
	case "file":
		ident := seg.Str("file_id")
		if ident == "" {
			ident = seg.Str("file")
		}
		m := mediaOf(seg, handleFile, ident)
		if name := seg.Str("name"); name != "" {
			m.Name = name
		} else if file := seg.Str("file"); file != "" {
			m.Name = file
		}
		m.Size = seg.Int("file_size")
		return &models.File{Media: m}
	case "at":
		qq := seg.Str("qq")
		name := seg.Str("name")
		if qq == "all" {
			name = "全体成员"
		}
		return &models.At{UserID: qq, Name: name}
	case "reply":
		return &models.Reply{MessageID: seg.Int("id")}
	case "face", "mface":
		return &models.Face{ID: seg.Str("id"), Name: strings.Trim(seg.Str("summary"), "[]")}
	case "forward":
		return &models.Forward{ID: seg.Str("id")}
	case "location":
		return &models.Location{
			Latitude:  seg.Float("lat"),
			Longitude: seg.Float("lon"),
			Title:     seg.Str("title"),
		}
	case "dice":
		return &models.Dice{Emoji: "🎲", Value: int(seg.Int("result"))}
	case "rps":
		return &models.Dice{Emoji: "✊", Value: int(seg.Int("result"))}
	case "json", "xml", "markdown":
		return &models.Text{Text: "[Card]"}
	}
	return nil
}

func mediaOf(seg Segment, kind, ident string) models.Media {
	m := models.Media{
		URL:  seg.Str("url"),
		Path: seg.Str("path"),
		Name: ident,
	}
	if ident != "" {
		m.Handle = kind + ":" + ident
	}
	return m
}
