package models

import "fmt"

// SegmentKind 消息段类型
type SegmentKind string

const (
	SegmentText     SegmentKind = "text"
	SegmentImage    SegmentKind = "image"
	SegmentVideo    SegmentKind = "video"
	SegmentAudio    SegmentKind = "audio"
	SegmentFile     SegmentKind = "file"
	SegmentAt       SegmentKind = "at"
	SegmentReply    SegmentKind = "reply"
	SegmentForward  SegmentKind = "forward"
	SegmentLocation SegmentKind = "location"
	SegmentFace     SegmentKind = "face"
	SegmentDice     SegmentKind = "dice"
)

// Segment 封闭的消息段集合
type Segment interface {
	Kind() SegmentKind
	segment()
}

// Media 媒体引用：缓冲区 / 本地路径 / 远程 URL / 平台原生句柄，任意组合
type Media struct {
	Data     []byte
	Path     string
	URL      string
	Handle   string
	Name     string
	MimeType string
	Size     int64
}

// HasSource 是否携带任一来源
func (m *Media) HasSource() bool {
	return len(m.Data) > 0 || m.Path != "" || m.URL != "" || m.Handle != ""
}

// MediaSegment 携带媒体的消息段
type MediaSegment interface {
	Segment
	MediaRef() *Media
}

type Text struct{ Text string }

type Image struct {
	Media
	Sticker bool
}

type Video struct{ Media }

type Audio struct {
	Media
	Duration int
	Voice    bool
}

type File struct{ Media }

type At struct {
	UserID string
	Name   string
}

// Reply 回复引用，MessageID 为来源平台的消息 ID
type Reply struct {
	MessageID  int64
	SenderName string
	Text       string
}

// Forward 合并转发
type Forward struct {
	ID      string
	Summary string
}

type Location struct {
	Latitude  float64
	Longitude float64
	Title     string
}

type Face struct {
	ID   string
	Name string
}

type Dice struct {
	Emoji string
	Value int
}

func (*Text) Kind() SegmentKind     { return SegmentText }
func (*Image) Kind() SegmentKind    { return SegmentImage }
func (*Video) Kind() SegmentKind    { return SegmentVideo }
func (*Audio) Kind() SegmentKind    { return SegmentAudio }
func (*File) Kind() SegmentKind     { return SegmentFile }
func (*At) Kind() SegmentKind       { return SegmentAt }
func (*Reply) Kind() SegmentKind    { return SegmentReply }
func (*Forward) Kind() SegmentKind  { return SegmentForward }
func (*Location) Kind() SegmentKind { return SegmentLocation }
func (*Face) Kind() SegmentKind     { return SegmentFace }
func (*Dice) Kind() SegmentKind     { return SegmentDice }

func (*Text) segment()     {}
func (*Image) segment()    {}
func (*Video) segment()    {}
func (*Audio) segment()    {}
func (*File) segment()     {}
func (*At) segment()       {}
func (*Reply) segment()    {}
func (*Forward) segment()  {}
func (*Location) segment() {}
func (*Face) segment()     {}
func (*Dice) segment()     {}

func (s *Image) MediaRef() *Media { return &s.Media }
func (s *Video) MediaRef() *Media { return &s.Media }
func (s *Audio) MediaRef() *Media { return &s.Media }
func (s *File) MediaRef() *Media  { return &s.Media }

// Placeholder 媒体处理失败或无法投递时的文本占位
func Placeholder(seg Segment) string {
	switch s := seg.(type) {
	case *Image:
		if s.Sticker {
			return "[Sticker]"
		}
		return "[Image]"
	case *Video:
		return "[Video]"
	case *Audio:
		return "[Voice]"
	case *File:
		if s.Name != "" {
			return fmt.Sprintf("[File: %s]", s.Name)
		}
		return "[File]"
	case *At:
		if s.Name != "" {
			return "@" + s.Name
		}
		return "@" + s.UserID
	case *Forward:
		if s.Summary != "" {
			return "[Forwarded messages]\n" + s.Summary
		}
		return "[Forwarded messages]"
	case *Location:
		if s.Title != "" {
			return fmt.Sprintf("[Location: %s (%.6f, %.6f)]", s.Title, s.Latitude, s.Longitude)
		}
		return fmt.Sprintf("[Location: %.6f, %.6f]", s.Latitude, s.Longitude)
	case *Face:
		if s.Name != "" {
			return "[" + s.Name + "]"
		}
		return "[Face]"
	case *Dice:
		if s.Emoji != "" {
			return fmt.Sprintf("[%s %d]", s.Emoji, s.Value)
		}
		return fmt.Sprintf("[Dice %d]", s.Value)
	case *Text:
		return s.Text
	default:
		return ""
	}
}
