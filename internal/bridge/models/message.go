package models

import (
	"strings"
	"time"
)

// Platform 消息来源平台
type Platform string

const (
	PlatformA Platform = "side_a"
	PlatformB Platform = "side_b"
)

// SourceDirection 从该平台出发的转发方向
func (p Platform) SourceDirection() Direction {
	if p == PlatformB {
		return DirectionBToA
	}
	return DirectionAToB
}

// Sender 发送者
type Sender struct {
	ID     string
	Name   string
	Avatar string
}

// Chat 会话
type Chat struct {
	ID   int64
	Type string
	Name string
}

// Metadata 平台原始信息（仅用于提取话题、回复指针等）
type Metadata struct {
	Raw          any
	Seq          int64  // A 侧消息序号
	Rand         int64  // A 侧消息随机数
	ThreadID     *int64 // B 侧话题 ID
	MediaGroupID string // B 侧媒体组 ID
}

// UnifiedMessage 两侧共用的消息结构，仅由创建它的转发任务持有
type UnifiedMessage struct {
	ID        int64
	Platform  Platform
	Sender    Sender
	Chat      Chat
	Timestamp time.Time
	Content   []Segment
	Metadata  Metadata
}

// Text 拼接全部文本段
func (m *UnifiedMessage) Text() string {
	var b strings.Builder
	for _, seg := range m.Content {
		if t, ok := seg.(*Text); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

// Reply 返回第一个回复段
func (m *UnifiedMessage) Reply() *Reply {
	for _, seg := range m.Content {
		if r, ok := seg.(*Reply); ok {
			return r
		}
	}
	return nil
}

// MediaCount 媒体段数量
func (m *UnifiedMessage) MediaCount() int {
	count := 0
	for _, seg := range m.Content {
		if _, ok := seg.(MediaSegment); ok {
			count++
		}
	}
	return count
}

// Direction 该消息的转发方向
func (m *UnifiedMessage) Direction() Direction {
	return m.Platform.SourceDirection()
}
