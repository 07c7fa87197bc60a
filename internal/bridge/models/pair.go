package models

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Pair 标志位
const (
	FlagNoRecall     uint32 = 1 << 0 // 不同步撤回
	FlagNoRichHeader uint32 = 1 << 1 // 禁用富头像预览
)

// ForwardPair 房间绑定（A 侧群 <-> B 侧会话/话题）
type ForwardPair struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	InstanceID     int64              `bson:"instance_id"`               // 所属实例（租户）
	SideARoomID    int64              `bson:"side_a_room_id"`            // A 侧群号
	SideBChatID    int64              `bson:"side_b_chat_id"`            // B 侧 Chat ID
	SideBThreadID  *int64             `bson:"side_b_thread_id"`          // B 侧话题 ID（nil 表示无话题）
	Flags          uint32             `bson:"flags"`                     // 标志位
	ForwardMode    string             `bson:"forward_mode,omitempty"`    // 转发方向覆盖，如 "10"，空表示沿用实例默认
	NicknameMode   string             `bson:"nickname_mode,omitempty"`   // 昵称显示覆盖
	APIKey         string             `bson:"api_key,omitempty"`         // 富头像能力密钥
	IgnorePattern  string             `bson:"ignore_pattern,omitempty"`  // 忽略消息的正则
	IgnoredSenders []string           `bson:"ignored_senders,omitempty"` // 忽略的发送者 ID
	CreatedAt      time.Time          `bson:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at"`

	ignoreRe *regexp.Regexp // IgnorePattern 编译结果，由 CompileIgnorePattern 设置
}

// HasFlag 是否设置了指定标志
func (p *ForwardPair) HasFlag(flag uint32) bool {
	return p.Flags&flag != 0
}

// SideBKey 返回 B 侧索引键
func (p *ForwardPair) SideBKey() SideBKey {
	return NewSideBKey(p.SideBChatID, p.SideBThreadID)
}

// EffectiveForwardMode 返回生效的转发方向（覆盖优先，解析失败时回退默认）
func (p *ForwardPair) EffectiveForwardMode(fallback Mode) Mode {
	return overrideMode(p.ForwardMode, fallback)
}

// EffectiveNicknameMode 返回生效的昵称显示模式
func (p *ForwardPair) EffectiveNicknameMode(fallback Mode) Mode {
	return overrideMode(p.NicknameMode, fallback)
}

func overrideMode(pattern string, fallback Mode) Mode {
	if strings.TrimSpace(pattern) == "" {
		return fallback
	}
	mode, err := ParseMode(pattern)
	if err != nil {
		return fallback
	}
	return mode
}

// CompileIgnorePattern 编译忽略正则并缓存在绑定上，应在绑定进入注册表前调用
//
// 正则无效时清空缓存并返回错误，此时只按发送者忽略。
func (p *ForwardPair) CompileIgnorePattern() error {
	p.ignoreRe = nil
	if p.IgnorePattern == "" {
		return nil
	}
	re, err := regexp.Compile(p.IgnorePattern)
	if err != nil {
		return fmt.Errorf("invalid ignore pattern %q: %w", p.IgnorePattern, err)
	}
	p.ignoreRe = re
	return nil
}

// IsIgnored 判断消息是否命中忽略规则
func (p *ForwardPair) IsIgnored(senderID, text string) bool {
	if slices.Contains(p.IgnoredSenders, senderID) {
		return true
	}
	if p.ignoreRe == nil || text == "" {
		return false
	}
	return p.ignoreRe.MatchString(text)
}

// Clone 深拷贝，避免调用方修改注册表中的快照
func (p *ForwardPair) Clone() *ForwardPair {
	if p == nil {
		return nil
	}
	clone := *p
	if p.SideBThreadID != nil {
		thread := *p.SideBThreadID
		clone.SideBThreadID = &thread
	}
	clone.IgnoredSenders = slices.Clone(p.IgnoredSenders)
	return &clone
}

func (p *ForwardPair) String() string {
	return fmt.Sprintf("%d->%s", p.SideARoomID, p.SideBKey())
}

// SideBKey B 侧查找键（chat + 可选话题）
type SideBKey struct {
	ChatID    int64
	ThreadID  int64
	HasThread bool
}

// NewSideBKey 构造 B 侧查找键
func NewSideBKey(chatID int64, threadID *int64) SideBKey {
	if threadID == nil {
		return SideBKey{ChatID: chatID}
	}
	return SideBKey{ChatID: chatID, ThreadID: *threadID, HasThread: true}
}

// Threadless 清除话题后的键
func (k SideBKey) Threadless() SideBKey {
	return SideBKey{ChatID: k.ChatID}
}

func (k SideBKey) String() string {
	if !k.HasThread {
		return fmt.Sprintf("%d", k.ChatID)
	}
	return fmt.Sprintf("%d/%d", k.ChatID, k.ThreadID)
}
