package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CorrelationRecord A 侧消息与 B 侧消息的对应关系（用于回复定位与撤回同步）
type CorrelationRecord struct {
	ID                    primitive.ObjectID `bson:"_id,omitempty"`
	InstanceID            int64              `bson:"instance_id"`
	SideARoomID           int64              `bson:"side_a_room_id"`
	SideASenderID         string             `bson:"side_a_sender_id"`
	SideASeq              int64              `bson:"side_a_seq"`
	SideARand             int64              `bson:"side_a_rand"`
	SideBChatID           int64              `bson:"side_b_chat_id"`
	SideBMsgID            int64              `bson:"side_b_msg_id"`
	SideBSenderID         string             `bson:"side_b_sender_id"`
	CreatedAtEpoch        int64              `bson:"created_at_epoch"`
	CreatedAt             time.Time          `bson:"created_at"` // TTL 索引字段
	BriefText             string             `bson:"brief_text,omitempty"`
	SuppressCascadeDelete bool               `bson:"suppress_cascade_delete"`
}

// SourceRef 由 B 侧消息反查到的 A 侧来源
type SourceRef struct {
	Seq      int64
	RoomID   int64
	SenderID string
	Time     time.Time
}

// BriefTextLimit 摘要最大字符数
const BriefTextLimit = 64

// Brief 截断文本用于摘要
func Brief(text string) string {
	runes := []rune(text)
	if len(runes) <= BriefTextLimit {
		return text
	}
	return string(runes[:BriefTextLimit]) + "…"
}
