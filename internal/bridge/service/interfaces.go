package service

import (
	"context"

	"go_bridge/internal/bridge/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PairService 房间绑定解析与维护
type PairService interface {
	// ResolveBySideA 按 A 侧群查找绑定，不存在返回 nil
	ResolveBySideA(roomID int64) *models.ForwardPair

	// ResolveBySideB 按 B 侧 (会话, 话题) 查找绑定；allowThreadlessFallback 为 true 时
	// 精确匹配失败后再按无话题查找
	ResolveBySideB(chatID int64, threadID *int64, allowThreadlessFallback bool) *models.ForwardPair

	// Bind 绑定，目标已被其他 A 侧群占用时原样返回冲突的绑定
	Bind(ctx context.Context, roomID, chatID int64, threadID *int64) (*models.ForwardPair, error)

	// Unbind 解绑，未绑定时返回 false
	Unbind(ctx context.Context, roomID int64) (bool, error)

	// Reload 从存储整体替换索引
	Reload(ctx context.Context) error

	// Pairs 当前快照中的全部绑定
	Pairs() []*models.ForwardPair
}

// CorrelationService 消息对应关系
type CorrelationService interface {
	// RecordForwardedMessage 记录一条已投递的转发，失败只记录日志
	RecordForwardedMessage(ctx context.Context, msg *models.UnifiedMessage, destinationMsgID int64, pair *models.ForwardPair) *models.CorrelationRecord

	// FindDestinationID 由 A 侧消息查 B 侧消息 ID
	FindDestinationID(ctx context.Context, instanceID, roomID, seq int64) (int64, bool)

	// FindSourceOfDestination 由 B 侧消息反查 A 侧来源
	FindSourceOfDestination(ctx context.Context, instanceID, chatID, msgID int64) *models.SourceRef

	// FindBySideA 按 A 侧坐标获取完整记录
	FindBySideA(ctx context.Context, instanceID, roomID, seq int64) (*models.CorrelationRecord, error)

	// FindBySideB 按 B 侧坐标获取完整记录
	FindBySideB(ctx context.Context, instanceID, chatID, msgID int64) (*models.CorrelationRecord, error)

	// MarkSuppressed 标记不再级联删除
	MarkSuppressed(ctx context.Context, recordID primitive.ObjectID) error
}
