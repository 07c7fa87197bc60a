package repository

import (
	"context"

	"go_bridge/internal/bridge/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PairRepository 房间绑定数据访问接口
type PairRepository interface {
	// ListByInstance 列出实例下的全部绑定
	ListByInstance(ctx context.Context, instanceID int64) ([]*models.ForwardPair, error)

	// Create 创建绑定（写回 ID）
	Create(ctx context.Context, pair *models.ForwardPair) error

	// Update 更新绑定目标与配置
	Update(ctx context.Context, pair *models.ForwardPair) error

	// Delete 删除绑定
	Delete(ctx context.Context, id primitive.ObjectID) error

	// EnsureIndexes 确保索引存在
	EnsureIndexes(ctx context.Context) error
}

// CorrelationRepository 消息对应关系数据访问接口
type CorrelationRepository interface {
	// Create 写入一条对应关系
	Create(ctx context.Context, record *models.CorrelationRecord) error

	// FindBySideA 按 (实例, A 侧群, 序号) 查询，不存在时返回 nil, nil
	FindBySideA(ctx context.Context, instanceID, roomID, seq int64) (*models.CorrelationRecord, error)

	// FindBySideB 按 (实例, B 侧会话, 消息 ID) 查询，不存在时返回 nil, nil
	FindBySideB(ctx context.Context, instanceID, chatID, msgID int64) (*models.CorrelationRecord, error)

	// SetSuppressed 标记不再级联删除
	SetSuppressed(ctx context.Context, id primitive.ObjectID) error

	// EnsureIndexes 确保索引存在，ttlSeconds 为保留时长
	EnsureIndexes(ctx context.Context, ttlSeconds int32) error
}
