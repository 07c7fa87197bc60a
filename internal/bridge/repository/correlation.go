package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go_bridge/internal/bridge/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoCorrelationRepository 消息对应关系数据访问层（MongoDB 实现）
type MongoCorrelationRepository struct {
	collection *mongo.Collection
}

// NewMongoCorrelationRepository 创建对应关系 Repository
func NewMongoCorrelationRepository(db *mongo.Database) CorrelationRepository {
	return &MongoCorrelationRepository{
		collection: db.Collection("message_correlations"),
	}
}

// Create 写入一条对应关系
func (r *MongoCorrelationRepository) Create(ctx context.Context, record *models.CorrelationRecord) error {
	if record.ID.IsZero() {
		record.ID = primitive.NewObjectID()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	if record.CreatedAtEpoch == 0 {
		record.CreatedAtEpoch = record.CreatedAt.Unix()
	}

	if _, err := r.collection.InsertOne(ctx, record); err != nil {
		return fmt.Errorf("failed to create correlation record: %w", err)
	}
	return nil
}

// FindBySideA 按 A 侧坐标查询
func (r *MongoCorrelationRepository) FindBySideA(ctx context.Context, instanceID, roomID, seq int64) (*models.CorrelationRecord, error) {
	filter := bson.M{
		"instance_id":    instanceID,
		"side_a_room_id": roomID,
		"side_a_seq":     seq,
	}
	return r.findOne(ctx, filter)
}

// FindBySideB 按 B 侧坐标查询
func (r *MongoCorrelationRepository) FindBySideB(ctx context.Context, instanceID, chatID, msgID int64) (*models.CorrelationRecord, error) {
	filter := bson.M{
		"instance_id":    instanceID,
		"side_b_chat_id": chatID,
		"side_b_msg_id":  msgID,
	}
	return r.findOne(ctx, filter)
}

func (r *MongoCorrelationRepository) findOne(ctx context.Context, filter bson.M) (*models.CorrelationRecord, error) {
	var record models.CorrelationRecord
	err := r.collection.FindOne(ctx, filter).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find correlation record: %w", err)
	}
	return &record, nil
}

// SetSuppressed 标记不再级联删除
func (r *MongoCorrelationRepository) SetSuppressed(ctx context.Context, id primitive.ObjectID) error {
	update := bson.M{"$set": bson.M{"suppress_cascade_delete": true}}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to mark correlation suppressed: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("correlation record not found: %s", id.Hex())
	}
	return nil
}

// EnsureIndexes 确保索引存在
func (r *MongoCorrelationRepository) EnsureIndexes(ctx context.Context, ttlSeconds int32) error {
	indexes := []mongo.IndexModel{
		// A 侧查找（唯一：每条已投递消息只有一行）
		{
			Keys: bson.D{
				{Key: "instance_id", Value: 1},
				{Key: "side_a_room_id", Value: 1},
				{Key: "side_a_seq", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		// B 侧查找
		{
			Keys: bson.D{
				{Key: "instance_id", Value: 1},
				{Key: "side_b_chat_id", Value: 1},
				{Key: "side_b_msg_id", Value: 1},
			},
		},
	}

	// TTL 索引（保留策略）
	if ttlSeconds > 0 {
		indexes = append(indexes, mongo.IndexModel{
			Keys:    bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(ttlSeconds),
		})
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes for message_correlations: %w", err)
	}
	return nil
}
