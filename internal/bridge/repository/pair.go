package repository

import (
	"context"
	"fmt"
	"time"

	"go_bridge/internal/bridge/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoPairRepository 房间绑定数据访问层（MongoDB 实现）
type MongoPairRepository struct {
	collection *mongo.Collection
}

// NewMongoPairRepository 创建绑定 Repository
func NewMongoPairRepository(db *mongo.Database) PairRepository {
	return &MongoPairRepository{
		collection: db.Collection("forward_pairs"),
	}
}

// ListByInstance 列出实例下的全部绑定
func (r *MongoPairRepository) ListByInstance(ctx context.Context, instanceID int64) ([]*models.ForwardPair, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"instance_id": instanceID})
	if err != nil {
		return nil, fmt.Errorf("failed to list forward pairs: %w", err)
	}
	defer cursor.Close(ctx)

	var pairs []*models.ForwardPair
	if err := cursor.All(ctx, &pairs); err != nil {
		return nil, fmt.Errorf("failed to decode forward pairs: %w", err)
	}
	return pairs, nil
}

// Create 创建绑定
func (r *MongoPairRepository) Create(ctx context.Context, pair *models.ForwardPair) error {
	now := time.Now()
	if pair.ID.IsZero() {
		pair.ID = primitive.NewObjectID()
	}
	pair.CreatedAt = now
	pair.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, pair); err != nil {
		return fmt.Errorf("failed to create forward pair: %w", err)
	}
	return nil
}

// Update 更新绑定
func (r *MongoPairRepository) Update(ctx context.Context, pair *models.ForwardPair) error {
	pair.UpdatedAt = time.Now()

	update := bson.M{
		"$set": bson.M{
			"side_a_room_id":   pair.SideARoomID,
			"side_b_chat_id":   pair.SideBChatID,
			"side_b_thread_id": pair.SideBThreadID,
			"flags":            pair.Flags,
			"forward_mode":     pair.ForwardMode,
			"nickname_mode":    pair.NicknameMode,
			"api_key":          pair.APIKey,
			"ignore_pattern":   pair.IgnorePattern,
			"ignored_senders":  pair.IgnoredSenders,
			"updated_at":       pair.UpdatedAt,
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": pair.ID}, update)
	if err != nil {
		return fmt.Errorf("failed to update forward pair: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("forward pair not found: %s", pair.ID.Hex())
	}
	return nil
}

// Delete 删除绑定
func (r *MongoPairRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete forward pair: %w", err)
	}
	return nil
}

// EnsureIndexes 确保索引存在
func (r *MongoPairRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		// 每个 A 侧群最多一个绑定
		{
			Keys: bson.D{
				{Key: "instance_id", Value: 1},
				{Key: "side_a_room_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		// 每个 B 侧 (会话, 话题) 最多一个绑定
		{
			Keys: bson.D{
				{Key: "instance_id", Value: 1},
				{Key: "side_b_chat_id", Value: 1},
				{Key: "side_b_thread_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes for forward_pairs: %w", err)
	}
	return nil
}
