package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go_bridge/internal/bridge/models"
	"go_bridge/internal/bridge/repository"
	"go_bridge/internal/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CorrelationListener 记录写入成功后的回调
type CorrelationListener func(ctx context.Context, record *models.CorrelationRecord)

// CorrelationStore 消息对应关系存储
//
// 写入失败只记日志不返回错误：转发已经完成，缺少记录只影响后续回复定位与撤回同步。
type CorrelationStore struct {
	repo repository.CorrelationRepository
	now  func() time.Time

	mu        sync.RWMutex
	listeners []CorrelationListener
}

// NewCorrelationStore 创建对应关系存储
func NewCorrelationStore(repo repository.CorrelationRepository) *CorrelationStore {
	return &CorrelationStore{
		repo: repo,
		now:  time.Now,
	}
}

// OnRecorded 注册写入成功回调
func (s *CorrelationStore) OnRecorded(listener CorrelationListener) {
	if listener == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, listener)
	s.mu.Unlock()
}

// RecordForwardedMessage 记录一条已成功投递的转发
//
// msg 是源消息，destinationMsgID 是目标侧返回的消息 ID；方向由 msg.Platform 决定。
func (s *CorrelationStore) RecordForwardedMessage(ctx context.Context, msg *models.UnifiedMessage, destinationMsgID int64, pair *models.ForwardPair) *models.CorrelationRecord {
	if msg == nil || pair == nil {
		return nil
	}

	now := s.now()
	record := &models.CorrelationRecord{
		InstanceID:     pair.InstanceID,
		SideARoomID:    pair.SideARoomID,
		SideBChatID:    pair.SideBChatID,
		CreatedAt:      now,
		CreatedAtEpoch: now.Unix(),
		BriefText:      models.Brief(msg.Text()),
	}

	switch msg.Platform {
	case models.PlatformA:
		record.SideASenderID = msg.Sender.ID
		record.SideASeq = sideASeq(msg)
		record.SideARand = msg.Metadata.Rand
		record.SideBMsgID = destinationMsgID
	default:
		record.SideBSenderID = msg.Sender.ID
		record.SideBMsgID = msg.ID
		record.SideASeq = destinationMsgID
	}

	if err := s.repo.Create(ctx, record); err != nil {
		logger.L().Errorf("Failed to record correlation: pair=%s a_seq=%d b_msg=%d err=%v",
			pair, record.SideASeq, record.SideBMsgID, err)
		return nil
	}

	s.mu.RLock()
	listeners := make([]CorrelationListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	for _, listener := range listeners {
		listener(ctx, record)
	}
	return record
}

// FindDestinationID 由 A 侧消息找到 B 侧消息 ID
func (s *CorrelationStore) FindDestinationID(ctx context.Context, instanceID, roomID, seq int64) (int64, bool) {
	record, err := s.repo.FindBySideA(ctx, instanceID, roomID, seq)
	if err != nil {
		logger.L().Warnf("Correlation lookup failed: instance=%d room=%d seq=%d err=%v", instanceID, roomID, seq, err)
		return 0, false
	}
	if record == nil {
		return 0, false
	}
	return record.SideBMsgID, true
}

// FindSourceOfDestination 由 B 侧消息反查 A 侧来源
func (s *CorrelationStore) FindSourceOfDestination(ctx context.Context, instanceID, chatID, msgID int64) *models.SourceRef {
	record, err := s.repo.FindBySideB(ctx, instanceID, chatID, msgID)
	if err != nil {
		logger.L().Warnf("Correlation lookup failed: instance=%d chat=%d msg=%d err=%v", instanceID, chatID, msgID, err)
		return nil
	}
	if record == nil {
		return nil
	}
	return &models.SourceRef{
		Seq:      record.SideASeq,
		RoomID:   record.SideARoomID,
		SenderID: record.SideASenderID,
		Time:     time.Unix(record.CreatedAtEpoch, 0),
	}
}

// FindBySideA 按 A 侧坐标获取完整记录
func (s *CorrelationStore) FindBySideA(ctx context.Context, instanceID, roomID, seq int64) (*models.CorrelationRecord, error) {
	return s.repo.FindBySideA(ctx, instanceID, roomID, seq)
}

// FindBySideB 按 B 侧坐标获取完整记录
func (s *CorrelationStore) FindBySideB(ctx context.Context, instanceID, chatID, msgID int64) (*models.CorrelationRecord, error) {
	return s.repo.FindBySideB(ctx, instanceID, chatID, msgID)
}

// MarkSuppressed 标记记录不再触发级联撤回
func (s *CorrelationStore) MarkSuppressed(ctx context.Context, recordID primitive.ObjectID) error {
	if err := s.repo.SetSuppressed(ctx, recordID); err != nil {
		return fmt.Errorf("failed to suppress correlation: %w", err)
	}
	return nil
}

func sideASeq(msg *models.UnifiedMessage) int64 {
	if msg.Metadata.Seq != 0 {
		return msg.Metadata.Seq
	}
	return msg.ID
}
