package service

import (
	"context"
	"errors"
	"sync"

	"go_bridge/internal/bridge/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type stubPairRepository struct {
	mu        sync.Mutex
	pairs     map[primitive.ObjectID]*models.ForwardPair
	createErr error
	deletes   int
}

func newStubPairRepository(pairs ...*models.ForwardPair) *stubPairRepository {
	repo := &stubPairRepository{pairs: make(map[primitive.ObjectID]*models.ForwardPair)}
	for _, pair := range pairs {
		if pair.ID.IsZero() {
			pair.ID = primitive.NewObjectID()
		}
		repo.pairs[pair.ID] = pair.Clone()
	}
	return repo
}

func (s *stubPairRepository) ListByInstance(ctx context.Context, instanceID int64) ([]*models.ForwardPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*models.ForwardPair
	for _, pair := range s.pairs {
		if pair.InstanceID == instanceID {
			result = append(result, pair.Clone())
		}
	}
	return result, nil
}

func (s *stubPairRepository) Create(ctx context.Context, pair *models.ForwardPair) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pair.ID = primitive.NewObjectID()
	s.pairs[pair.ID] = pair.Clone()
	return nil
}

func (s *stubPairRepository) Update(ctx context.Context, pair *models.ForwardPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pairs[pair.ID]; !ok {
		return errors.New("forward pair not found")
	}
	s.pairs[pair.ID] = pair.Clone()
	return nil
}

func (s *stubPairRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	delete(s.pairs, id)
	return nil
}

func (s *stubPairRepository) EnsureIndexes(ctx context.Context) error {
	return nil
}

type stubCorrelationRepository struct {
	mu        sync.Mutex
	records   []*models.CorrelationRecord
	createErr error
	findErr   error
}

func (s *stubCorrelationRepository) Create(ctx context.Context, record *models.CorrelationRecord) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record.ID = primitive.NewObjectID()
	clone := *record
	s.records = append(s.records, &clone)
	return nil
}

func (s *stubCorrelationRepository) FindBySideA(ctx context.Context, instanceID, roomID, seq int64) (*models.CorrelationRecord, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.InstanceID == instanceID && r.SideARoomID == roomID && r.SideASeq == seq {
			return r, nil
		}
	}
	return nil, nil
}

func (s *stubCorrelationRepository) FindBySideB(ctx context.Context, instanceID, chatID, msgID int64) (*models.CorrelationRecord, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.InstanceID == instanceID && r.SideBChatID == chatID && r.SideBMsgID == msgID {
			return r, nil
		}
	}
	return nil, nil
}

func (s *stubCorrelationRepository) SetSuppressed(ctx context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == id {
			r.SuppressCascadeDelete = true
			return nil
		}
	}
	return errors.New("correlation record not found")
}

func (s *stubCorrelationRepository) EnsureIndexes(ctx context.Context, ttlSeconds int32) error {
	return nil
}
