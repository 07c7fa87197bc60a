package forward

import (
	"context"
	"errors"
	"sync"

	"go_bridge/internal/bridge/media"
	"go_bridge/internal/bridge/models"
	"go_bridge/internal/bridge/service"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type memoryPairRepository struct {
	mu    sync.Mutex
	pairs map[primitive.ObjectID]*models.ForwardPair
}

func newMemoryPairRepository() *memoryPairRepository {
	return &memoryPairRepository{pairs: make(map[primitive.ObjectID]*models.ForwardPair)}
}

func (r *memoryPairRepository) ListByInstance(ctx context.Context, instanceID int64) ([]*models.ForwardPair, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.ForwardPair
	for _, p := range r.pairs {
		if p.InstanceID == instanceID {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (r *memoryPairRepository) Create(ctx context.Context, pair *models.ForwardPair) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pair.ID = primitive.NewObjectID()
	r.pairs[pair.ID] = pair.Clone()
	return nil
}

func (r *memoryPairRepository) Update(ctx context.Context, pair *models.ForwardPair) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pairs[pair.ID] = pair.Clone()
	return nil
}

func (r *memoryPairRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pairs, id)
	return nil
}

func (r *memoryPairRepository) EnsureIndexes(ctx context.Context) error { return nil }

type memoryCorrelationRepository struct {
	mu        sync.Mutex
	records   []*models.CorrelationRecord
	createErr error
}

func (r *memoryCorrelationRepository) Create(ctx context.Context, record *models.CorrelationRecord) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	record.ID = primitive.NewObjectID()
	clone := *record
	r.records = append(r.records, &clone)
	return nil
}

func (r *memoryCorrelationRepository) FindBySideA(ctx context.Context, instanceID, roomID, seq int64) (*models.CorrelationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.InstanceID == instanceID && rec.SideARoomID == roomID && rec.SideASeq == seq {
			clone := *rec
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *memoryCorrelationRepository) FindBySideB(ctx context.Context, instanceID, chatID, msgID int64) (*models.CorrelationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.InstanceID == instanceID && rec.SideBChatID == chatID && rec.SideBMsgID == msgID {
			clone := *rec
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *memoryCorrelationRepository) SetSuppressed(ctx context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.ID == id {
			rec.SuppressCascadeDelete = true
			return nil
		}
	}
	return errors.New("correlation record not found")
}

func (r *memoryCorrelationRepository) EnsureIndexes(ctx context.Context, ttlSeconds int32) error {
	return nil
}

func (r *memoryCorrelationRepository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

type sentCall struct {
	Dest  Destination
	Out   *Outbound
	Album []models.MediaSegment
	Opts  AlbumOptions
}

// fakeSender 记录全部投递，ID 从 nextID 开始递增
type fakeSender struct {
	mu       sync.Mutex
	album    bool
	nextID   int64
	failSend bool
	// failDelete 非零时接下来的若干次 Delete 返回错误
	failDelete int
	calls    []sentCall
	deleted  []int64
}

func newFakeSender(album bool, firstID int64) *fakeSender {
	return &fakeSender{album: album, nextID: firstID}
}

func (s *fakeSender) Send(ctx context.Context, dest Destination, msg *Outbound) (*SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSend {
		return nil, errors.New("bad request: chat not found")
	}
	s.calls = append(s.calls, sentCall{Dest: dest, Out: msg})
	id := s.nextID
	s.nextID++
	return &SendResult{MessageIDs: []int64{id}}, nil
}

func (s *fakeSender) SendMediaAlbum(ctx context.Context, dest Destination, items []models.MediaSegment, opts AlbumOptions) (*SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSend {
		return nil, errors.New("bad request: chat not found")
	}
	s.calls = append(s.calls, sentCall{Dest: dest, Album: items, Opts: opts})
	ids := make([]int64, len(items))
	for i := range items {
		ids[i] = s.nextID
		s.nextID++
	}
	return &SendResult{MessageIDs: ids}, nil
}

func (s *fakeSender) SupportsAlbum() bool { return s.album }

func (s *fakeSender) Delete(ctx context.Context, dest Destination, msgID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDelete > 0 {
		s.failDelete--
		return errors.New("message to delete not found")
	}
	s.deleted = append(s.deleted, msgID)
	return nil
}

func (s *fakeSender) snapshot() []sentCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentCall(nil), s.calls...)
}

// plainSender 不支持撤回
type plainSender struct{ inner *fakeSender }

func (p plainSender) Send(ctx context.Context, dest Destination, msg *Outbound) (*SendResult, error) {
	return p.inner.Send(ctx, dest, msg)
}

func (p plainSender) SendMediaAlbum(ctx context.Context, dest Destination, items []models.MediaSegment, opts AlbumOptions) (*SendResult, error) {
	return p.inner.SendMediaAlbum(ctx, dest, items, opts)
}

func (p plainSender) SupportsAlbum() bool { return p.inner.SupportsAlbum() }

// passthroughResolver 只接受内存数据或 URL，其余视为失败
type passthroughResolver struct{}

func (passthroughResolver) Resolve(ctx context.Context, m *models.Media, opts media.Options) (*media.Resolved, error) {
	if len(m.Data) > 0 {
		return &media.Resolved{Data: m.Data, Name: m.Name}, nil
	}
	if m.URL != "" {
		return &media.Resolved{URL: m.URL, Name: m.Name}, nil
	}
	return nil, media.ErrNoPayload
}

type harness struct {
	registry     *service.PairRegistry
	correlations *memoryCorrelationRepository
	store        *service.CorrelationStore
	sideA        *fakeSender
	sideB        *fakeSender
	pipeline     *Pipeline
}

func newHarness(cfg Config, mutate func(*Deps)) (*harness, error) {
	h := &harness{
		registry:     service.NewPairRegistry(cfg.InstanceID, newMemoryPairRepository()),
		correlations: &memoryCorrelationRepository{},
		sideA:        newFakeSender(true, 5000),
		sideB:        newFakeSender(true, 999),
	}
	h.store = service.NewCorrelationStore(h.correlations)

	deps := Deps{
		Pairs:        h.registry,
		Correlations: h.store,
		SideA:        h.sideA,
		SideB:        h.sideB,
		Normalizer:   passthroughResolver{},
	}
	if mutate != nil {
		mutate(&deps)
	}

	p, err := NewPipeline(cfg, deps)
	if err != nil {
		return nil, err
	}
	h.pipeline = p
	return h, nil
}

func defaultConfig() Config {
	return Config{
		InstanceID:   1,
		ForwardMode:  models.DefaultMode,
		NicknameMode: models.Mode{},
	}
}

func textMessageFromA(room, seq int64, sender, text string) *models.UnifiedMessage {
	return &models.UnifiedMessage{
		ID:       seq,
		Platform: models.PlatformA,
		Sender:   models.Sender{ID: sender, Name: sender},
		Chat:     models.Chat{ID: room, Type: "group"},
		Content:  []models.Segment{&models.Text{Text: text}},
		Metadata: models.Metadata{Seq: seq},
	}
}

func photoFromB(chat, id int64, group string) *models.UnifiedMessage {
	return &models.UnifiedMessage{
		ID:       id,
		Platform: models.PlatformB,
		Sender:   models.Sender{ID: "7001", Name: "Bob"},
		Chat:     models.Chat{ID: chat, Type: "supergroup"},
		Content: []models.Segment{
			&models.Image{Media: models.Media{Data: []byte{byte(id)}, Name: "photo.jpg"}},
		},
		Metadata: models.Metadata{MediaGroupID: group},
	}
}
