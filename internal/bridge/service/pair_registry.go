package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go_bridge/internal/bridge/models"
	"go_bridge/internal/bridge/repository"
	"go_bridge/internal/logger"
)

// ErrPairNotFound 目标 A 侧群没有绑定
var ErrPairNotFound = errors.New("pair not found")

type pairIndex struct {
	bySideA map[int64]*models.ForwardPair
	bySideB map[models.SideBKey]*models.ForwardPair
}

func newPairIndex(capacity int) *pairIndex {
	return &pairIndex{
		bySideA: make(map[int64]*models.ForwardPair, capacity),
		bySideB: make(map[models.SideBKey]*models.ForwardPair, capacity),
	}
}

func (idx *pairIndex) clone() *pairIndex {
	next := newPairIndex(len(idx.bySideA) + 1)
	for k, v := range idx.bySideA {
		next.bySideA[k] = v
	}
	for k, v := range idx.bySideB {
		next.bySideB[k] = v
	}
	return next
}

func (idx *pairIndex) put(pair *models.ForwardPair) {
	idx.bySideA[pair.SideARoomID] = pair
	idx.bySideB[pair.SideBKey()] = pair
}

func (idx *pairIndex) remove(pair *models.ForwardPair) {
	delete(idx.bySideA, pair.SideARoomID)
	delete(idx.bySideB, pair.SideBKey())
}

// PairRegistry 单个实例的绑定注册表
//
// 读路径无锁：两个索引作为一个不可变快照整体替换，读者看到的总是一致的版本。
// 写路径（Bind/Unbind/Reload）串行执行，先写存储再替换快照。
type PairRegistry struct {
	instanceID int64
	repo       repository.PairRepository

	writeMu sync.Mutex
	index   atomic.Pointer[pairIndex]
}

// NewPairRegistry 创建注册表（空快照，需调用 Reload 加载）
func NewPairRegistry(instanceID int64, repo repository.PairRepository) *PairRegistry {
	r := &PairRegistry{
		instanceID: instanceID,
		repo:       repo,
	}
	r.index.Store(newPairIndex(0))
	return r
}

// InstanceID 所属实例
func (r *PairRegistry) InstanceID() int64 {
	return r.instanceID
}

// ResolveBySideA 按 A 侧群查找
func (r *PairRegistry) ResolveBySideA(roomID int64) *models.ForwardPair {
	return r.index.Load().bySideA[roomID].Clone()
}

// ResolveBySideB 按 B 侧查找，可选回退到无话题绑定
func (r *PairRegistry) ResolveBySideB(chatID int64, threadID *int64, allowThreadlessFallback bool) *models.ForwardPair {
	idx := r.index.Load()
	key := models.NewSideBKey(chatID, threadID)
	if pair, ok := idx.bySideB[key]; ok {
		return pair.Clone()
	}
	if allowThreadlessFallback && key.HasThread {
		return idx.bySideB[key.Threadless()].Clone()
	}
	return nil
}

// Bind 绑定 A 侧群与 B 侧目标
//
// 目标已属于其他 A 侧群：原样返回该绑定，调用方通过比较 SideARoomID 判断冲突。
// A 侧群已有绑定：原地迁移到新目标。否则新建。
func (r *PairRegistry) Bind(ctx context.Context, roomID, chatID int64, threadID *int64) (*models.ForwardPair, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	idx := r.index.Load()
	key := models.NewSideBKey(chatID, threadID)

	if owner, ok := idx.bySideB[key]; ok && owner.SideARoomID != roomID {
		logger.L().Warnf("Bind conflict: instance=%d room=%d target=%s owned_by=%d",
			r.instanceID, roomID, key, owner.SideARoomID)
		return owner.Clone(), nil
	}

	if existing, ok := idx.bySideA[roomID]; ok {
		if existing.SideBKey() == key {
			return existing.Clone(), nil
		}

		updated := existing.Clone()
		updated.SideBChatID = chatID
		updated.SideBThreadID = copyThreadID(threadID)
		if err := r.repo.Update(ctx, updated); err != nil {
			return nil, fmt.Errorf("failed to rebind pair: %w", err)
		}

		next := idx.clone()
		next.remove(existing)
		next.put(updated)
		r.index.Store(next)

		logger.L().Infof("Pair rebound: instance=%d room=%d from=%s to=%s",
			r.instanceID, roomID, existing.SideBKey(), key)
		return updated.Clone(), nil
	}

	pair := &models.ForwardPair{
		InstanceID:    r.instanceID,
		SideARoomID:   roomID,
		SideBChatID:   chatID,
		SideBThreadID: copyThreadID(threadID),
	}
	if err := r.repo.Create(ctx, pair); err != nil {
		return nil, fmt.Errorf("failed to create pair: %w", err)
	}

	next := idx.clone()
	next.put(pair)
	r.index.Store(next)

	logger.L().Infof("Pair bound: instance=%d room=%d target=%s", r.instanceID, roomID, key)
	return pair.Clone(), nil
}

// Unbind 解绑 A 侧群，未绑定时是无操作
func (r *PairRegistry) Unbind(ctx context.Context, roomID int64) (bool, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	idx := r.index.Load()
	existing, ok := idx.bySideA[roomID]
	if !ok {
		return false, nil
	}

	if err := r.repo.Delete(ctx, existing.ID); err != nil {
		return false, fmt.Errorf("failed to unbind pair: %w", err)
	}

	next := idx.clone()
	next.remove(existing)
	r.index.Store(next)

	logger.L().Infof("Pair unbound: instance=%d room=%d target=%s", r.instanceID, roomID, existing.SideBKey())
	return true, nil
}

// Configure 修改已有绑定的附加配置（标志位、模式覆盖、忽略规则等）
//
// mutate 作用在副本上，绑定坐标的改动会被忽略，改绑请用 Bind。
func (r *PairRegistry) Configure(ctx context.Context, roomID int64, mutate func(pair *models.ForwardPair)) (*models.ForwardPair, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	idx := r.index.Load()
	existing, ok := idx.bySideA[roomID]
	if !ok {
		return nil, fmt.Errorf("room %d: %w", roomID, ErrPairNotFound)
	}

	updated := existing.Clone()
	mutate(updated)
	updated.ID = existing.ID
	updated.InstanceID = existing.InstanceID
	updated.SideARoomID = existing.SideARoomID
	updated.SideBChatID = existing.SideBChatID
	updated.SideBThreadID = copyThreadID(existing.SideBThreadID)

	if updated.ForwardMode != "" {
		if _, err := models.ParseMode(updated.ForwardMode); err != nil {
			return nil, err
		}
	}
	if updated.NicknameMode != "" {
		if _, err := models.ParseMode(updated.NicknameMode); err != nil {
			return nil, err
		}
	}
	if err := updated.CompileIgnorePattern(); err != nil {
		return nil, err
	}

	if err := r.repo.Update(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to configure pair: %w", err)
	}

	next := idx.clone()
	next.put(updated)
	r.index.Store(next)

	logger.L().Infof("Pair configured: instance=%d room=%d flags=%d forward=%q nickname=%q",
		r.instanceID, roomID, updated.Flags, updated.ForwardMode, updated.NicknameMode)
	return updated.Clone(), nil
}

// Reload 从存储重建并整体替换两个索引
func (r *PairRegistry) Reload(ctx context.Context) error {
	// 持锁覆盖读存储到替换快照的全过程，避免并发的 Bind/Unbind 被旧快照覆盖
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	pairs, err := r.repo.ListByInstance(ctx, r.instanceID)
	if err != nil {
		return fmt.Errorf("failed to reload pairs: %w", err)
	}

	next := newPairIndex(len(pairs))
	for _, pair := range pairs {
		if pair == nil {
			continue
		}
		if owner, ok := next.bySideB[pair.SideBKey()]; ok {
			logger.L().Warnf("Skipping conflicting pair on reload: instance=%d room=%d target=%s owned_by=%d",
				r.instanceID, pair.SideARoomID, pair.SideBKey(), owner.SideARoomID)
			continue
		}
		if _, ok := next.bySideA[pair.SideARoomID]; ok {
			logger.L().Warnf("Skipping duplicate pair on reload: instance=%d room=%d", r.instanceID, pair.SideARoomID)
			continue
		}
		if err := pair.CompileIgnorePattern(); err != nil {
			logger.L().Warnf("Ignore pattern disabled on reload: instance=%d room=%d err=%v", r.instanceID, pair.SideARoomID, err)
		}
		next.put(pair)
	}

	r.index.Store(next)

	logger.L().Debugf("Pairs reloaded: instance=%d count=%d", r.instanceID, len(next.bySideA))
	return nil
}

// Pairs 当前快照中的全部绑定（按 A 侧群号排序）
func (r *PairRegistry) Pairs() []*models.ForwardPair {
	idx := r.index.Load()
	pairs := make([]*models.ForwardPair, 0, len(idx.bySideA))
	for _, pair := range idx.bySideA {
		pairs = append(pairs, pair.Clone())
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].SideARoomID < pairs[j].SideARoomID
	})
	return pairs
}

// Len 当前绑定数量
func (r *PairRegistry) Len() int {
	return len(r.index.Load().bySideA)
}

func copyThreadID(threadID *int64) *int64 {
	if threadID == nil {
		return nil
	}
	v := *threadID
	return &v
}
