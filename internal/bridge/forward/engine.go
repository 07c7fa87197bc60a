package forward

import (
	"context"
	"sort"

	"go_bridge/internal/bridge/models"
	"go_bridge/internal/logger"

	"github.com/google/uuid"
)

// Engine 持有全部实例的转发管线，把入站事件作为任务提交到工作池
type Engine struct {
	pipelines map[int64]*Pipeline
	order     []int64
	pool      *WorkerPool
}

// NewEngine 创建转发引擎
func NewEngine(pool *WorkerPool, pipelines ...*Pipeline) *Engine {
	e := &Engine{
		pipelines: make(map[int64]*Pipeline, len(pipelines)),
		pool:      pool,
	}
	for _, p := range pipelines {
		if p == nil {
			continue
		}
		if _, dup := e.pipelines[p.InstanceID()]; dup {
			logger.L().Warnf("Duplicate pipeline ignored: instance=%d", p.InstanceID())
			continue
		}
		e.pipelines[p.InstanceID()] = p
		e.order = append(e.order, p.InstanceID())
	}
	sort.Slice(e.order, func(i, j int) bool { return e.order[i] < e.order[j] })
	return e
}

// Pipeline 按实例获取管线
func (e *Engine) Pipeline(instanceID int64) (*Pipeline, bool) {
	p, ok := e.pipelines[instanceID]
	return p, ok
}

// Pipelines 全部管线（按实例 ID 排序）
func (e *Engine) Pipelines() []*Pipeline {
	result := make([]*Pipeline, 0, len(e.order))
	for _, id := range e.order {
		result = append(result, e.pipelines[id])
	}
	return result
}

// DispatchSideA A 侧消息只交给对应实例
func (e *Engine) DispatchSideA(ctx context.Context, instanceID int64, msg *models.UnifiedMessage) bool {
	p, ok := e.pipelines[instanceID]
	if !ok {
		logger.L().Warnf("No pipeline for instance %d, message dropped", instanceID)
		return false
	}
	return e.submit(ctx, p, msg)
}

// DispatchSideB B 侧由所有实例共享同一个 Bot，消息交给已绑定该会话的实例
func (e *Engine) DispatchSideB(ctx context.Context, msg *models.UnifiedMessage) int {
	submitted := 0
	for _, p := range e.Pipelines() {
		if p.ResolveSideB(msg.Chat.ID, msg.Metadata.ThreadID) == nil {
			continue
		}
		copied := *msg
		if e.submit(ctx, p, &copied) {
			submitted++
		}
	}
	return submitted
}

// RecallSideA A 侧撤回
func (e *Engine) RecallSideA(ctx context.Context, instanceID, roomID, seq int64) {
	p, ok := e.pipelines[instanceID]
	if !ok {
		return
	}
	e.pool.Submit(Task{
		ID:  uuid.NewString(),
		Ctx: ctx,
		Run: func(ctx context.Context) {
			if _, err := p.HandleRecall(ctx, models.PlatformA, roomID, seq); err != nil {
				logger.L().Errorf("Recall failed: instance=%d room=%d seq=%d err=%v", instanceID, roomID, seq, err)
			}
		},
	})
}

// RecallSideB B 侧撤回（尝试所有实例）
func (e *Engine) RecallSideB(ctx context.Context, chatID, msgID int64) {
	for _, p := range e.Pipelines() {
		p := p
		e.pool.Submit(Task{
			ID:  uuid.NewString(),
			Ctx: ctx,
			Run: func(ctx context.Context) {
				if _, err := p.HandleRecall(ctx, models.PlatformB, chatID, msgID); err != nil {
					logger.L().Errorf("Recall failed: instance=%d chat=%d msg=%d err=%v", p.InstanceID(), chatID, msgID, err)
				}
			},
		})
	}
}

// Destroy 销毁全部管线
func (e *Engine) Destroy() {
	for _, p := range e.Pipelines() {
		p.Destroy()
	}
}

func (e *Engine) submit(ctx context.Context, p *Pipeline, msg *models.UnifiedMessage) bool {
	taskID := uuid.NewString()
	return e.pool.Submit(Task{
		ID:  taskID,
		Ctx: ctx,
		Run: func(ctx context.Context) {
			outcome := p.Process(ctx, msg)
			logger.L().Debugf("Forward task finished: task_id=%s instance=%d platform=%s msg=%d outcome=%s",
				taskID, p.InstanceID(), msg.Platform, msg.ID, outcome)
		},
	})
}
