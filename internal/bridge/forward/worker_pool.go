package forward

import (
	"context"
	"sync"

	"go_bridge/internal/logger"
)

// Task 转发任务
type Task struct {
	ID  string
	Ctx context.Context
	Run func(ctx context.Context)
}

// WorkerPool 转发任务工作池
type WorkerPool struct {
	taskQueue chan Task
	wg        sync.WaitGroup
	workers   int

	closeOnce sync.Once
	closed    chan struct{}
}

// NewWorkerPool 创建工作池
// workers: worker 协程数量
// queueSize: 任务队列大小
func NewWorkerPool(workers int, queueSize int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	pool := &WorkerPool{
		taskQueue: make(chan Task, queueSize),
		workers:   workers,
		closed:    make(chan struct{}),
	}

	// 启动 worker goroutines
	for i := 0; i < workers; i++ {
		pool.wg.Add(1)
		go pool.worker(i)
	}

	logger.L().Infof("Worker pool started with %d workers, queue size %d", workers, queueSize)
	return pool
}

// worker 工作协程
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	logger.L().Debugf("Worker %d started", id)

	for task := range p.taskQueue {
		p.execute(id, task)
	}

	logger.L().Debugf("Worker %d stopped", id)
}

func (p *WorkerPool) execute(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			logger.L().Errorf("Worker %d: task panic recovered: task_id=%s err=%v", id, task.ID, r)
		}
	}()

	ctx := task.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	task.Run(ctx)
}

// Submit 提交任务，队列已满或已关闭时丢弃并返回 false
func (p *WorkerPool) Submit(task Task) (accepted bool) {
	if task.Run == nil {
		return false
	}

	select {
	case <-p.closed:
		logger.L().Warnf("Worker pool is shut down, task dropped: task_id=%s", task.ID)
		return false
	default:
	}

	defer func() {
		// Shutdown 与 Submit 并发时向已关闭的 channel 发送会 panic
		if r := recover(); r != nil {
			logger.L().Warnf("Worker pool is shut down, task dropped: task_id=%s", task.ID)
			accepted = false
		}
	}()

	select {
	case p.taskQueue <- task:
		return true
	default:
		logger.L().Warnf("Worker pool queue is full, task dropped: task_id=%s", task.ID)
		return false
	}
}

// Shutdown 优雅关闭工作池
// 等待所有正在执行的任务完成
func (p *WorkerPool) Shutdown() {
	p.closeOnce.Do(func() {
		logger.L().Info("Shutting down worker pool...")

		close(p.closed)
		close(p.taskQueue)
		p.wg.Wait()

		logger.L().Info("Worker pool shut down successfully")
	})
}

// PoolStats 工作池运行状态快照
type PoolStats struct {
	Workers       int
	QueueLength   int
	QueueCapacity int
}

// Stats 返回当前状态
func (p *WorkerPool) Stats() PoolStats {
	return PoolStats{
		Workers:       p.workers,
		QueueLength:   len(p.taskQueue),
		QueueCapacity: cap(p.taskQueue),
	}
}
