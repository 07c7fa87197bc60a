package forward

import (
	"context"
	"time"

	"go_bridge/internal/logger"
)

// Reloader 可周期性重新加载的组件
type Reloader interface {
	Reload(ctx context.Context) error
}

// ReloadScheduler 周期性从存储刷新绑定注册表（其他进程的 CLI 修改会在下个周期生效）
type ReloadScheduler struct {
	targets  []Reloader
	interval time.Duration
	timeout  time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewReloadScheduler 创建调度器
func NewReloadScheduler(interval time.Duration, targets ...Reloader) *ReloadScheduler {
	return &ReloadScheduler{
		targets:  targets,
		interval: interval,
		timeout:  30 * time.Second,
	}
}

// Start 启动调度，interval 非正时不启动
func (s *ReloadScheduler) Start() {
	if s == nil || s.cancel != nil || s.interval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx)
	logger.L().Infof("Pair reload scheduler started: interval=%s targets=%d", s.interval, len(s.targets))
}

// Stop 停止调度并等待当前一轮结束
func (s *ReloadScheduler) Stop() {
	if s == nil || s.cancel == nil {
		return
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
	logger.L().Info("Pair reload scheduler stopped")
}

func (s *ReloadScheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reloadAll(ctx)
		}
	}
}

func (s *ReloadScheduler) reloadAll(parent context.Context) {
	for _, target := range s.targets {
		if parent.Err() != nil {
			return
		}

		ctx, cancel := context.WithTimeout(parent, s.timeout)
		if err := target.Reload(ctx); err != nil {
			logger.L().Errorf("Pair reload failed: %v", err)
		}
		cancel()
	}
}
