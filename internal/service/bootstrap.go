package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// BootstrapStep 启动时执行一次的初始化步骤
type BootstrapStep struct {
	Name string
	Run  func(ctx context.Context) error
}

// Bootstrap 进程级一次性初始化（迁移、消费者组等）
// 成功后再次调用直接返回；失败时下次调用会重试
type Bootstrap struct {
	mu     sync.Mutex
	done   bool
	steps  []BootstrapStep
	logger *zap.Logger
}

func NewBootstrap(logger *zap.Logger, steps ...BootstrapStep) *Bootstrap {
	return &Bootstrap{steps: steps, logger: logger}
}

// Run 依次执行所有步骤
func (b *Bootstrap) Run(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return nil
	}

	for _, step := range b.steps {
		if err := step.Run(ctx); err != nil {
			return fmt.Errorf("bootstrap step %s failed: %w", step.Name, err)
		}
		b.logger.Info("Bootstrap step completed", zap.String("step", step.Name))
	}
	b.done = true
	return nil
}

// Done 是否已完成初始化
func (b *Bootstrap) Done() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}
