package shutdown

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

var shutdownLog = logrus.WithField("component", "shutdown")

// Handler 关闭处理函数
type Handler func(ctx context.Context) error

type namedHandler struct {
	name string
	fn   Handler
}

// Manager 优雅关闭管理器：按注册的逆序分阶段执行，同一阶段内并发
type Manager struct {
	phases [][]namedHandler
	mu     sync.Mutex
}

// NewManager 创建新的关闭管理器
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册关闭回调，作为单独的一个阶段
func (m *Manager) OnShutdown(name string, handler Handler) {
	m.OnShutdownGroup(map[string]Handler{name: handler})
}

// OnShutdownGroup 注册一组可并发执行的关闭回调
func (m *Manager) OnShutdownGroup(handlers map[string]Handler) {
	phase := make([]namedHandler, 0, len(handlers))
	for name, h := range handlers {
		phase = append(phase, namedHandler{name: name, fn: h})
	}
	m.mu.Lock()
	m.phases = append(m.phases, phase)
	m.mu.Unlock()
}

// Shutdown 执行所有关闭回调（阻塞调用）
// ctx 应该是一个带超时的 context，避免无限等待；超时返回 ctx.Err()
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	phases := m.phases
	m.mu.Unlock()

	if len(phases) == 0 {
		shutdownLog.Info("没有注册的关闭回调")
		return nil
	}
	shutdownLog.Infof("开始优雅关闭，共 %d 个阶段", len(phases))

	// 后注册的先关闭
	for i := len(phases) - 1; i >= 0; i-- {
		if err := runPhase(ctx, phases[i]); err != nil {
			shutdownLog.Warnf("关闭超时: %v", err)
			return err
		}
	}
	shutdownLog.Info("所有关闭回调已完成")
	return nil
}

func runPhase(ctx context.Context, phase []namedHandler) error {
	var wg sync.WaitGroup
	wg.Add(len(phase))
	for _, h := range phase {
		go func(h namedHandler) {
			defer wg.Done()
			if err := h.fn(ctx); err != nil {
				shutdownLog.Errorf("关闭 %s 失败: %v", h.name, err)
				return
			}
			shutdownLog.Debugf("%s 已关闭", h.name)
		}(h)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
