package risk

import (
	"fmt"
	"sync/atomic"
	"time"
)

// ErrCircuitBreakerOpen 断路器已打开，禁止继续下单。
var ErrCircuitBreakerOpen = fmt.Errorf("circuit breaker open")

// CircuitBreaker 下单熔断。
// 手动 Halt 只能手动 Resume；连续错误自动熔断（阈值 > 0 时）在冷却期后半开放行，
// 半开期间再失败一次立即重新熔断，成功则完全恢复。冷却期 <= 0 时自动熔断也只能手动恢复。
//
// 快路径只读原子变量，可被任意 goroutine 调用。
type CircuitBreaker struct {
	halted            atomic.Bool
	consecutiveErrors atomic.Int64
	maxConsecutive    atomic.Int64
	cooldown          time.Duration
	trippedAt         atomic.Int64 // unix nano；0 表示未自动熔断
}

func NewCircuitBreaker(maxConsecutiveErrors int64, cooldown time.Duration) *CircuitBreaker {
	cb := &CircuitBreaker{cooldown: cooldown}
	cb.maxConsecutive.Store(maxConsecutiveErrors)
	return cb
}

// Halt 手动熔断
func (cb *CircuitBreaker) Halt() {
	if cb == nil {
		return
	}
	cb.halted.Store(true)
}

// Resume 手动恢复，同时清空连续错误计数
func (cb *CircuitBreaker) Resume() {
	if cb == nil {
		return
	}
	cb.halted.Store(false)
	cb.consecutiveErrors.Store(0)
	cb.trippedAt.Store(0)
}

// AllowTrading nil 断路器总是放行
func (cb *CircuitBreaker) AllowTrading(now time.Time) error {
	if cb == nil {
		return nil
	}
	if cb.halted.Load() {
		return ErrCircuitBreakerOpen
	}
	max := cb.maxConsecutive.Load()
	if max <= 0 || cb.consecutiveErrors.Load() < max {
		return nil
	}
	at := cb.trippedAt.Load()
	if at == 0 {
		cb.trippedAt.CompareAndSwap(0, now.UnixNano())
		return ErrCircuitBreakerOpen
	}
	if cb.cooldown <= 0 || now.Sub(time.Unix(0, at)) < cb.cooldown {
		return ErrCircuitBreakerOpen
	}
	// 半开：计数退到阈值减一
	if !cb.trippedAt.CompareAndSwap(at, 0) {
		return ErrCircuitBreakerOpen
	}
	cb.consecutiveErrors.Store(max - 1)
	return nil
}

func (cb *CircuitBreaker) OnSuccess() {
	if cb == nil {
		return
	}
	cb.consecutiveErrors.Store(0)
	cb.trippedAt.Store(0)
}

func (cb *CircuitBreaker) OnError() {
	if cb == nil {
		return
	}
	cb.consecutiveErrors.Add(1)
}

// Halted 当前是否处于熔断（手动或自动）
func (cb *CircuitBreaker) Halted() bool {
	if cb == nil {
		return false
	}
	if cb.halted.Load() {
		return true
	}
	max := cb.maxConsecutive.Load()
	return max > 0 && cb.consecutiveErrors.Load() >= max
}
