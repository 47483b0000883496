// Package epoch 管理在途翻译请求共享的取消令牌
package epoch

import (
	"context"
	"sync"
)

// Epoch 一代在途请求共享的取消令牌，撤销后不再复用
type Epoch struct {
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc
}

// Gen 代数，从 1 开始递增
func (e *Epoch) Gen() uint64 {
	return e.gen
}

// Context 随令牌撤销而取消的 context
func (e *Epoch) Context() context.Context {
	return e.ctx
}

// Revoked 令牌是否已撤销
func (e *Epoch) Revoked() bool {
	return e.ctx.Err() != nil
}

// Source 同一时刻最多持有一个有效令牌
// 只有调度器会通过 Ensure 分配新令牌，请求管线只读取传给它的令牌
type Source struct {
	mu      sync.Mutex
	parent  context.Context
	current *Epoch
	gen     uint64
}

// NewSource 创建令牌源，parent 取消时所有令牌随之取消
func NewSource(parent context.Context) *Source {
	if parent == nil {
		parent = context.Background()
	}
	return &Source{parent: parent}
}

// Current 返回当前令牌，可能为 nil 或已撤销
func (s *Source) Current() *Epoch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Ensure 返回有效令牌；当前令牌不存在或已撤销时惰性分配新的一代
func (s *Source) Ensure() (ep *Epoch, fresh bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && !s.current.Revoked() {
		return s.current, false
	}
	s.gen++
	ctx, cancel := context.WithCancel(s.parent)
	s.current = &Epoch{gen: s.gen, ctx: ctx, cancel: cancel}
	return s.current, true
}

// Revoke 撤销当前令牌，一次性取消所有在途请求
func (s *Source) Revoke() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.cancel()
	}
}
