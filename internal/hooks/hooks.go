// Package hooks holds the ordered after-prefork callback chain.
package hooks

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrHook matches every *HookError via errors.Is.
var ErrHook = errors.New("after-prefork hook failed")

// Hook runs in a freshly forked worker.
type Hook func() error

// HookError reports the first failing hook of a run.
type HookError struct {
	Index int
	Err   error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("after-prefork hook %d: %v", e.Index, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrHook.
func (e *HookError) Is(target error) bool {
	return target == ErrHook
}

// Chain is an append-only list of hooks run in registration order.
type Chain struct {
	mu     sync.RWMutex
	hooks  []Hook
	logger *zap.Logger
}

// NewChain returns an empty chain. A nil logger disables logging.
func NewChain(logger *zap.Logger) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{logger: logger}
}

// SetLogger replaces the logger used for hook failures.
func (c *Chain) SetLogger(logger *zap.Logger) {
	if logger == nil {
		return
	}
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

// Register appends h. Registering the same hook twice runs it twice.
func (c *Chain) Register(h Hook) {
	if h == nil {
		return
	}
	c.mu.Lock()
	c.hooks = append(c.hooks, h)
	c.mu.Unlock()
}

// Len returns the number of registered hooks.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.hooks)
}

// RunAll invokes the hooks registered so far, in order, on the calling
// goroutine. It stops at the first failure or panic and returns it as a
// *HookError; the chain itself is left intact.
func (c *Chain) RunAll() error {
	c.mu.RLock()
	snapshot := make([]Hook, len(c.hooks))
	copy(snapshot, c.hooks)
	logger := c.logger
	c.mu.RUnlock()

	for i, h := range snapshot {
		if err := invoke(h); err != nil {
			logger.Error("after-prefork hook failed", zap.Int("index", i), zap.Error(err))
			return &HookError{Index: i, Err: err}
		}
	}
	logger.Debug("after-prefork hooks completed", zap.Int("count", len(snapshot)))
	return nil
}

func invoke(h Hook) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return h()
}
