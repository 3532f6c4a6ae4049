package core

import (
	"fmt"
	"sync"
)

// CallLimiter caps the total number of generative calls issued during one
// research run, a safety valve independent of the depth/breadth budget. A
// refused acquisition does not consume budget, so Used reports only calls
// that were actually issued.
type CallLimiter struct {
	mu     sync.Mutex
	budget int
	used   int
}

// NewCallLimiter creates a limiter with the given call budget. A budget of
// 0 means unlimited.
func NewCallLimiter(budget int) *CallLimiter {
	return &CallLimiter{budget: budget}
}

// Acquire reserves one call slot. It fails with ErrCallBudgetExhausted once
// the budget is spent.
func (cl *CallLimiter) Acquire() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.budget > 0 && cl.used >= cl.budget {
		return fmt.Errorf("%w: budget of %d calls spent", ErrCallBudgetExhausted, cl.budget)
	}

	cl.used++
	return nil
}

// Used returns the number of calls issued so far.
func (cl *CallLimiter) Used() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	return cl.used
}

// Remaining returns the unspent budget. The second return value is false
// for an unlimited limiter.
func (cl *CallLimiter) Remaining() (int, bool) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.budget == 0 {
		return 0, false
	}

	return cl.budget - cl.used, true
}
