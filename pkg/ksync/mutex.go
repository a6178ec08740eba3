package ksync

import (
	"gvisor.dev/gvisor/pkg/atomicbitops"
	"gvisor.dev/gvisor/pkg/sync"
)

// Mutex is a non-reentrant lock. Locking a mutex the caller already holds
// never returns.
type Mutex interface {
	Lock(t Task)
	Unlock(t Task)
	// Blocking reports whether contended callers are suspended rather than
	// left spinning.
	Blocking() bool
}

// SpinMutex busy-waits. A contended caller yields the CPU between attempts
// but stays runnable the whole time.
type SpinMutex struct {
	locked atomicbitops.Int32
}

// NewSpinMutex returns an unlocked spin mutex.
func NewSpinMutex() *SpinMutex {
	return &SpinMutex{}
}

// Lock implements Mutex.
func (m *SpinMutex) Lock(t Task) {
	for !m.locked.CompareAndSwap(0, 1) {
		t.Yield()
	}
}

// Unlock implements Mutex.
func (m *SpinMutex) Unlock(t Task) {
	m.locked.Store(0)
}

// Blocking implements Mutex.
func (m *SpinMutex) Blocking() bool { return false }

// Locked reports whether the mutex is held.
func (m *SpinMutex) Locked() bool {
	return m.locked.Load() != 0
}

// BlockingMutex suspends contended callers in FIFO order. Unlock hands the
// lock directly to the oldest waiter, so the mutex stays locked across the
// hand-off.
type BlockingMutex struct {
	mu     sync.Mutex
	locked bool
	queue  waitQueue
}

// NewBlockingMutex returns an unlocked blocking mutex.
func NewBlockingMutex() *BlockingMutex {
	return &BlockingMutex{}
}

// Lock implements Mutex.
func (m *BlockingMutex) Lock(t Task) {
	m.mu.Lock()
	if !m.locked {
		m.locked = true
		m.mu.Unlock()
		return
	}
	m.queue.push(t)
	m.mu.Unlock()
	t.Block()
}

// Unlock implements Mutex.
func (m *BlockingMutex) Unlock(t Task) {
	m.mu.Lock()
	next, ok := m.queue.pop()
	if !ok {
		m.locked = false
	}
	m.mu.Unlock()
	if ok {
		next.Wake()
	}
}

// Blocking implements Mutex.
func (m *BlockingMutex) Blocking() bool { return true }

// Locked reports whether the mutex is held.
func (m *BlockingMutex) Locked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}

// Waiters returns the number of blocked tasks.
func (m *BlockingMutex) Waiters() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.len()
}
