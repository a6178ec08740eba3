package ksync

import "gvisor.dev/gvisor/pkg/sync"

// Semaphore is a counting semaphore. A negative count is the number of
// blocked waiters.
type Semaphore struct {
	mu    sync.Mutex
	count int
	queue waitQueue
}

// NewSemaphore returns a semaphore holding count units.
func NewSemaphore(count int) *Semaphore {
	return &Semaphore{count: count}
}

// Up releases a unit and wakes one waiter if any.
func (s *Semaphore) Up() {
	s.mu.Lock()
	s.count++
	var next Task
	var ok bool
	if s.count <= 0 {
		next, ok = s.queue.pop()
	}
	s.mu.Unlock()
	if ok {
		next.Wake()
	}
}

// Down takes a unit, blocking t until one is available.
func (s *Semaphore) Down(t Task) {
	s.mu.Lock()
	s.count--
	if s.count >= 0 {
		s.mu.Unlock()
		return
	}
	s.queue.push(t)
	s.mu.Unlock()
	t.Block()
}

// Count returns the current count.
func (s *Semaphore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
