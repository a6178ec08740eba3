package timer

import (
	"container/heap"
	"time"

	"gvisor.dev/gvisor/pkg/sync"
)

// Waker is woken when its deadline elapses.
type Waker interface {
	Wake()
}

type timerEntry struct {
	deadline time.Duration
	seq      uint64
	w        Waker
}

// timerHeap orders entries by deadline, then by registration order.
type timerHeap []timerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline != h[j].deadline {
		return h[i].deadline < h[j].deadline
	}
	return h[i].seq < h[j].seq
}

func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x interface{}) { *h = append(*h, x.(timerEntry)) }

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = timerEntry{}
	*h = old[:n-1]
	return e
}

var _ heap.Interface = (*timerHeap)(nil)

// Timers is the registry of (deadline, task) pairs. A sleeper is never woken
// early; entries only leave the registry by expiring or when the owning task
// is torn down.
type Timers struct {
	mu  sync.Mutex
	h   timerHeap
	seq uint64
}

// NewTimers returns an empty registry.
func NewTimers() *Timers {
	return &Timers{}
}

// Add registers w to be woken at deadline.
func (t *Timers) Add(deadline time.Duration, w Waker) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	heap.Push(&t.h, timerEntry{deadline: deadline, seq: t.seq, w: w})
}

// Expire removes and returns every waker whose deadline is <= now, earliest
// first. The caller wakes them outside the registry lock.
func (t *Timers) Expire(now time.Duration) []Waker {
	t.mu.Lock()
	defer t.mu.Unlock()
	var due []Waker
	for t.h.Len() > 0 && t.h[0].deadline <= now {
		e := heap.Pop(&t.h).(timerEntry)
		due = append(due, e.w)
	}
	return due
}

// Next returns the earliest pending deadline.
func (t *Timers) Next() (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.h.Len() == 0 {
		return 0, false
	}
	return t.h[0].deadline, true
}

// Len returns the number of pending timers.
func (t *Timers) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.h.Len()
}

// Contains reports whether w has a pending timer.
func (t *Timers) Contains(w Waker) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.h {
		if e.w == w {
			return true
		}
	}
	return false
}

// Remove drops every pending entry for w and returns how many were dropped.
// It is used when the task behind w is destroyed, never to wake it.
func (t *Timers) Remove(w Waker) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for i := 0; i < t.h.Len(); {
		if t.h[i].w != w {
			i++
			continue
		}
		heap.Remove(&t.h, i)
		n++
	}
	return n
}
