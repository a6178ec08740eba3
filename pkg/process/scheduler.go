package process

import (
	"container/heap"

	"gvisor.dev/gvisor/pkg/sync"
)

// Scheduler interface defines the contract for the ready queue.
type Scheduler interface {
	// Add appends a runnable thread.
	Add(t *Thread)
	// Fetch removes and returns the next thread to run, or nil.
	Fetch() *Thread
	// Remove drops t if it is queued and reports whether it was.
	Remove(t *Thread) bool
	// Contains reports whether t is queued.
	Contains(t *Thread) bool
	// Len returns the number of queued threads.
	Len() int
}

// FIFOScheduler is round-robin in enqueue order.
type FIFOScheduler struct {
	mu    sync.Mutex
	queue []*Thread
}

// NewFIFOScheduler creates an empty round-robin queue.
func NewFIFOScheduler() *FIFOScheduler {
	return &FIFOScheduler{}
}

// Add implements Scheduler.
func (s *FIFOScheduler) Add(t *Thread) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, t)
}

// Fetch implements Scheduler.
func (s *FIFOScheduler) Fetch() *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	t := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return t
}

// Remove implements Scheduler.
func (s *FIFOScheduler) Remove(t *Thread) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, q := range s.queue {
		if q == t {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return true
		}
	}
	return false
}

// Contains implements Scheduler.
func (s *FIFOScheduler) Contains(t *Thread) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.queue {
		if q == t {
			return true
		}
	}
	return false
}

// Len implements Scheduler.
func (s *FIFOScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// strideQueue is a min-heap of threads ordered by pass, then by enqueue
// order.
type strideQueue struct {
	items []*Thread
	seqs  map[*Thread]uint64
}

// Len implements heap.Interface.
func (q *strideQueue) Len() int { return len(q.items) }

// Less implements heap.Interface.
func (q *strideQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.pass != b.pass {
		return a.pass < b.pass
	}
	return q.seqs[a] < q.seqs[b]
}

// Swap implements heap.Interface.
func (q *strideQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

// Push implements heap.Interface.
func (q *strideQueue) Push(x interface{}) {
	t := x.(*Thread)
	t.index = len(q.items)
	q.items = append(q.items, t)
}

// Pop implements heap.Interface.
func (q *strideQueue) Pop() interface{} {
	old := q.items
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	q.items = old[:n-1]
	t.index = -1
	delete(q.seqs, t)
	return t
}

// StrideScheduler always runs the queued thread with the smallest pass, then
// advances that thread's pass by BigStride / priority. Threads with a larger
// priority are therefore picked proportionally more often.
type StrideScheduler struct {
	mu        sync.Mutex
	q         strideQueue
	bigStride uint64
	seq       uint64
	// floor is the pass of the last fetched thread. A thread enqueued for
	// the first time starts there so it cannot monopolize the CPU.
	floor uint64
}

// NewStrideScheduler creates an empty stride queue.
func NewStrideScheduler(bigStride uint64) *StrideScheduler {
	return &StrideScheduler{
		q:         strideQueue{seqs: make(map[*Thread]uint64)},
		bigStride: bigStride,
	}
}

// Add implements Scheduler.
func (s *StrideScheduler) Add(t *Thread) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !t.seeded {
		t.seeded = true
		t.pass = s.floor
	}
	s.seq++
	s.q.seqs[t] = s.seq
	heap.Push(&s.q, t)
}

// Fetch implements Scheduler.
func (s *StrideScheduler) Fetch() *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.q.Len() == 0 {
		return nil
	}
	t := heap.Pop(&s.q).(*Thread)
	s.floor = t.pass
	prio := uint64(t.Priority())
	if prio < 2 {
		prio = 2
	}
	t.pass += s.bigStride / prio
	return t
}

// Remove implements Scheduler.
func (s *StrideScheduler) Remove(t *Thread) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.q.seqs[t]; !ok {
		return false
	}
	heap.Remove(&s.q, t.index)
	return true
}

// Contains implements Scheduler.
func (s *StrideScheduler) Contains(t *Thread) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.q.seqs[t]
	return ok
}

// Len implements Scheduler.
func (s *StrideScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.Len()
}

// Pass returns t's current pass value.
func (s *StrideScheduler) Pass(t *Thread) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return t.pass
}

var (
	_ Scheduler      = (*FIFOScheduler)(nil)
	_ Scheduler      = (*StrideScheduler)(nil)
	_ heap.Interface = (*strideQueue)(nil)
)
