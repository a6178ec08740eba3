// Package ksync implements the synchronization primitives shared by the
// threads of a process: a spinning and a blocking mutex behind one Mutex
// interface, a counting semaphore and a Mesa-style condition variable.
//
// The primitives never talk to the scheduler directly. They are handed the
// calling Task, which knows how to give up the CPU and be made runnable again.
package ksync

import "gvisor.dev/gvisor/pkg/sync"

// Task is the calling kernel thread as seen by a primitive.
type Task interface {
	// Yield puts the task back on the ready queue and runs another one.
	Yield()
	// Block takes the task off the CPU without requeueing it. It returns
	// after some other party calls Wake.
	Block()
	// Wake makes a blocked task runnable. Waking a task that has not
	// blocked yet makes its next Block return immediately.
	Wake()
}

// waitQueue is a FIFO of blocked tasks.
type waitQueue struct {
	items []Task
}

func (q *waitQueue) push(t Task) {
	q.items = append(q.items, t)
}

func (q *waitQueue) pop() (Task, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	t := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return t, true
}

func (q *waitQueue) len() int {
	return len(q.items)
}

// Condvar is a condition variable without broadcast.
type Condvar struct {
	mu    sync.Mutex
	queue waitQueue
}

// NewCondvar returns a condvar with no waiters.
func NewCondvar() *Condvar {
	return &Condvar{}
}

// Signal wakes at most one waiter. With no waiters it does nothing.
func (c *Condvar) Signal() {
	c.mu.Lock()
	t, ok := c.queue.pop()
	c.mu.Unlock()
	if ok {
		t.Wake()
	}
}

// Wait releases m, blocks until signalled and then reacquires m. The caller
// must hold m. The task is queued before m is released so a Signal issued
// right after the release cannot be lost.
func (c *Condvar) Wait(m Mutex, t Task) {
	c.mu.Lock()
	c.queue.push(t)
	c.mu.Unlock()

	m.Unlock(t)
	t.Block()
	m.Lock(t)
}

// Waiters returns the number of blocked tasks.
func (c *Condvar) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.len()
}
