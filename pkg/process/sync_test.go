package process

import (
	"errors"
	"testing"

	"tcore/pkg/config"
)

// TestMutexCounter tests that N threads each adding K under a mutex lose no
// increments, for both mutex kinds.
func TestMutexCounter(t *testing.T) {
	const n, k = 4, 50
	for _, blocking := range []bool{false, true} {
		name := "spin"
		if blocking {
			name = "blocking"
		}
		t.Run(name, func(t *testing.T) {
			kern := newTestKernel(t, config.PolicyFIFO)
			counter := 0
			kern.start(t, "counter", func(th *Thread) int {
				p := th.Process()
				id, err := p.MutexCreate(blocking)
				if err != nil {
					t.Errorf("MutexCreate() error = %v", err)
					return 1
				}
				entry := p.RegisterCode(func(w *Thread) int {
					for i := 0; i < k; i++ {
						w.MutexLock(id)
						v := counter
						w.Yield()
						counter = v + 1
						w.MutexUnlock(id)
					}
					return 0
				})
				var tids []int
				for i := 0; i < n; i++ {
					tid, _ := th.ThreadCreate(entry, 0)
					tids = append(tids, tid)
				}
				for _, tid := range tids {
					waitThread(th, tid)
				}
				return 0
			})
			kern.run(t)

			if counter != n*k {
				t.Errorf("counter = %d, want %d", counter, n*k)
			}
		})
	}
}

// abba starts a process whose two threads take mutexes A and B in opposite
// orders. The returned array holds each worker's result for its second
// lock once the kernel has run.
func abba(t *testing.T, detect bool) (*testKernel, *[2]error) {
	kern := newTestKernel(t, config.PolicyFIFO)
	errs := new([2]error)
	kern.start(t, "abba", func(th *Thread) int {
		p := th.Process()
		p.SetDeadlockDetect(detect)
		a, _ := p.MutexCreate(true)
		b, _ := p.MutexCreate(true)
		done, _ := p.SemaphoreCreate(0)
		worker := func(i, first, second int) Entry {
			return func(w *Thread) int {
				w.MutexLock(first)
				w.Yield()
				errs[i] = w.MutexLock(second)
				if errs[i] == nil {
					w.MutexUnlock(second)
				}
				w.MutexUnlock(first)
				w.SemaphoreUp(done)
				return 0
			}
		}
		t0, _ := th.ThreadCreate(p.RegisterCode(worker(0, a, b)), 0)
		t1, _ := th.ThreadCreate(p.RegisterCode(worker(1, b, a)), 0)
		if detect {
			// Waiting on done would itself be refused: the workers hold
			// no unit of it, so the check cannot see them producing one.
			waitThread(th, t0)
			waitThread(th, t1)
			return 0
		}
		th.SemaphoreDown(done)
		th.SemaphoreDown(done)
		return 0
	})
	return kern, errs
}

// TestDeadlockDetected tests that the request closing the cycle is refused
// and the other thread completes.
func TestDeadlockDetected(t *testing.T) {
	kern, errs := abba(t, true)
	kern.run(t)

	if errs[0] != nil {
		t.Errorf("first crossing lock error = %v, want nil", errs[0])
	}
	if !errors.Is(errs[1], ErrDeadlock) {
		t.Errorf("second crossing lock error = %v, want %v", errs[1], ErrDeadlock)
	}
}

// TestDeadlockUndetected tests that without detection the cycle stalls the
// CPU.
func TestDeadlockUndetected(t *testing.T) {
	kern, _ := abba(t, false)
	if err := kern.m.Run(); !errors.Is(err, ErrStalled) {
		t.Errorf("Run() error = %v, want %v", err, ErrStalled)
	}
}

// TestDeadlockSafeOrder tests that a wait the other threads can satisfy is
// allowed with detection on.
func TestDeadlockSafeOrder(t *testing.T) {
	kern := newTestKernel(t, config.PolicyFIFO)
	var errs [3]error
	kern.start(t, "safe", func(th *Thread) int {
		p := th.Process()
		p.SetDeadlockDetect(true)
		a, _ := p.MutexCreate(true)
		b, _ := p.MutexCreate(true)
		// T0 wants A then B, T1 holds A and wants B, T2 holds B only.
		entries := []Entry{
			func(w *Thread) int {
				errs[0] = w.MutexLock(a)
				if errs[0] == nil {
					w.MutexUnlock(a)
				}
				return 0
			},
			func(w *Thread) int {
				w.MutexLock(a)
				w.Yield()
				errs[1] = w.MutexLock(b)
				if errs[1] == nil {
					w.MutexUnlock(b)
				}
				w.MutexUnlock(a)
				return 0
			},
			func(w *Thread) int {
				errs[2] = w.MutexLock(b)
				w.Yield()
				w.Yield()
				w.MutexUnlock(b)
				return 0
			},
		}
		var tids []int
		for i := len(entries) - 1; i >= 0; i-- {
			tid, _ := th.ThreadCreate(p.RegisterCode(entries[i]), 0)
			tids = append(tids, tid)
		}
		for _, tid := range tids {
			waitThread(th, tid)
		}
		return 0
	})
	kern.run(t)

	for i, err := range errs {
		if err != nil {
			t.Errorf("thread %d lock error = %v, want nil", i, err)
		}
	}
}

// TestSemaphoreDeadlock tests detection on a semaphore with no spare units.
func TestSemaphoreDeadlock(t *testing.T) {
	kern := newTestKernel(t, config.PolicyFIFO)
	var first, second error
	kern.start(t, "sem", func(th *Thread) int {
		p := th.Process()
		p.SetDeadlockDetect(true)
		s, _ := p.SemaphoreCreate(1)
		first = th.SemaphoreDown(s)
		second = th.SemaphoreDown(s)
		if got := th.Ledger().SemNeed[s]; got != 0 {
			t.Errorf("SemNeed after refusal = %d, want 0", got)
		}
		th.SemaphoreUp(s)
		return 0
	})
	kern.run(t)

	if first != nil {
		t.Errorf("first SemaphoreDown() error = %v, want nil", first)
	}
	if !errors.Is(second, ErrDeadlock) {
		t.Errorf("second SemaphoreDown() error = %v, want %v", second, ErrDeadlock)
	}
}

// TestLedger tests the need/own bookkeeping around a lock.
func TestLedger(t *testing.T) {
	kern := newTestKernel(t, config.PolicyFIFO)
	var held, released *Ledger
	var statusHeld, statusReleased []int
	kern.start(t, "ledger", func(th *Thread) int {
		p := th.Process()
		p.MutexCreate(false)
		id, _ := p.MutexCreate(true)
		th.MutexLock(id)
		held, statusHeld = th.Ledger(), p.MutexStatus()
		th.MutexUnlock(id)
		released, statusReleased = th.Ledger(), p.MutexStatus()
		return 0
	})
	kern.run(t)

	if held.MutexOwn[1] != 1 || held.MutexNeed[1] != 0 || statusHeld[1] != 0 {
		t.Errorf("while held own=%v need=%v status=%v", held.MutexOwn, held.MutexNeed, statusHeld)
	}
	if released.MutexOwn[1] != 0 || statusReleased[1] != 1 {
		t.Errorf("after release own=%v status=%v", released.MutexOwn, statusReleased)
	}
	if statusHeld[0] != 1 {
		t.Errorf("untouched mutex status = %d, want 1", statusHeld[0])
	}
}

// TestCondvar tests that a waiter is woken by a signal and holds the mutex
// again when Wait returns.
func TestCondvar(t *testing.T) {
	kern := newTestKernel(t, config.PolicyFIFO)
	ready := false
	var sawReady bool
	var ownAfter int
	kern.start(t, "condvar", func(th *Thread) int {
		p := th.Process()
		m, _ := p.MutexCreate(true)
		c, _ := p.CondvarCreate()
		if err := th.CondvarSignal(c); err != nil {
			t.Errorf("CondvarSignal() without waiters error = %v", err)
		}
		tid, _ := th.ThreadCreate(p.RegisterCode(func(w *Thread) int {
			w.MutexLock(m)
			for !ready {
				w.CondvarWait(c, m)
			}
			sawReady = ready
			ownAfter = w.Ledger().MutexOwn[m]
			w.MutexUnlock(m)
			return 0
		}), 0)
		th.Yield()
		th.MutexLock(m)
		ready = true
		th.CondvarSignal(c)
		th.MutexUnlock(m)
		waitThread(th, tid)
		return 0
	})
	kern.run(t)

	if !sawReady {
		t.Error("waiter returned before the condition was set")
	}
	if ownAfter != 1 {
		t.Errorf("MutexOwn after wait = %d, want 1", ownAfter)
	}
}

// TestBadIDs tests that unknown primitive ids are rejected.
func TestBadIDs(t *testing.T) {
	kern := newTestKernel(t, config.PolicyFIFO)
	var errs []error
	kern.start(t, "bad", func(th *Thread) int {
		errs = append(errs,
			th.MutexLock(0),
			th.MutexUnlock(3),
			th.SemaphoreUp(0),
			th.SemaphoreDown(-1),
			th.CondvarSignal(0),
			th.CondvarWait(0, 0),
		)
		return 0
	})
	kern.run(t)

	for i, err := range errs {
		if !errors.Is(err, ErrBadID) {
			t.Errorf("call %d error = %v, want %v", i, err, ErrBadID)
		}
	}
}

// TestPrimitiveLimits tests the per-process table caps.
func TestPrimitiveLimits(t *testing.T) {
	kern := newTestKernel(t, config.PolicyFIFO)
	kern.m.Config().Limits.MaxMutexes = 2
	p := kern.start(t, "limits", func(th *Thread) int { return 0 })
	for i := 0; i < 2; i++ {
		if _, err := p.MutexCreate(true); err != nil {
			t.Fatalf("MutexCreate() error = %v", err)
		}
	}
	_, err := p.MutexCreate(true)
	if !IsLimitError(err) {
		t.Errorf("MutexCreate() error = %v, want a limit error", err)
	}
}

// TestForkRecreatesPrimitives tests that the child gets fresh primitives at
// the same ids.
func TestForkRecreatesPrimitives(t *testing.T) {
	kern := newTestKernel(t, config.PolicyFIFO)
	var childErr error
	var childStatus []int
	kern.start(t, "parent", func(th *Thread) int {
		p := th.Process()
		p.MutexCreate(true)
		m, _ := p.MutexCreate(false)
		s, _ := p.SemaphoreCreate(2)
		th.MutexLock(m)
		th.SetResume(p.RegisterCode(func(c *Thread) int {
			childStatus = c.Process().MutexStatus()
			childErr = c.MutexLock(m)
			c.MutexUnlock(m)
			c.SemaphoreDown(s)
			return 0
		}))
		child, err := th.Fork()
		if err != nil {
			t.Errorf("Fork() error = %v", err)
			return 1
		}
		th.MutexUnlock(m)
		waitChild(th, child.Pid())
		return 0
	})
	kern.run(t)

	if childErr != nil {
		t.Errorf("child MutexLock() error = %v", childErr)
	}
	if len(childStatus) != 2 || childStatus[1] != 1 {
		t.Errorf("child MutexStatus() = %v, want [1 1]", childStatus)
	}
}
