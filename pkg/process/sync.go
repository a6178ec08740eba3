package process

import (
	"errors"

	"tcore/pkg/deadlock"
	"tcore/pkg/klog"
	"tcore/pkg/ksync"
)

// Synchronization errors.
var (
	ErrBadID    = errors.New("no primitive with that id")
	ErrDeadlock = errors.New("request would leave the process unsafe")
)

// SetDeadlockDetect turns the safety check on mutex and semaphore requests
// on or off.
func (p *Process) SetDeadlockDetect(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detect = on
}

// DeadlockDetect reports whether the safety check is enabled.
func (p *Process) DeadlockDetect() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.detect
}

// MutexStatus returns the available-unit vector for mutexes.
func (p *Process) MutexStatus() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.mutexStatus...)
}

// SemaphoreStatus returns the available-unit vector for semaphores.
func (p *Process) SemaphoreStatus() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.semStatus...)
}

// eachLedgerLocked calls fn on the ledger of every live thread.
func (p *Process) eachLedgerLocked(fn func(l *Ledger)) {
	for _, t := range p.tasks {
		if t != nil {
			t.withLedger(fn)
		}
	}
}

// withLedger calls fn on t's ledger if it still has one.
func (t *Thread) withLedger(fn func(l *Ledger)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.res != nil {
		fn(t.res.Ledger)
	}
}

func (p *Process) putMutexAt(id int, blocking bool) {
	p.mutexes.putAt(id, newMutex(blocking))
	for len(p.mutexStatus) <= id {
		p.mutexStatus = append(p.mutexStatus, 0)
	}
	p.mutexStatus[id] = 1
}

func (p *Process) putSemaphoreAt(id, count int) {
	p.semaphores.putAt(id, ksync.NewSemaphore(count))
	for len(p.semStatus) <= id {
		p.semStatus = append(p.semStatus, 0)
	}
	p.semStatus[id] = count
}

func (p *Process) putCondvarAt(id int) {
	p.condvars.putAt(id, ksync.NewCondvar())
}

func newMutex(blocking bool) ksync.Mutex {
	if blocking {
		return ksync.NewBlockingMutex()
	}
	return ksync.NewSpinMutex()
}

// MutexCreate adds a mutex to the process table and returns its id. Freed
// slots are reused first.
func (p *Process) MutexCreate(blocking bool) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLimitLocked(ResourceMutexes, p.mutexes.count()); err != nil {
		return 0, err
	}
	id, grew := p.mutexes.put(newMutex(blocking))
	if grew {
		p.mutexStatus = append(p.mutexStatus, 1)
	} else {
		p.mutexStatus[id] = 1
	}
	p.eachLedgerLocked(func(l *Ledger) {
		if grew {
			l.growMutex()
		} else {
			l.resetMutex(id)
		}
	})
	return id, nil
}

// SemaphoreCreate adds a semaphore holding count units and returns its id.
func (p *Process) SemaphoreCreate(count int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLimitLocked(ResourceSemaphores, p.semaphores.count()); err != nil {
		return 0, err
	}
	id, grew := p.semaphores.put(ksync.NewSemaphore(count))
	if grew {
		p.semStatus = append(p.semStatus, count)
	} else {
		p.semStatus[id] = count
	}
	p.eachLedgerLocked(func(l *Ledger) {
		if grew {
			l.growSem()
		} else {
			l.resetSem(id)
		}
	})
	return id, nil
}

// CondvarCreate adds a condition variable and returns its id.
func (p *Process) CondvarCreate() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLimitLocked(ResourceCondvars, p.condvars.count()); err != nil {
		return 0, err
	}
	id, _ := p.condvars.put(ksync.NewCondvar())
	return id, nil
}

// safeLocked runs the safety check over one resource class.
func (p *Process) safeLocked(k resourceKind) bool {
	available := p.mutexStatus
	if k == kindSemaphore {
		available = p.semStatus
	}
	rows := make([]deadlock.Row, len(p.tasks))
	for i, t := range p.tasks {
		if t == nil {
			continue
		}
		t.mu.Lock()
		if t.res != nil && t.status != StatusZombie {
			rows[i] = t.res.Ledger.row(k)
		}
		t.mu.Unlock()
	}
	stuck := deadlock.Stuck(available, rows)
	if len(stuck) > 0 {
		klog.Infof("%v: %v request refused, threads %v could not finish", p, k, stuck)
		return false
	}
	return true
}

// requestLocked records that t wants one unit of id and, with detection on,
// rolls the request back if the resulting state is unsafe.
func (p *Process) requestLocked(t *Thread, k resourceKind, id int) error {
	t.withLedger(func(l *Ledger) {
		if k == kindMutex {
			l.MutexNeed[id]++
		} else {
			l.SemNeed[id]++
		}
	})
	if !p.detect || p.safeLocked(k) {
		return nil
	}
	t.withLedger(func(l *Ledger) {
		if k == kindMutex {
			l.MutexNeed[id]--
		} else {
			l.SemNeed[id]--
		}
	})
	return ErrDeadlock
}

// acquiredLocked moves one unit of id from t's need to its own column.
func (p *Process) acquiredLocked(t *Thread, k resourceKind, id int) {
	status := &p.mutexStatus
	if k == kindSemaphore {
		status = &p.semStatus
	}
	if id < len(*status) {
		(*status)[id]--
	}
	t.withLedger(func(l *Ledger) {
		own, need := l.MutexOwn, l.MutexNeed
		if k == kindSemaphore {
			own, need = l.SemOwn, l.SemNeed
		}
		if id >= len(own) {
			return
		}
		own[id]++
		if need[id] > 0 {
			need[id]--
		}
	})
}

// releasedLocked returns one unit of id from t.
func (p *Process) releasedLocked(t *Thread, k resourceKind, id int) {
	t.withLedger(func(l *Ledger) {
		own := l.MutexOwn
		if k == kindSemaphore {
			own = l.SemOwn
		}
		if id < len(own) && own[id] > 0 {
			own[id]--
		}
	})
	if k == kindMutex {
		if p.mutexStatus[id] < 1 {
			p.mutexStatus[id]++
		}
		return
	}
	p.semStatus[id]++
}

// MutexLock acquires mutex id, blocking or spinning as the mutex dictates.
// With detection on it returns ErrDeadlock instead of waiting when the wait
// could never end.
func (t *Thread) MutexLock(id int) error {
	t.mustBeCurrent()
	p := t.process
	p.mu.Lock()
	mu, ok := p.mutexes.get(id)
	if !ok {
		p.mu.Unlock()
		return ErrBadID
	}
	if err := p.requestLocked(t, kindMutex, id); err != nil {
		p.mu.Unlock()
		return err
	}
	p.mu.Unlock()

	mu.Lock(t)

	p.mu.Lock()
	p.acquiredLocked(t, kindMutex, id)
	p.mu.Unlock()
	return nil
}

// MutexUnlock releases mutex id.
func (t *Thread) MutexUnlock(id int) error {
	p := t.process
	p.mu.Lock()
	mu, ok := p.mutexes.get(id)
	if !ok {
		p.mu.Unlock()
		return ErrBadID
	}
	p.releasedLocked(t, kindMutex, id)
	p.mu.Unlock()
	mu.Unlock(t)
	return nil
}

// SemaphoreUp releases one unit of semaphore id.
func (t *Thread) SemaphoreUp(id int) error {
	p := t.process
	p.mu.Lock()
	s, ok := p.semaphores.get(id)
	if !ok {
		p.mu.Unlock()
		return ErrBadID
	}
	p.releasedLocked(t, kindSemaphore, id)
	p.mu.Unlock()
	s.Up()
	return nil
}

// SemaphoreDown takes one unit of semaphore id, blocking until one is free.
// With detection on it returns ErrDeadlock instead of waiting when the wait
// could never end.
func (t *Thread) SemaphoreDown(id int) error {
	t.mustBeCurrent()
	p := t.process
	p.mu.Lock()
	s, ok := p.semaphores.get(id)
	if !ok {
		p.mu.Unlock()
		return ErrBadID
	}
	if err := p.requestLocked(t, kindSemaphore, id); err != nil {
		p.mu.Unlock()
		return err
	}
	p.mu.Unlock()

	s.Down(t)

	p.mu.Lock()
	p.acquiredLocked(t, kindSemaphore, id)
	p.mu.Unlock()
	return nil
}

// CondvarSignal wakes one waiter of condvar id.
func (t *Thread) CondvarSignal(id int) error {
	p := t.process
	p.mu.Lock()
	cv, ok := p.condvars.get(id)
	p.mu.Unlock()
	if !ok {
		return ErrBadID
	}
	cv.Signal()
	return nil
}

// CondvarWait releases mutex mid, waits on condvar cid and re-acquires mid
// before returning. The ledger follows the mutex through the wait.
func (t *Thread) CondvarWait(cid, mid int) error {
	p := t.process
	p.mu.Lock()
	cv, ok := p.condvars.get(cid)
	if !ok {
		p.mu.Unlock()
		return ErrBadID
	}
	mu, ok := p.mutexes.get(mid)
	if !ok {
		p.mu.Unlock()
		return ErrBadID
	}
	p.releasedLocked(t, kindMutex, mid)
	p.mu.Unlock()

	cv.Wait(mu, t)

	p.mu.Lock()
	p.acquiredLocked(t, kindMutex, mid)
	p.mu.Unlock()
	return nil
}
