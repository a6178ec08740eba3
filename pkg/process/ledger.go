package process

import "tcore/pkg/deadlock"

// Ledger records, per primitive id, what a thread holds and what it is
// waiting for. Vectors are kept as long as the owning table.
type Ledger struct {
	MutexOwn  []int
	MutexNeed []int
	SemOwn    []int
	SemNeed   []int
}

// newLedger returns a zeroed ledger sized for mutexes and semaphores.
func newLedger(mutexes, sems int) *Ledger {
	return &Ledger{
		MutexOwn:  make([]int, mutexes),
		MutexNeed: make([]int, mutexes),
		SemOwn:    make([]int, sems),
		SemNeed:   make([]int, sems),
	}
}

// growMutex appends a zero column for a new mutex id.
func (l *Ledger) growMutex() {
	l.MutexOwn = append(l.MutexOwn, 0)
	l.MutexNeed = append(l.MutexNeed, 0)
}

// growSem appends a zero column for a new semaphore id.
func (l *Ledger) growSem() {
	l.SemOwn = append(l.SemOwn, 0)
	l.SemNeed = append(l.SemNeed, 0)
}

// resetMutex zeroes a reused mutex id.
func (l *Ledger) resetMutex(id int) {
	l.MutexOwn[id] = 0
	l.MutexNeed[id] = 0
}

// resetSem zeroes a reused semaphore id.
func (l *Ledger) resetSem(id int) {
	l.SemOwn[id] = 0
	l.SemNeed[id] = 0
}

// resourceKind selects the mutex or semaphore half of a ledger.
type resourceKind int

const (
	kindMutex resourceKind = iota
	kindSemaphore
)

func (k resourceKind) String() string {
	if k == kindMutex {
		return "mutex"
	}
	return "semaphore"
}

// row copies one half of the ledger into a detector row.
func (l *Ledger) row(k resourceKind) deadlock.Row {
	own, need := l.MutexOwn, l.MutexNeed
	if k == kindSemaphore {
		own, need = l.SemOwn, l.SemNeed
	}
	return deadlock.Row{
		Present: true,
		Alloc:   append([]int(nil), own...),
		Need:    append([]int(nil), need...),
	}
}

// ThreadUserRes is the per-thread user resource bundle: the thread id, its
// user stack and its ledger.
type ThreadUserRes struct {
	Tid        int
	UstackBase uint64
	Ledger     *Ledger
}
