package process

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gvisor.dev/gvisor/pkg/atomicbitops"
	"gvisor.dev/gvisor/pkg/sync"

	"tcore/pkg/mm"
)

// Register indexes into TrapContext.X.
const (
	RegSP = 2
	RegA0 = 10
	RegA1 = 11
	RegA2 = 12
)

// MaxSyscallNum bounds the per-thread syscall histogram.
const MaxSyscallNum = 500

// ErrInvalidPriority is returned for priorities below 2.
var ErrInvalidPriority = errors.New("priority must be at least 2")

// TrapContext is the user register file saved across a trap. Sepc names the
// code address a thread resumes at when it is first dispatched.
type TrapContext struct {
	X    [32]uint64
	Sepc uint64
}

// Entry is user code. It runs on its thread's goroutine and returns the
// thread's exit code.
type Entry func(t *Thread) int

// Thread is a kernel thread: the unit of scheduling. Each thread runs on its
// own goroutine, but only the thread the processor has resumed executes;
// every other thread goroutine is parked on its resume channel.
type Thread struct {
	process *Process

	mu           threadMutex
	tid          int
	status       TaskStatus
	res          *ThreadUserRes
	trapCx       TrapContext
	wakePending  bool
	exitCode     int
	started      bool
	syscallTimes [MaxSyscallNum]uint32
	runTime      time.Duration
	dispatched   time.Duration

	priority atomicbitops.Int32

	// Owned by the scheduler, under its lock.
	pass   uint64
	seeded bool
	index  int

	resume   chan struct{}
	killed   chan struct{}
	killOnce sync.Once
	done     chan struct{}
}

// unwindKind says what a thread does once its user code is off the stack.
type unwindKind int

const (
	// unwindReturn is a normal return from the entry.
	unwindReturn unwindKind = iota
	// unwindExit ends the whole process.
	unwindExit
	// unwindExec continues in a new image.
	unwindExec
	// unwindKill ends a thread retired by another one.
	unwindKill
)

// unwind is panicked on a thread's goroutine to abandon its user code.
// Deferred user calls run during the unwind, before run acts on the
// request, so nothing of the old code survives into what follows.
type unwind struct {
	kind unwindKind
	code int
	img  *Image
}

func newThread(p *Process, res *ThreadUserRes, priority int) *Thread {
	t := &Thread{
		process: p,
		tid:     res.Tid,
		status:  StatusReady,
		res:     res,
		index:   -1,
		resume:  make(chan struct{}),
		killed:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	t.priority.Store(int32(priority))
	p.m.live.Add(1)
	return t
}

// Process returns the owning process.
func (t *Thread) Process() *Process { return t.process }

// Tid returns the thread id within its process.
func (t *Thread) Tid() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tid
}

// Status returns the current scheduling state.
func (t *Thread) Status() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// ExitCode returns the code the thread exited with. It is meaningful only
// once Status is StatusZombie.
func (t *Thread) ExitCode() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exitCode
}

// Context returns a copy of the saved register file.
func (t *Thread) Context() TrapContext {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.trapCx
}

// Reg returns register i.
func (t *Thread) Reg(i int) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.trapCx.X[i]
}

// SetReg sets register i.
func (t *Thread) SetReg(i int, v uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trapCx.X[i] = v
}

// SetResume sets the address the thread resumes at, which fork copies into
// the child.
func (t *Thread) SetResume(addr uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trapCx.Sepc = addr
}

// UstackTop returns the highest address of the thread's user stack, or 0
// after the thread has exited.
func (t *Thread) UstackTop() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.res == nil {
		return 0
	}
	return t.res.UstackBase + t.process.m.cfg.UserStackSize
}

// Ledger returns a copy of the thread's deadlock ledger, or nil once the
// thread has exited.
func (t *Thread) Ledger() *Ledger {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.res == nil {
		return nil
	}
	l := t.res.Ledger
	return &Ledger{
		MutexOwn:  append([]int(nil), l.MutexOwn...),
		MutexNeed: append([]int(nil), l.MutexNeed...),
		SemOwn:    append([]int(nil), l.SemOwn...),
		SemNeed:   append([]int(nil), l.SemNeed...),
	}
}

// Priority returns the stride priority.
func (t *Thread) Priority() int {
	return int(t.priority.Load())
}

// SetPriority sets the stride priority. Priorities below 2 are rejected.
func (t *Thread) SetPriority(prio int) error {
	if prio <= 1 {
		return ErrInvalidPriority
	}
	t.priority.Store(int32(prio))
	return nil
}

// CountSyscall bumps the histogram entry for id. Ids outside the histogram
// are ignored.
func (t *Thread) CountSyscall(id int) {
	if id < 0 || id >= MaxSyscallNum {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.syscallTimes[id]++
}

// SyscallTimes returns a copy of the syscall histogram.
func (t *Thread) SyscallTimes() [MaxSyscallNum]uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.syscallTimes
}

// RunningTime returns the time the thread has spent on the CPU, including
// the current slice if it is running.
func (t *Thread) RunningTime() time.Duration {
	now := t.process.m.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	d := t.runTime
	if t.status == StatusRunning {
		d += now - t.dispatched
	}
	return d
}

func (t *Thread) String() string {
	return fmt.Sprintf("thread %d:%d", t.process.pid, t.tid)
}

// Yield gives up the CPU and stays runnable.
func (t *Thread) Yield() {
	t.mustBeCurrent()
	t.mu.Lock()
	t.setStatus(StatusReady)
	t.mu.Unlock()
	t.process.m.sched.Add(t)
	t.switchOut()
}

// Block gives up the CPU until Wake is called. A Wake that arrived after
// the thread queued itself but before it blocked is honoured immediately.
func (t *Thread) Block() {
	t.mustBeCurrent()
	t.mu.Lock()
	if t.wakePending {
		t.wakePending = false
		t.mu.Unlock()
		return
	}
	t.setStatus(StatusBlocked)
	t.mu.Unlock()
	t.switchOut()
}

// Wake makes a blocked thread runnable. Waking a zombie is ignored.
func (t *Thread) Wake() {
	t.mu.Lock()
	switch t.status {
	case StatusBlocked:
		t.setStatus(StatusReady)
		t.mu.Unlock()
		t.process.m.sched.Add(t)
		return
	case StatusRunning:
		t.wakePending = true
	}
	t.mu.Unlock()
}

// Sleep blocks the thread until the clock reaches now+d. A deadline past
// the end of the clock's range is clamped to its last instant.
func (t *Thread) Sleep(d time.Duration) {
	t.mustBeCurrent()
	m := t.process.m
	now := m.clock.Now()
	deadline := now + d
	if d > 0 && deadline < now {
		deadline = math.MaxInt64
	}
	m.timers.Add(deadline, t)
	t.Block()
}

// mustBeCurrent panics unless t owns the CPU. A retired thread still
// unwinding its user code is sent on unwinding instead.
func (t *Thread) mustBeCurrent() {
	if t.Status() == StatusZombie {
		panic(unwind{kind: unwindKill})
	}
	if cur := t.process.m.cpu.Current(); cur != t {
		panic(fmt.Sprintf("%v switched away while %v owns the CPU", t, cur))
	}
}

// switchOut hands the CPU back to the processor and parks until the thread
// is resumed again. A thread killed while parked never returns.
func (t *Thread) switchOut() {
	t.process.m.cpu.back <- struct{}{}
	select {
	case <-t.resume:
	case <-t.killed:
		panic(unwind{kind: unwindKill})
	}
}

// exitSwitch hands the CPU back for the last time. The caller returns
// straight to run.
func (t *Thread) exitSwitch() {
	t.process.m.cpu.back <- struct{}{}
}

// kill releases a parked goroutine. It is safe to call more than once.
func (t *Thread) kill() {
	t.killOnce.Do(func() { close(t.killed) })
}

// main is the body of the thread's goroutine.
func (t *Thread) main() {
	defer close(t.done)
	select {
	case <-t.resume:
	case <-t.killed:
		return
	}
	t.run()
}

// run calls the code at the resume address and carries out whatever ended
// it. Only exec comes back for another round.
func (t *Thread) run() {
	m := t.process.m
	for {
		u := t.call()
		switch u.kind {
		case unwindReturn:
			m.exitThread(t, u.code)
			return
		case unwindExit:
			m.exitProcess(t, u.code)
			return
		case unwindExec:
			m.execImage(t, u.img)
		case unwindKill:
			return
		}
	}
}

// call runs the code at the resume address until it returns or unwinds.
func (t *Thread) call() (u unwind) {
	entry, ok := t.process.code(t.Context().Sepc)
	if !ok {
		return unwind{kind: unwindReturn, code: -1}
	}
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		req, ok := r.(unwind)
		if !ok {
			panic(r)
		}
		u = req
	}()
	return unwind{kind: unwindReturn, code: entry(t)}
}

// awaitKilled waits until the goroutines of retired threads have finished
// unwinding. Threads that never ran have no goroutine.
func awaitKilled(ts []*Thread) {
	for _, t := range ts {
		t.mu.Lock()
		started := t.started
		t.mu.Unlock()
		if started {
			<-t.done
		}
	}
}

// ustackBottom returns the lowest address of tid's user stack.
func ustackBottom(size uint64, tid int) uint64 {
	return UserStackBase + uint64(tid)*(size+mm.PageSize)
}
