package process

import (
	"fmt"

	"tcore/pkg/ksync"
	"tcore/pkg/mm"
)

// Address layout shared by every process.
const (
	// TextBase is the first code address handed out by RegisterCode.
	TextBase = 0x1000
	// textStride is the distance between registered code addresses.
	textStride = 4
	// UserStackBase is the bottom of tid 0's user stack. Each later tid
	// sits one stack plus a guard page above the previous one.
	UserStackBase = 0x4000_0000
)

// Process is a process control block: an address space, the threads running
// in it and the synchronization tables they share.
type Process struct {
	pid  int
	name string
	m    *Manager

	mu       processMutex
	parent   *Process
	children []*Process
	zombie   bool
	exitCode int

	memory   *mm.MemorySet
	text     map[uint64]Entry
	nextText uint64

	tids   *RecycleAllocator
	tasks  []*Thread
	exited map[int]int

	mutexes     arena[ksync.Mutex]
	semaphores  arena[*ksync.Semaphore]
	condvars    arena[*ksync.Condvar]
	mutexStatus []int
	semStatus   []int
	detect      bool
}

// Pid returns the process id.
func (p *Process) Pid() int { return p.pid }

// Name returns the name of the image the process is running.
func (p *Process) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

// Manager returns the manager that owns p.
func (p *Process) Manager() *Manager { return p.m }

// Memory returns the current address space.
func (p *Process) Memory() *mm.MemorySet {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.memory
}

// Parent returns the parent process, or nil for a root process.
func (p *Process) Parent() *Process {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.parent
}

// ParentPid returns the parent's pid, or -1.
func (p *Process) ParentPid() int {
	if parent := p.Parent(); parent != nil {
		return parent.pid
	}
	return -1
}

// Children returns a snapshot of the child list.
func (p *Process) Children() []*Process {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Process(nil), p.children...)
}

// IsZombie reports whether the process has exited.
func (p *Process) IsZombie() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.zombie
}

// ExitCode returns the process exit code once it is a zombie.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

// Thread returns the live thread with the given tid.
func (p *Process) Thread(tid int) (*Thread, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if tid < 0 || tid >= len(p.tasks) || p.tasks[tid] == nil {
		return nil, false
	}
	return p.tasks[tid], true
}

// MainThread returns the thread with tid 0, which is retained until the
// process is reaped.
func (p *Process) MainThread() *Thread {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.tasks) == 0 {
		return nil
	}
	return p.tasks[0]
}

// ThreadCount returns the number of live threads.
func (p *Process) ThreadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.liveThreadsLocked()
}

func (p *Process) liveThreadsLocked() int {
	n := 0
	for _, t := range p.tasks {
		if t != nil && t.Status() != StatusZombie {
			n++
		}
	}
	return n
}

// RegisterCode makes e callable at the returned code address. Addresses
// survive fork and are cleared by exec.
func (p *Process) RegisterCode(e Entry) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	addr := p.nextText
	p.nextText += textStride
	p.text[addr] = e
	return addr
}

func (p *Process) code(addr uint64) (Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.text[addr]
	return e, ok
}

func (p *Process) String() string {
	return fmt.Sprintf("process %d", p.pid)
}

// newUserResLocked allocates a tid, maps its user stack and sizes its ledger
// to the current tables.
func (p *Process) newUserResLocked(mapStack bool) (*ThreadUserRes, error) {
	size := p.m.cfg.UserStackSize
	tid := p.tids.Alloc()
	base := ustackBottom(size, tid)
	if mapStack {
		if err := p.memory.Insert(base, base+size, mm.PermR|mm.PermW|mm.PermU); err != nil {
			p.tids.Dealloc(tid)
			return nil, err
		}
	}
	return &ThreadUserRes{
		Tid:        tid,
		UstackBase: base,
		Ledger:     newLedger(p.mutexes.size(), p.semaphores.size()),
	}, nil
}

// installLocked places t in its tid slot.
func (p *Process) installLocked(t *Thread) {
	for len(p.tasks) <= t.tid {
		p.tasks = append(p.tasks, nil)
	}
	p.tasks[t.tid] = t
	delete(p.exited, t.tid)
}
