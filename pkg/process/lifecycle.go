package process

import (
	"errors"
	"fmt"

	"tcore/pkg/klog"
	"tcore/pkg/ksync"
	"tcore/pkg/mm"
)

// Lifecycle errors.
var (
	ErrNoChild       = errors.New("no matching child")
	ErrNotExited     = errors.New("child has not exited")
	ErrMultiThreaded = errors.New("fork from a process with more than one thread")
	ErrNoThread      = errors.New("no such thread")
	ErrThreadRunning = errors.New("thread has not exited")
	ErrWaitSelf      = errors.New("thread cannot wait for itself")
	ErrBadEntry      = errors.New("no code at address")
	ErrBadPort       = errors.New("mmap port grants nothing or has unknown bits")
)

// Exit terminates t's whole process with code. It never returns: the
// caller's stack unwinds, running its deferred calls, and the process is
// torn down afterwards.
func (t *Thread) Exit(code int) {
	t.mustBeCurrent()
	panic(unwind{kind: unwindExit, code: code})
}

// Fork duplicates t's process. The child gets a copy of the address space
// and code table, a fresh copy of every synchronization primitive at the
// same id, and one thread that resumes at t's resume address with a0 set
// to 0. Only a single-threaded process may fork.
func (t *Thread) Fork() (*Process, error) {
	t.mustBeCurrent()
	p := t.process
	m := p.m

	p.mu.Lock()
	if p.liveThreadsLocked() != 1 {
		p.mu.Unlock()
		return nil, ErrMultiThreaded
	}
	child := m.allocProcess(p.name, p.memory.Clone(), p)
	for addr, e := range p.text {
		child.text[addr] = e
	}
	child.nextText = p.nextText
	child.detect = p.detect
	p.mutexes.each(func(id int, mu ksync.Mutex) {
		child.putMutexAt(id, mu.Blocking())
	})
	p.semaphores.each(func(id int, s *ksync.Semaphore) {
		n := s.Count()
		if n < 0 {
			n = 0
		}
		child.putSemaphoreAt(id, n)
	})
	p.condvars.each(func(id int, _ *ksync.Condvar) {
		child.putCondvarAt(id)
	})
	cx := t.Context()
	p.mu.Unlock()

	child.mu.Lock()
	// The caller's user stack is already present in the cloned memory.
	res, err := child.newUserResLocked(false)
	if err != nil {
		child.mu.Unlock()
		m.pids.Dealloc(child.pid)
		return nil, err
	}
	ct := newThread(child, res, t.Priority())
	ct.trapCx = cx
	ct.trapCx.X[RegA0] = 0
	child.installLocked(ct)
	child.mu.Unlock()

	m.register(child, p)
	m.sched.Add(ct)
	klog.Debugf("%v forked %v", p, child)
	return child, nil
}

// Spawn creates a child process running the executable at path, without
// copying the caller's address space.
func (t *Thread) Spawn(path string) (*Process, error) {
	t.mustBeCurrent()
	m := t.process.m
	img, err := m.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return m.NewProcess(img, t.process)
}

// Exec replaces the caller's process image with the executable at path.
// The image and the caller's new user stack are prepared first, so a failure
// leaves the process untouched. On success Exec does not return: the
// caller's stack unwinds, and then every other thread is terminated, the
// synchronization tables are cleared and the caller continues as tid 0 at
// the new entry.
func (t *Thread) Exec(path string) error {
	t.mustBeCurrent()
	m := t.process.m
	img, err := m.LoadFile(path)
	if err != nil {
		return err
	}
	size := m.cfg.UserStackSize
	base := ustackBottom(size, 0)
	if err := img.Memory.Insert(base, base+size, mm.PermR|mm.PermW|mm.PermU); err != nil {
		img.Memory.Recycle()
		return fmt.Errorf("exec %s: user stack: %w", path, err)
	}
	panic(unwind{kind: unwindExec, img: img})
}

// execImage installs img, whose user stack for tid 0 is already mapped, in
// place of t's process image.
func (m *Manager) execImage(t *Thread, img *Image) {
	p := t.process
	m.retireOthers(t)

	p.mu.Lock()
	p.memory.Recycle()
	p.memory = img.Memory
	p.name = img.Name
	p.text = map[uint64]Entry{TextBase: img.Entry}
	p.nextText = TextBase + textStride
	p.mutexes.reset()
	p.semaphores.reset()
	p.condvars.reset()
	p.mutexStatus = nil
	p.semStatus = nil
	p.tids = NewRecycleAllocator()
	p.tasks = nil
	p.exited = make(map[int]int)
	tid := p.tids.Alloc()
	res := &ThreadUserRes{
		Tid:        tid,
		UstackBase: ustackBottom(m.cfg.UserStackSize, tid),
		Ledger:     newLedger(0, 0),
	}
	t.mu.Lock()
	t.tid = tid
	t.res = res
	t.wakePending = false
	t.trapCx = TrapContext{Sepc: TextBase}
	t.trapCx.X[RegSP] = res.UstackBase + m.cfg.UserStackSize
	t.mu.Unlock()
	p.installLocked(t)
	p.mu.Unlock()

	klog.Debugf("%v exec %s", p, img.Name)
}

// Waitpid reaps an exited child. pid -1 matches any child. It returns
// ErrNoChild if nothing matches and ErrNotExited if matching children are
// all still running.
func (t *Thread) Waitpid(pid int) (int, int, error) {
	p := t.process
	p.mu.Lock()
	found := false
	for i, c := range p.children {
		if pid != -1 && c.pid != pid {
			continue
		}
		found = true
		c.mu.NestedLock(processLockChild)
		zombie, code := c.zombie, c.exitCode
		c.mu.NestedUnlock(processLockChild)
		if !zombie {
			continue
		}
		p.children = append(p.children[:i], p.children[i+1:]...)
		p.mu.Unlock()
		p.m.reap(c)
		return c.pid, code, nil
	}
	p.mu.Unlock()
	if !found {
		return 0, 0, ErrNoChild
	}
	return 0, 0, ErrNotExited
}

// ThreadCreate starts a new thread in t's process at the code address entry
// with arg in a0.
func (t *Thread) ThreadCreate(entry, arg uint64) (int, error) {
	t.mustBeCurrent()
	p := t.process
	m := p.m
	p.mu.Lock()
	if _, ok := p.text[entry]; !ok {
		p.mu.Unlock()
		return 0, ErrBadEntry
	}
	if err := p.checkLimitLocked(ResourceThreads, p.liveThreadsLocked()); err != nil {
		p.mu.Unlock()
		return 0, err
	}
	res, err := p.newUserResLocked(true)
	if err != nil {
		p.mu.Unlock()
		return 0, err
	}
	nt := newThread(p, res, t.Priority())
	nt.trapCx.Sepc = entry
	nt.trapCx.X[RegA0] = arg
	nt.trapCx.X[RegSP] = res.UstackBase + m.cfg.UserStackSize
	p.installLocked(nt)
	p.mu.Unlock()

	m.sched.Add(nt)
	return res.Tid, nil
}

// Waittid collects the exit code of another thread in the same process.
func (t *Thread) Waittid(tid int) (int, error) {
	p := t.process
	if tid == t.Tid() {
		return 0, ErrWaitSelf
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if code, ok := p.exited[tid]; ok {
		delete(p.exited, tid)
		return code, nil
	}
	if tid >= 0 && tid < len(p.tasks) && p.tasks[tid] != nil {
		return 0, ErrThreadRunning
	}
	return 0, ErrNoThread
}

// Sbrk moves the program break by delta and returns the old break.
func (t *Thread) Sbrk(delta int64) (uint64, error) {
	return t.process.Memory().ChangeBrk(delta)
}

// Mmap maps [start, start+length) with the permission encoded in port.
func (t *Thread) Mmap(start, length, port uint64) error {
	perm, ok := mm.PortPermission(port)
	if !ok {
		return ErrBadPort
	}
	return t.process.Memory().Mmap(start, length, perm)
}

// Munmap unmaps [start, start+length).
func (t *Thread) Munmap(start, length uint64) error {
	return t.process.Memory().Munmap(start, length)
}
